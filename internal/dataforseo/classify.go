package dataforseo

import (
	"strings"

	"github.com/smallbiznis/seometer/internal/plan"
)

type classifyRule struct {
	fragments []string
	category  plan.Category
}

// First match wins; AI-mode SERP paths must classify before the SERP rule.
var classifyRules = []classifyRule{
	{fragments: []string{"/ai_optimization/", "/serp/google/ai_mode/", "llm_mentions"}, category: plan.CategoryAIVisibility},
	{fragments: []string{"/on_page/"}, category: plan.CategoryAuditPages},
	{fragments: []string{"/backlinks/"}, category: plan.CategoryBacklinkAnalyses},
	{fragments: []string{"/serp/google/organic", "historical_serps"}, category: plan.CategorySerpHistory},
	{fragments: []string{"/domain_analytics/", "domain_rank_overview", "ranked_keywords", "competitors_domain"}, category: plan.CategoryDomainAnalyses},
	{fragments: []string{"/keywords_data/", "/dataforseo_labs/google/keyword", "related_keywords"}, category: plan.CategoryKeywordSearches},
}

// Classify maps a vendor request path to the usage category it consumes.
// Unrecognized paths fall back to keyword searches with ok=false.
func Classify(path string) (plan.Category, bool) {
	normalized := strings.ToLower(strings.TrimSpace(path))
	for _, rule := range classifyRules {
		for _, fragment := range rule.fragments {
			if strings.Contains(normalized, fragment) {
				return rule.category, true
			}
		}
	}
	return plan.CategoryKeywordSearches, false
}
