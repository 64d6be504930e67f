package plan

import "strings"

// Category is a class of metered action.
type Category string

const (
	CategoryKeywordSearches  Category = "keyword_searches"
	CategoryBacklinkAnalyses Category = "backlink_analyses"
	CategoryAuditPages       Category = "audit_pages"
	CategorySerpHistory      Category = "serp_history"
	CategoryDomainAnalyses   Category = "domain_analyses"
	CategoryExports          Category = "exports"
	CategoryAIVisibility     Category = "ai_visibility"
	// Non-monthly: counted from live rows, never reset.
	CategoryProjects        Category = "projects"
	CategoryTrackedKeywords Category = "tracked_keywords"
)

type categoryMeta struct {
	label        string
	limitMessage string
	monthly      bool
}

var orderedCategories = []Category{
	CategoryKeywordSearches,
	CategoryBacklinkAnalyses,
	CategoryAuditPages,
	CategorySerpHistory,
	CategoryDomainAnalyses,
	CategoryExports,
	CategoryAIVisibility,
	CategoryProjects,
	CategoryTrackedKeywords,
}

var categoryTable = map[Category]categoryMeta{
	CategoryKeywordSearches: {
		label:        "Recherches de mots-clés",
		limitMessage: "Vous avez atteint votre limite de recherches de mots-clés pour ce mois. Passez à un plan supérieur pour continuer.",
		monthly:      true,
	},
	CategoryBacklinkAnalyses: {
		label:        "Analyses de backlinks",
		limitMessage: "Vous avez atteint votre limite d'analyses de backlinks pour ce mois. Passez à un plan supérieur pour continuer.",
		monthly:      true,
	},
	CategoryAuditPages: {
		label:        "Pages auditées",
		limitMessage: "Vous avez atteint votre limite de pages auditées pour ce mois. Passez à un plan supérieur pour continuer.",
		monthly:      true,
	},
	CategorySerpHistory: {
		label:        "Historique SERP",
		limitMessage: "Vous avez atteint votre limite de consultations de l'historique SERP pour ce mois. Passez à un plan supérieur pour continuer.",
		monthly:      true,
	},
	CategoryDomainAnalyses: {
		label:        "Analyses de domaine",
		limitMessage: "Vous avez atteint votre limite d'analyses de domaine pour ce mois. Passez à un plan supérieur pour continuer.",
		monthly:      true,
	},
	CategoryExports: {
		label:        "Exports",
		limitMessage: "Vous avez atteint votre limite d'exports pour ce mois. Passez à un plan supérieur pour continuer.",
		monthly:      true,
	},
	CategoryAIVisibility: {
		label:        "Visibilité IA",
		limitMessage: "Vous avez atteint votre limite de requêtes de visibilité IA pour ce mois. Passez à un plan supérieur pour continuer.",
		monthly:      true,
	},
	CategoryProjects: {
		label:        "Projets",
		limitMessage: "Vous avez atteint le nombre maximum de projets de votre plan. Passez à un plan supérieur pour en créer davantage.",
	},
	CategoryTrackedKeywords: {
		label:        "Mots-clés suivis",
		limitMessage: "Vous avez atteint le nombre maximum de mots-clés suivis de votre plan. Passez à un plan supérieur pour en suivre davantage.",
	},
}

// Categories returns every category in display order.
func Categories() []Category {
	out := make([]Category, len(orderedCategories))
	copy(out, orderedCategories)
	return out
}

// MonthlyCategories returns the categories backed by the usage ledger.
func MonthlyCategories() []Category {
	out := make([]Category, 0, len(orderedCategories))
	for _, c := range orderedCategories {
		if c.IsMonthly() {
			out = append(out, c)
		}
	}
	return out
}

func ParseCategory(code string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(code)))
	if _, ok := categoryTable[c]; !ok {
		return "", false
	}
	return c, true
}

func (c Category) Valid() bool {
	_, ok := categoryTable[c]
	return ok
}

// IsMonthly reports whether usage resets each calendar month.
func (c Category) IsMonthly() bool {
	return categoryTable[c].monthly
}

func (c Category) Label() string {
	if meta, ok := categoryTable[c]; ok {
		return meta.label
	}
	return string(c)
}

func (c Category) String() string { return string(c) }

// LimitMessage is the end-user text shown when a request is denied.
func LimitMessage(c Category) string {
	if meta, ok := categoryTable[c]; ok {
		return meta.limitMessage
	}
	return "Vous avez atteint la limite de votre plan. Passez à un plan supérieur pour continuer."
}
