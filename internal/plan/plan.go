// Package plan is the static catalog of subscription plans and their quotas.
package plan

import "strings"

// Unlimited is the limit sentinel meaning "no cap".
const Unlimited int64 = -1

type ID string

const (
	Free    ID = "FREE"
	Starter ID = "STARTER"
	Pro     ID = "PRO"
	Agency  ID = "AGENCY"
)

type Plan struct {
	ID              ID
	Name            string
	PriceMonthlyEUR int64
	limits          map[Category]int64
}

var catalog = map[ID]Plan{
	Free: {
		ID:              Free,
		Name:            "Gratuit",
		PriceMonthlyEUR: 0,
		limits: map[Category]int64{
			CategoryKeywordSearches:  50,
			CategoryBacklinkAnalyses: 10,
			CategoryAuditPages:       100,
			CategorySerpHistory:      10,
			CategoryDomainAnalyses:   5,
			CategoryExports:          5,
			CategoryAIVisibility:     5,
			CategoryProjects:         1,
			CategoryTrackedKeywords:  10,
		},
	},
	Starter: {
		ID:              Starter,
		Name:            "Starter",
		PriceMonthlyEUR: 29,
		limits: map[Category]int64{
			CategoryKeywordSearches:  500,
			CategoryBacklinkAnalyses: 100,
			CategoryAuditPages:       1000,
			CategorySerpHistory:      100,
			CategoryDomainAnalyses:   50,
			CategoryExports:          50,
			CategoryAIVisibility:     50,
			CategoryProjects:         3,
			CategoryTrackedKeywords:  100,
		},
	},
	Pro: {
		ID:              Pro,
		Name:            "Pro",
		PriceMonthlyEUR: 79,
		limits: map[Category]int64{
			CategoryKeywordSearches:  2000,
			CategoryBacklinkAnalyses: 500,
			CategoryAuditPages:       5000,
			CategorySerpHistory:      500,
			CategoryDomainAnalyses:   250,
			CategoryExports:          200,
			CategoryAIVisibility:     200,
			CategoryProjects:         10,
			CategoryTrackedKeywords:  500,
		},
	},
	Agency: {
		ID:              Agency,
		Name:            "Agence",
		PriceMonthlyEUR: 199,
		limits: map[Category]int64{
			CategoryKeywordSearches:  10000,
			CategoryBacklinkAnalyses: 2000,
			CategoryAuditPages:       25000,
			CategorySerpHistory:      Unlimited,
			CategoryDomainAnalyses:   1000,
			CategoryExports:          Unlimited,
			CategoryAIVisibility:     1000,
			CategoryProjects:         Unlimited,
			CategoryTrackedKeywords:  2000,
		},
	},
}

// Resolve returns the plan for id. Unknown identifiers fall back to Free.
func Resolve(id string) Plan {
	if p, ok := Lookup(id); ok {
		return p
	}
	return catalog[Free]
}

// Lookup returns the plan for id and whether it is a known identifier.
func Lookup(id string) (Plan, bool) {
	p, ok := catalog[ID(strings.ToUpper(strings.TrimSpace(id)))]
	return p, ok
}

// All returns the catalog in ascending tier order.
func All() []Plan {
	return []Plan{catalog[Free], catalog[Starter], catalog[Pro], catalog[Agency]}
}

// Limit returns the cap for category; unknown categories are capped at zero.
func (p Plan) Limit(c Category) int64 {
	limit, ok := p.limits[c]
	if !ok {
		return 0
	}
	return limit
}

// Limits returns a copy of the plan's limit table.
func (p Plan) Limits() map[Category]int64 {
	out := make(map[Category]int64, len(p.limits))
	for k, v := range p.limits {
		out[k] = v
	}
	return out
}
