package resolvers

import (
	"fmt"
	"strings"

	"github.com/Tegath/kaleads/internal/cascade"
	"github.com/Tegath/kaleads/internal/domain"
)

// Industry-typical answers used by the generic tier. Keys are lowercase.
var (
	personaByIndustry = map[string]string{
		"saas":          "VP of Sales",
		"software":      "VP of Sales",
		"fintech":       "Head of Operations",
		"e-commerce":    "Head of E-commerce",
		"ecommerce":     "Head of E-commerce",
		"retail":        "Head of E-commerce",
		"logistics":     "Director of Operations",
		"manufacturing": "Director of Operations",
		"healthcare":    "Head of Operations",
		"marketing":     "Head of Growth",
		"agency":        "Head of Growth",
	}

	painByIndustry = map[string]string{
		"saas":       "pipeline that depends on a few reps",
		"software":   "pipeline that depends on a few reps",
		"fintech":    "slow onboarding of new customers",
		"e-commerce": "rising customer acquisition costs",
		"ecommerce":  "rising customer acquisition costs",
		"retail":     "rising customer acquisition costs",
		"logistics":  "manual coordination between teams",
	}

	techByIndustry = map[string]string{
		"saas":       "HubSpot",
		"software":   "HubSpot",
		"e-commerce": "Shopify",
		"ecommerce":  "Shopify",
		"retail":     "Shopify",
		"fintech":    "Salesforce",
		"marketing":  "Google Analytics",
	}

	industryVocabulary = []string{
		"SaaS", "Fintech", "E-commerce", "Ecommerce", "Retail", "Logistics",
		"Healthcare", "Insurance", "Real Estate", "Education", "Manufacturing",
		"Marketing", "Cybersecurity", "HR", "Recruiting", "Travel", "Hospitality",
		"Telecommunications", "Energy", "Software", "Agency", "Consulting",
	}
)

// lookupByIndustry finds an entry whose key appears in industry.
func lookupByIndustry(table map[string]string, industry string) (string, bool) {
	industry = strings.ToLower(strings.TrimSpace(industry))
	if industry == "" {
		return "", false
	}
	if v, ok := table[industry]; ok {
		return v, true
	}
	// Longest key first keeps the result deterministic.
	best := ""
	for k := range table {
		if strings.Contains(industry, k) && (len(k) > len(best) || len(k) == len(best) && k < best) {
			best = k
		}
	}
	if best == "" {
		return "", false
	}
	return table[best], true
}

func genericCandidates(field domain.FieldID) func(req cascade.Request) []cascade.Candidate {
	return func(req cascade.Request) []cascade.Candidate {
		industry := strings.TrimSpace(req.Industry())
		var out []cascade.Candidate
		add := func(v, why string) {
			out = append(out, cascade.Candidate{Value: v, Reasoning: why})
		}

		switch field {
		case domain.FieldIndustry:
			if req.Company.Industry != "" {
				add(req.Company.Industry, "industry given with the company record")
			}
			add("B2B services", "no industry could be determined")

		case domain.FieldCompetitor:
			if industry != "" {
				add(fmt.Sprintf("other %s vendors", industry), "no named competitor found; industry peers used")
			}
			add("other vendors in your market", "no named competitor found")

		case domain.FieldPersona:
			if v, ok := lookupByIndustry(personaByIndustry, industry); ok {
				add(v, fmt.Sprintf("typical buyer in %s", industry))
			}
			add("Head of Operations", "default buyer for operational tooling")

		case domain.FieldPainPoint:
			if req.Client != nil && len(req.Client.PainCategories) > 0 {
				add(req.Client.PainCategories[0], "first pain category the client solves")
			}
			if v, ok := lookupByIndustry(painByIndustry, industry); ok {
				add(v, fmt.Sprintf("common pain in %s", industry))
			}
			add("manual work slowing the team down", "default pain")

		case domain.FieldSignal:
			if industry != "" {
				add(fmt.Sprintf("recent growth in the %s market", industry), "no specific event found; market trend used")
			}
			add("recent team growth", "no specific event found")

		case domain.FieldTechStack:
			if v, ok := lookupByIndustry(techByIndustry, industry); ok {
				add(v, fmt.Sprintf("widely used in %s", industry))
			}
			add("spreadsheets", "default tooling assumption")

		case domain.FieldProof:
			if req.Client != nil {
				for _, cs := range req.Client.CaseStudies {
					add(formatProof(cs), "first available case study")
				}
			}
			if industry != "" {
				add(fmt.Sprintf("teams like yours in %s", industry), "no case study available")
			}
		}
		return out
	}
}

func formatProof(cs domain.CaseStudy) string {
	if cs.Result == "" {
		return cs.Company
	}
	return fmt.Sprintf("%s: %s", cs.Company, cs.Result)
}
