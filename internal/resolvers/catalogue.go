package resolvers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Tegath/kaleads/internal/cascade"
	"github.com/Tegath/kaleads/internal/domain"
	"github.com/Tegath/kaleads/internal/prompts"
	"github.com/Tegath/kaleads/internal/services/inspect"
	"github.com/Tegath/kaleads/internal/services/search"
)

// Timeouts bound each tier of the default cascades.
type Timeouts struct {
	Context   time.Duration
	Search    time.Duration
	Inspect   time.Duration
	Inference time.Duration
	// Retry allows one immediate retry of transient transport errors.
	Retry bool
}

// DefaultTimeouts returns the timeouts used when config leaves them unset.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Context:   time.Second,
		Search:    8 * time.Second,
		Inspect:   10 * time.Second,
		Inference: 20 * time.Second,
		Retry:     true,
	}
}

// Default builds the resolver catalogue for every field in
// domain.FieldOrder. Context-derived tiers read only the client context
// and are tagged as inference: they are derived, not observed.
func Default(svc Services, catalogue *prompts.Catalogue, t Timeouts, ctrl *cascade.Controller) ([]*Resolver, error) {
	if catalogue == nil {
		var err error
		if catalogue, err = prompts.Default(); err != nil {
			return nil, err
		}
	}
	svc = svc.withDefaults()
	b := builder{svc: svc, prompts: catalogue, t: t, ctrl: ctrl}

	out := []*Resolver{
		b.industry(),
		b.competitor(),
		b.persona(),
		b.painPoint(),
		b.signal(),
		b.techStack(),
		b.proof(),
	}
	for _, r := range out {
		p, ok := catalogue.Get(r.Field)
		if !ok {
			return nil, &cascade.ConfigError{Resolver: r.Field, Reason: "no prompt in catalogue"}
		}
		r.Prompt = p
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Find returns the resolver for field, or nil.
func Find(rs []*Resolver, field domain.FieldID) *Resolver {
	for _, r := range rs {
		if r.Field == field {
			return r
		}
	}
	return nil
}

type builder struct {
	svc     Services
	prompts *prompts.Catalogue
	t       Timeouts
	ctrl    *cascade.Controller
}

func (b builder) contextTier(name string, fn func(req cascade.Request) (cascade.Candidate, bool)) cascade.Spec {
	return cascade.Spec{
		Strategy: cascade.StrategyFunc{Label: name, Fn: func(_ context.Context, req cascade.Request) (cascade.Candidate, error) {
			if c, ok := fn(req); ok {
				return c, nil
			}
			return cascade.Candidate{}, cascade.ErrNoResult
		}},
		Source:  domain.SourceInference,
		Timeout: b.t.Context,
	}
}

func (b builder) searchTier(name string, query func(cascade.Request) string, extract func(cascade.Request, []search.Result) (cascade.Candidate, bool)) cascade.Spec {
	return cascade.Spec{
		Strategy: &SearchStrategy{Label: name, Searcher: b.svc.Search, Query: query, Extract: extract},
		Source:   domain.SourceWebSearch,
		Timeout:  b.t.Search,
		Retry:    b.t.Retry,
	}
}

func (b builder) inspectTier(name, path string, extract func(cascade.Request, *inspect.PageSummary) (cascade.Candidate, bool)) cascade.Spec {
	return cascade.Spec{
		Strategy: &InspectStrategy{Label: name, Inspector: b.svc.Inspect, Path: path, Extract: extract},
		Source:   domain.SourceScraping,
		Timeout:  b.t.Inspect,
		Retry:    b.t.Retry,
	}
}

func (b builder) inferTier(field domain.FieldID) cascade.Spec {
	return cascade.Spec{
		Strategy: &InferenceStrategy{Label: string(field) + "_inference", Completer: b.svc.Inference, Prompts: b.prompts},
		Source:   domain.SourceInference,
		Timeout:  b.t.Inference,
		Retry:    b.t.Retry,
	}
}

func (b builder) genericTier(field domain.FieldID) cascade.Spec {
	return cascade.Spec{
		Strategy: cascade.Generic{Label: string(field) + "_generic", DeriveFn: genericCandidates(field)},
		Source:   domain.SourceGeneric,
	}
}

func (b builder) resolver(field domain.FieldID, deps []domain.FieldID, ex ExclusionPolicy, specs ...cascade.Spec) *Resolver {
	r := New(field, b.ctrl, specs)
	r.DependsOn = deps
	r.Exclusions = ex
	return r
}

// ─── Fields ─────────────────────────────────────────────────────────────────

func (b builder) industry() *Resolver {
	return b.resolver(domain.FieldIndustry, nil, ExclusionPolicy{ClientIdentity: true},
		b.contextTier("industry_descriptor", func(req cascade.Request) (cascade.Candidate, bool) {
			ind := strings.TrimSpace(req.Company.Industry)
			return cascade.Candidate{Value: ind, Reasoning: "industry given with the company record"}, ind != ""
		}),
		b.inspectTier("industry_site", "", func(req cascade.Request, page *inspect.PageSummary) (cascade.Candidate, bool) {
			text := strings.Join(append([]string{page.Title, page.Description}, page.Keywords...), " ")
			vocab := industryVocabulary
			if req.Client != nil {
				vocab = append(append([]string{}, req.Client.TargetIndustries...), industryVocabulary...)
			}
			for _, term := range findTerms(text, vocab) {
				if !req.Excluded.Forbidden(term) {
					return cascade.Candidate{Value: term, Reasoning: fmt.Sprintf("site metadata of %s mentions %s", page.URL, term)}, true
				}
			}
			return cascade.Candidate{}, false
		}),
		b.inferTier(domain.FieldIndustry),
		b.genericTier(domain.FieldIndustry),
	)
}

func (b builder) competitor() *Resolver {
	return b.resolver(domain.FieldCompetitor, []domain.FieldID{domain.FieldIndustry},
		ExclusionPolicy{ClientIdentity: true, ClientCompetitors: true, TargetName: true},
		b.searchTier("competitor_search", func(req cascade.Request) string {
			return strings.TrimSpace(fmt.Sprintf("%s competitors alternatives %s", req.Company.Name, req.Industry()))
		}, func(req cascade.Request, results []search.Result) (cascade.Candidate, bool) {
			t := newTally()
			for _, r := range results {
				for _, text := range []string{r.Title, r.Snippet} {
					for _, n := range versusNames(text, req.Company.Name) {
						t.add(n)
					}
					for _, n := range listedAlternatives(text, req.Company.Name) {
						t.add(n)
					}
				}
			}
			name, count, ok := t.best(req.Excluded)
			return cascade.Candidate{
				Value:     name,
				Reasoning: fmt.Sprintf("compared with %s in %d search result(s)", req.Company.Name, count),
			}, ok
		}),
		b.inspectTier("competitor_site", "", func(req cascade.Request, page *inspect.PageSummary) (cascade.Candidate, bool) {
			t := newTally()
			texts := append([]string{page.Title}, page.Headings...)
			for _, l := range page.Links {
				texts = append(texts, l.Text)
			}
			for _, text := range texts {
				for _, n := range versusNames(text, req.Company.Name) {
					t.add(n)
				}
			}
			name, _, ok := t.best(req.Excluded)
			return cascade.Candidate{Value: name, Reasoning: fmt.Sprintf("comparison page linked from %s", page.URL)}, ok
		}),
		b.inferTier(domain.FieldCompetitor),
		b.genericTier(domain.FieldCompetitor),
	)
}

func (b builder) persona() *Resolver {
	return b.resolver(domain.FieldPersona, []domain.FieldID{domain.FieldIndustry}, ExclusionPolicy{ClientIdentity: true},
		b.searchTier("persona_search", func(req cascade.Request) string {
			return fmt.Sprintf("%s head of sales VP marketing team", req.Company.Name)
		}, func(req cascade.Request, results []search.Result) (cascade.Candidate, bool) {
			t := newTally()
			for _, r := range results {
				for _, title := range findTerms(r.Title+" "+r.Snippet, personaTitles) {
					t.add(title)
				}
			}
			title, count, ok := t.best(req.Excluded)
			return cascade.Candidate{Value: title, Reasoning: fmt.Sprintf("title seen in %d search result(s)", count)}, ok
		}),
		b.inspectTier("persona_team_page", "/about", func(req cascade.Request, page *inspect.PageSummary) (cascade.Candidate, bool) {
			for _, title := range findTerms(strings.Join(page.Headings, " ")+" "+page.Text, personaTitles) {
				if !req.Excluded.Forbidden(title) {
					return cascade.Candidate{Value: title, Reasoning: fmt.Sprintf("listed on %s", page.URL)}, true
				}
			}
			return cascade.Candidate{}, false
		}),
		b.inferTier(domain.FieldPersona),
		b.genericTier(domain.FieldPersona),
	)
}

func (b builder) painPoint() *Resolver {
	return b.resolver(domain.FieldPainPoint, []domain.FieldID{domain.FieldIndustry, domain.FieldPersona}, ExclusionPolicy{},
		b.contextTier("pain_from_client", func(req cascade.Request) (cascade.Candidate, bool) {
			if req.Client == nil || len(req.Client.PainCategories) == 0 {
				return cascade.Candidate{}, false
			}
			industry := req.Industry()
			for _, target := range req.Client.TargetIndustries {
				if industry != "" && (strings.EqualFold(target, industry) || overlaps(target, industry)) {
					return cascade.Candidate{
						Value:     req.Client.PainCategories[0],
						Reasoning: fmt.Sprintf("%s is a target industry of the client", industry),
					}, true
				}
			}
			return cascade.Candidate{}, false
		}),
		b.inspectTier("pain_site", "", func(req cascade.Request, page *inspect.PageSummary) (cascade.Candidate, bool) {
			if req.Client == nil {
				return cascade.Candidate{}, false
			}
			text := page.Description + " " + strings.Join(page.Headings, " ")
			for _, pain := range req.Client.PainCategories {
				if overlaps(pain, text) {
					return cascade.Candidate{Value: pain, Reasoning: fmt.Sprintf("%s talks about it", page.URL)}, true
				}
			}
			return cascade.Candidate{}, false
		}),
		b.inferTier(domain.FieldPainPoint),
		b.genericTier(domain.FieldPainPoint),
	)
}

var hiringTerms = []string{"open positions", "open roles", "join our team", "we're hiring", "we are hiring", "job openings"}

func (b builder) signal() *Resolver {
	return b.resolver(domain.FieldSignal, []domain.FieldID{domain.FieldIndustry}, ExclusionPolicy{},
		b.searchTier("signal_news", func(req cascade.Request) string {
			return fmt.Sprintf("%s news funding hiring launch", req.Company.Name)
		}, func(req cascade.Request, results []search.Result) (cascade.Candidate, bool) {
			for _, r := range results {
				if !hasSignal(r.Title + " " + r.Snippet) {
					continue
				}
				v := truncate(r.Title, 120)
				if v == "" || req.Excluded.Forbidden(v) {
					continue
				}
				return cascade.Candidate{Value: v, Reasoning: fmt.Sprintf("reported at %s", r.URL)}, true
			}
			return cascade.Candidate{}, false
		}),
		b.inspectTier("signal_careers", "/careers", func(req cascade.Request, page *inspect.PageSummary) (cascade.Candidate, bool) {
			text := page.Title + " " + strings.Join(page.Headings, " ") + " " + page.Text
			if len(findTerms(text, hiringTerms)) == 0 {
				return cascade.Candidate{}, false
			}
			return cascade.Candidate{Value: "actively hiring", Reasoning: fmt.Sprintf("open roles listed on %s", page.URL)}, true
		}),
		b.inferTier(domain.FieldSignal),
		b.genericTier(domain.FieldSignal),
	)
}

func (b builder) techStack() *Resolver {
	return b.resolver(domain.FieldTechStack, []domain.FieldID{domain.FieldIndustry}, ExclusionPolicy{ClientIdentity: true},
		b.inspectTier("tech_site", "", func(req cascade.Request, page *inspect.PageSummary) (cascade.Candidate, bool) {
			for _, tech := range page.Technologies {
				if !req.Excluded.Forbidden(tech) {
					return cascade.Candidate{Value: tech, Reasoning: fmt.Sprintf("detected on %s", page.URL)}, true
				}
			}
			return cascade.Candidate{}, false
		}),
		b.searchTier("tech_search", func(req cascade.Request) string {
			return fmt.Sprintf("%s tech stack built with", req.Company.Name)
		}, func(req cascade.Request, results []search.Result) (cascade.Candidate, bool) {
			t := newTally()
			for _, r := range results {
				for _, tech := range findTerms(r.Title+" "+r.Snippet, inspect.KnownTechnologies()) {
					t.add(tech)
				}
			}
			tech, count, ok := t.best(req.Excluded)
			return cascade.Candidate{Value: tech, Reasoning: fmt.Sprintf("mentioned in %d search result(s)", count)}, ok
		}),
		b.inferTier(domain.FieldTechStack),
		b.genericTier(domain.FieldTechStack),
	)
}

func (b builder) proof() *Resolver {
	return b.resolver(domain.FieldProof, []domain.FieldID{domain.FieldIndustry}, ExclusionPolicy{},
		b.contextTier("case_study_same_industry", func(req cascade.Request) (cascade.Candidate, bool) {
			industry := strings.TrimSpace(req.Industry())
			if req.Client == nil || industry == "" {
				return cascade.Candidate{}, false
			}
			for _, cs := range req.Client.CaseStudies {
				if strings.EqualFold(strings.TrimSpace(cs.Industry), industry) {
					return cascade.Candidate{Value: formatProof(cs), Reasoning: fmt.Sprintf("case study in %s", cs.Industry)}, true
				}
			}
			return cascade.Candidate{}, false
		}),
		b.contextTier("case_study_related_industry", func(req cascade.Request) (cascade.Candidate, bool) {
			industry := req.Industry()
			if req.Client == nil || industry == "" {
				return cascade.Candidate{}, false
			}
			for _, cs := range req.Client.CaseStudies {
				if overlaps(cs.Industry, industry) {
					return cascade.Candidate{Value: formatProof(cs), Reasoning: fmt.Sprintf("%s is close to %s", cs.Industry, industry)}, true
				}
			}
			return cascade.Candidate{}, false
		}),
		b.inferTier(domain.FieldProof),
		b.genericTier(domain.FieldProof),
	)
}
