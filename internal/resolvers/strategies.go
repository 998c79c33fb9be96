package resolvers

import (
	"context"
	"fmt"
	"strings"

	"github.com/Tegath/kaleads/internal/cascade"
	"github.com/Tegath/kaleads/internal/domain"
	"github.com/Tegath/kaleads/internal/prompts"
	"github.com/Tegath/kaleads/internal/services/inference"
	"github.com/Tegath/kaleads/internal/services/inspect"
	"github.com/Tegath/kaleads/internal/services/search"
)

// ─── Web search ─────────────────────────────────────────────────────────────

// SearchStrategy queries the search service and extracts a value from
// the hits.
type SearchStrategy struct {
	Label    string
	Searcher search.Searcher
	Query    func(req cascade.Request) string
	Extract  func(req cascade.Request, results []search.Result) (cascade.Candidate, bool)
}

// Name implements cascade.Strategy.
func (s *SearchStrategy) Name() string { return s.Label }

// Attempt implements cascade.Strategy.
func (s *SearchStrategy) Attempt(ctx context.Context, req cascade.Request) (cascade.Candidate, error) {
	query := strings.TrimSpace(s.Query(req))
	if query == "" {
		return cascade.Candidate{}, cascade.ErrNoResult
	}
	results, err := s.Searcher.Search(ctx, query)
	if err != nil {
		return cascade.Candidate{}, err
	}
	if len(results) == 0 {
		return cascade.Candidate{}, cascade.ErrNoResult
	}
	cand, ok := s.Extract(req, results)
	if !ok {
		return cascade.Candidate{}, cascade.ErrNoResult
	}
	return cand, nil
}

// ─── Site inspection ────────────────────────────────────────────────────────

// InspectStrategy inspects a page of the target's website. Companies
// without a website yield no result.
type InspectStrategy struct {
	Label     string
	Inspector inspect.Inspector
	// Path is appended to the site root, e.g. "/careers". Empty means the home page.
	Path    string
	Extract func(req cascade.Request, page *inspect.PageSummary) (cascade.Candidate, bool)
}

// Name implements cascade.Strategy.
func (s *InspectStrategy) Name() string { return s.Label }

// Attempt implements cascade.Strategy.
func (s *InspectStrategy) Attempt(ctx context.Context, req cascade.Request) (cascade.Candidate, error) {
	if strings.TrimSpace(req.Company.Website) == "" {
		return cascade.Candidate{}, cascade.ErrNoResult
	}
	root, err := inspect.NormalizeURL(req.Company.Website)
	if err != nil {
		return cascade.Candidate{}, cascade.ErrNoResult
	}
	page, err := s.Inspector.Inspect(ctx, strings.TrimSuffix(root, "/")+s.Path)
	if err != nil {
		return cascade.Candidate{}, err
	}
	if page == nil {
		return cascade.Candidate{}, cascade.ErrNoResult
	}
	cand, ok := s.Extract(req, page)
	if !ok {
		return cascade.Candidate{}, cascade.ErrNoResult
	}
	return cand, nil
}

// ─── Inference ──────────────────────────────────────────────────────────────

// InferenceStrategy renders the field's prompt and asks the model for a
// structured answer.
type InferenceStrategy struct {
	Label     string
	Completer inference.Completer
	Prompts   *prompts.Catalogue
}

// Name implements cascade.Strategy.
func (s *InferenceStrategy) Name() string { return s.Label }

// Attempt implements cascade.Strategy.
func (s *InferenceStrategy) Attempt(ctx context.Context, req cascade.Request) (cascade.Candidate, error) {
	text, err := s.Prompts.Render(req.Field, promptData(req))
	if err != nil {
		return cascade.Candidate{}, err
	}
	out, err := s.Completer.Complete(ctx, text, inference.FieldSchema)
	if err != nil {
		return cascade.Candidate{}, err
	}
	value := inference.String(out, "value")
	if value == "" {
		return cascade.Candidate{}, cascade.ErrNoResult
	}
	adj := inference.Int(out, "confidence_adjustment")
	if adj > 0 {
		adj = 0
	}
	return cascade.Candidate{
		Value:                value,
		ConfidenceAdjustment: adj,
		Reasoning:            inference.String(out, "reasoning"),
	}, nil
}

func promptData(req cascade.Request) prompts.Data {
	data := prompts.Data{
		Company:  req.Company,
		Industry: req.Industry(),
		Resolved: make(map[string]string, len(req.Resolved)),
		Excluded: req.Excluded.Values(),
	}
	if req.Client != nil {
		data.Client = *req.Client
	}
	for _, id := range domain.FieldOrder {
		if f, ok := req.Resolved[id]; ok {
			data.Resolved[string(id)] = f.Value
			data.Evidence = append(data.Evidence, fmt.Sprintf("%s: %s", id, f.Value))
		}
	}
	return data
}
