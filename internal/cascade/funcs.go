package cascade

import "context"

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc struct {
	Label string
	Fn    func(ctx context.Context, req Request) (Candidate, error)
}

// Name implements Strategy.
func (s StrategyFunc) Name() string { return s.Label }

// Attempt implements Strategy.
func (s StrategyFunc) Attempt(ctx context.Context, req Request) (Candidate, error) {
	return s.Fn(ctx, req)
}

// Generic is a Fallback built from a derivation function.
type Generic struct {
	Label    string
	DeriveFn func(req Request) []Candidate
}

// Name implements Strategy.
func (g Generic) Name() string { return g.Label }

// Attempt implements Strategy by returning the first derived candidate.
func (g Generic) Attempt(_ context.Context, req Request) (Candidate, error) {
	for _, c := range g.Derive(req) {
		if c.Value != "" {
			return c, nil
		}
	}
	return Candidate{}, ErrNoResult
}

// Derive implements Fallback.
func (g Generic) Derive(req Request) []Candidate {
	if g.DeriveFn == nil {
		return nil
	}
	return g.DeriveFn(req)
}
