package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Tegath/kaleads/internal/cascade"
	"github.com/Tegath/kaleads/internal/clientctx"
	"github.com/Tegath/kaleads/internal/domain"
	"github.com/Tegath/kaleads/internal/ledger"
	"github.com/Tegath/kaleads/internal/quality"
	"github.com/Tegath/kaleads/internal/resolvers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- helpers ---

func aircall() domain.CompanyDescriptor {
	return domain.CompanyDescriptor{Name: "Aircall", Website: "https://aircall.io", Industry: "SaaS", Contact: "jane@aircall.io"}
}

func acme() *domain.ClientContext {
	return &domain.ClientContext{
		ID:               "acme",
		Name:             "Acme",
		Competitors:      []string{"Globex"},
		TargetIndustries: []string{"SaaS"},
		PainCategories:   []string{"low connect rates"},
		CaseStudies:      []domain.CaseStudy{{Company: "Front", Industry: "SaaS", Result: "+32% connect rate"}},
	}
}

func fixed(field domain.FieldID, v string, deps ...domain.FieldID) *resolvers.Resolver {
	r := resolvers.New(field, nil, []cascade.Spec{
		{Strategy: cascade.StrategyFunc{Label: string(field) + "_fixed", Fn: func(context.Context, cascade.Request) (cascade.Candidate, error) {
			return cascade.Candidate{Value: v}, nil
		}}, Source: domain.SourceWebSearch, Timeout: time.Second},
		{Strategy: generic(string(field) + " fallback"), Source: domain.SourceGeneric},
	})
	r.DependsOn = deps
	return r
}

func generic(v string) cascade.Generic {
	return cascade.Generic{Label: "generic", DeriveFn: func(cascade.Request) []cascade.Candidate {
		return []cascade.Candidate{{Value: v}}
	}}
}

func defaultCatalogue(t *testing.T) []*resolvers.Resolver {
	t.Helper()
	rs, err := resolvers.Default(resolvers.Services{}, nil, resolvers.DefaultTimeouts(), nil)
	require.NoError(t, err)
	return rs
}

func pinIDs(t *testing.T) {
	t.Helper()
	prevID, prevNow := newID, timeNow
	n := 0
	newID = func() string {
		n++
		return fmt.Sprintf("rec-%d", n)
	}
	timeNow = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { newID, timeNow = prevID, prevNow })
}

type failingLedger struct{ ledger.Ledger }

func (failingLedger) Append(context.Context, string, *domain.EmailGenerationRecord, *domain.FeedbackEntry) (domain.SessionEntry, error) {
	return domain.SessionEntry{}, errors.New("disk full")
}

// --- Generate ---

func TestGenerate_RecordIsComplete(t *testing.T) {
	led := ledger.NewMemory()
	o, err := New(DefaultConfig(), defaultCatalogue(t), WithLedger(led))
	require.NoError(t, err)

	rec, err := o.Generate(context.Background(), "jane", aircall(), acme())
	require.NoError(t, err)

	assert.Empty(t, rec.Missing(domain.FieldOrder))
	assert.Len(t, rec.Fields, len(domain.FieldOrder))
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "acme", rec.ClientID)
	for id, f := range rec.Fields {
		assert.Equal(t, id, f.Field)
		lo, hi := domain.ConfidenceBand(f.FallbackLevel)
		assert.GreaterOrEqual(t, f.Confidence, lo, "field %s", id)
		assert.LessOrEqual(t, f.Confidence, hi, "field %s", id)
	}

	h, err := led.ReadHistory(context.Background(), "jane")
	require.NoError(t, err)
	require.Len(t, h.Entries, 1)
	assert.Equal(t, rec.ID, h.Entries[0].Record.ID)
	assert.Nil(t, h.Entries[0].Feedback)
}

func TestGenerate_DegradedPersonaLowersQuality(t *testing.T) {
	// Scenario: every external service is down, persona ends at its
	// generic tier and the quality score carries the persona penalty.
	o, err := New(DefaultConfig(), defaultCatalogue(t))
	require.NoError(t, err)

	rec, err := o.Generate(context.Background(), "jane", aircall(), acme())
	require.NoError(t, err)

	persona := rec.Fields[domain.FieldPersona]
	assert.Equal(t, "VP of Sales", persona.Value)
	assert.Equal(t, domain.MaxFallbackLevel, persona.FallbackLevel)
	assert.Equal(t, 1, persona.Confidence)
	assert.Equal(t, domain.SourceGeneric, persona.Source)

	better := make(map[domain.FieldID]domain.ResolvedField, len(rec.Fields))
	for k, v := range rec.Fields {
		better[k] = v
	}
	persona.Confidence, persona.FallbackLevel = 5, 0
	better[domain.FieldPersona] = persona

	scorer := quality.NewWeightedScorer(nil)
	assert.Equal(t, scorer.Score(rec.Fields), rec.QualityScore)
	assert.Less(t, rec.QualityScore, scorer.Score(better))
}

func TestGenerate_DeterministicForSameInputs(t *testing.T) {
	o, err := New(DefaultConfig(), defaultCatalogue(t))
	require.NoError(t, err)

	a, err := o.Generate(context.Background(), "jane", aircall(), acme())
	require.NoError(t, err)
	b, err := o.Generate(context.Background(), "jane", aircall(), acme())
	require.NoError(t, err)

	assert.Equal(t, a.QualityScore, b.QualityScore)
	for _, id := range domain.FieldOrder {
		assert.Equal(t, a.Fields[id].Value, b.Fields[id].Value, "field %s", id)
		assert.Equal(t, a.Fields[id].Confidence, b.Fields[id].Confidence, "field %s", id)
	}
	assert.NotEqual(t, a.ID, b.ID)
}

func TestGenerate_DependentSeesDependencyValue(t *testing.T) {
	var seen string
	pain := resolvers.New(domain.FieldPainPoint, nil, []cascade.Spec{
		{Strategy: cascade.StrategyFunc{Label: "pain", Fn: func(_ context.Context, req cascade.Request) (cascade.Candidate, error) {
			seen = req.Dependency(domain.FieldPersona) + "@" + req.Industry()
			return cascade.Candidate{Value: "slow onboarding"}, nil
		}}, Source: domain.SourceInference, Timeout: time.Second},
		{Strategy: generic("growth"), Source: domain.SourceGeneric},
	})
	pain.DependsOn = []domain.FieldID{domain.FieldIndustry, domain.FieldPersona}

	o, err := New(Config{}, []*resolvers.Resolver{
		pain,
		fixed(domain.FieldPersona, "Head of Sales", domain.FieldIndustry),
		fixed(domain.FieldIndustry, "Telephony"),
	})
	require.NoError(t, err)

	rec, err := o.Generate(context.Background(), "jane", aircall(), acme())
	require.NoError(t, err)
	assert.Equal(t, "Head of Sales@Telephony", seen)
	assert.Equal(t, "slow onboarding", rec.Fields[domain.FieldPainPoint].Value)
}

func TestGenerate_UnrelatedResolversRunConcurrently(t *testing.T) {
	// Both strategies block until the other has started; sequential
	// scheduling would hit the strategy timeout instead.
	var wg sync.WaitGroup
	wg.Add(2)
	barrier := func(field domain.FieldID) *resolvers.Resolver {
		return resolvers.New(field, nil, []cascade.Spec{
			{Strategy: cascade.StrategyFunc{Label: "barrier", Fn: func(ctx context.Context, _ cascade.Request) (cascade.Candidate, error) {
				wg.Done()
				ch := make(chan struct{})
				go func() { wg.Wait(); close(ch) }()
				select {
				case <-ch:
					return cascade.Candidate{Value: "met"}, nil
				case <-ctx.Done():
					return cascade.Candidate{}, ctx.Err()
				}
			}}, Source: domain.SourceWebSearch, Timeout: 2 * time.Second},
			{Strategy: generic("missed"), Source: domain.SourceGeneric},
		})
	}

	o, err := New(Config{}, []*resolvers.Resolver{barrier(domain.FieldSignal), barrier(domain.FieldTechStack)})
	require.NoError(t, err)

	rec, err := o.Generate(context.Background(), "jane", aircall(), acme())
	require.NoError(t, err)
	assert.Equal(t, "met", rec.Fields[domain.FieldSignal].Value)
	assert.Equal(t, "met", rec.Fields[domain.FieldTechStack].Value)
}

func TestGenerate_GlobalDeadlineForcesGeneric(t *testing.T) {
	slow := resolvers.New(domain.FieldSignal, nil, []cascade.Spec{
		{Strategy: cascade.StrategyFunc{Label: "slow", Fn: func(ctx context.Context, _ cascade.Request) (cascade.Candidate, error) {
			<-ctx.Done()
			return cascade.Candidate{}, ctx.Err()
		}}, Source: domain.SourceWebSearch, Timeout: 10 * time.Second},
		{Strategy: cascade.StrategyFunc{Label: "never", Fn: func(context.Context, cascade.Request) (cascade.Candidate, error) {
			return cascade.Candidate{Value: "too late"}, nil
		}}, Source: domain.SourceInference, Timeout: 10 * time.Second},
		{Strategy: generic("no recent news"), Source: domain.SourceGeneric},
	})

	o, err := New(Config{Deadline: 50 * time.Millisecond}, []*resolvers.Resolver{slow, fixed(domain.FieldIndustry, "SaaS")})
	require.NoError(t, err)

	start := time.Now()
	rec, err := o.Generate(context.Background(), "jane", aircall(), acme())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	f := rec.Fields[domain.FieldSignal]
	assert.Equal(t, "no recent news", f.Value)
	assert.Equal(t, domain.MaxFallbackLevel, f.FallbackLevel)
	assert.Equal(t, 1, f.CountOutcome(domain.OutcomeSkipped))
	assert.Equal(t, "SaaS", rec.Fields[domain.FieldIndustry].Value)
}

func TestGenerate_LedgerFailureStillReturnsRecord(t *testing.T) {
	pinIDs(t)
	o, err := New(Config{}, []*resolvers.Resolver{fixed(domain.FieldIndustry, "SaaS")}, WithLedger(failingLedger{}))
	require.NoError(t, err)

	rec, err := o.Generate(context.Background(), "jane", aircall(), acme())
	require.ErrorIs(t, err, ErrLedger)
	require.NotNil(t, rec)
	assert.Equal(t, "rec-1", rec.ID)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), rec.CreatedAt)
}

func TestGenerate_InputValidation(t *testing.T) {
	o, err := New(Config{}, []*resolvers.Resolver{fixed(domain.FieldIndustry, "SaaS")})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = o.Generate(ctx, "", aircall(), acme())
	assert.Error(t, err)
	_, err = o.Generate(ctx, "jane", domain.CompanyDescriptor{}, acme())
	assert.Error(t, err)
	_, err = o.Generate(ctx, "jane", aircall(), nil)
	assert.Error(t, err)
}

func TestGenerate_ConfigErrorAborts(t *testing.T) {
	bad := fixed(domain.FieldSignal, "x")
	o, err := New(Config{}, []*resolvers.Resolver{fixed(domain.FieldIndustry, "SaaS"), bad})
	require.NoError(t, err)
	// Break the strategy list after construction to reach the runtime path.
	bad.Specs = nil

	_, err = o.Generate(context.Background(), "jane", aircall(), acme())
	require.Error(t, err)
	assert.True(t, cascade.IsConfigError(err))
}

// --- GenerateFor / ResolveField ---

func TestGenerateFor(t *testing.T) {
	clients := clientctx.NewMemory(*acme())
	o, err := New(Config{}, []*resolvers.Resolver{fixed(domain.FieldIndustry, "SaaS")}, WithClients(clients))
	require.NoError(t, err)

	rec, err := o.GenerateFor(context.Background(), "jane", "acme", aircall())
	require.NoError(t, err)
	assert.Equal(t, "acme", rec.ClientID)

	_, err = o.GenerateFor(context.Background(), "jane", "initech", aircall())
	require.Error(t, err)
	assert.True(t, cascade.IsConfigError(err))
}

func TestResolveFieldFor(t *testing.T) {
	clients := clientctx.NewMemory(*acme())
	o, err := New(Config{}, []*resolvers.Resolver{fixed(domain.FieldIndustry, "SaaS")}, WithClients(clients))
	require.NoError(t, err)

	f, err := o.ResolveFieldFor(context.Background(), domain.FieldIndustry, "acme", aircall())
	require.NoError(t, err)
	assert.Equal(t, "SaaS", f.Value)

	f, err = o.ResolveFieldFor(context.Background(), domain.FieldIndustry, "", aircall())
	require.NoError(t, err)
	assert.Equal(t, "SaaS", f.Value)

	_, err = o.ResolveFieldFor(context.Background(), domain.FieldIndustry, "initech", aircall())
	assert.True(t, cascade.IsConfigError(err))
}

func TestResolveField_RunsOnlyTheClosure(t *testing.T) {
	var calls sync.Map
	counting := func(field domain.FieldID, v string, deps ...domain.FieldID) *resolvers.Resolver {
		r := fixed(field, v, deps...)
		inner := r.Specs[0].Strategy
		r.Specs[0].Strategy = cascade.StrategyFunc{Label: inner.Name(), Fn: func(ctx context.Context, req cascade.Request) (cascade.Candidate, error) {
			calls.Store(field, true)
			return inner.Attempt(ctx, req)
		}}
		return r
	}

	o, err := New(Config{}, []*resolvers.Resolver{
		counting(domain.FieldIndustry, "SaaS"),
		counting(domain.FieldPersona, "VP Sales", domain.FieldIndustry),
		counting(domain.FieldSignal, "funding"),
	})
	require.NoError(t, err)

	f, err := o.ResolveField(context.Background(), domain.FieldPersona, aircall(), nil)
	require.NoError(t, err)
	assert.Equal(t, "VP Sales", f.Value)

	_, industry := calls.Load(domain.FieldIndustry)
	_, signal := calls.Load(domain.FieldSignal)
	assert.True(t, industry)
	assert.False(t, signal)

	_, err = o.ResolveField(context.Background(), domain.FieldProof, aircall(), nil)
	assert.True(t, cascade.IsConfigError(err))
}

// --- graph validation ---

func TestNew_GraphErrors(t *testing.T) {
	tests := []struct {
		name string
		rs   []*resolvers.Resolver
		want string
	}{
		{"empty", nil, "no resolvers"},
		{"duplicate", []*resolvers.Resolver{fixed(domain.FieldIndustry, "a"), fixed(domain.FieldIndustry, "b")}, "duplicate"},
		{"unknown dependency", []*resolvers.Resolver{fixed(domain.FieldPersona, "a", domain.FieldIndustry)}, "unknown field"},
		{"self dependency", []*resolvers.Resolver{fixed(domain.FieldPersona, "a", domain.FieldPersona)}, "itself"},
		{"cycle", []*resolvers.Resolver{
			fixed(domain.FieldPersona, "a", domain.FieldPainPoint),
			fixed(domain.FieldPainPoint, "b", domain.FieldSignal),
			fixed(domain.FieldSignal, "c", domain.FieldPersona),
		}, "cycle"},
		{"invalid cascade", []*resolvers.Resolver{resolvers.New(domain.FieldIndustry, nil, nil)}, "empty strategy list"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{}, tt.rs)
			require.Error(t, err)
			assert.True(t, cascade.IsConfigError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestResolvers_CanonicalOrder(t *testing.T) {
	o, err := New(Config{}, []*resolvers.Resolver{
		fixed(domain.FieldProof, "p"),
		fixed(domain.FieldIndustry, "i"),
		fixed(domain.FieldSignal, "s"),
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.FieldID{domain.FieldIndustry, domain.FieldSignal, domain.FieldProof}, o.Fields())
}
