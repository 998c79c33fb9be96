// Package orchestrator resolves every field of an outreach email for
// one target company and records the result in the session ledger.
//
// Resolvers run concurrently. A resolver that depends on other fields
// waits for exactly those fields and nothing else, so unrelated
// resolvers never block each other. The whole run is bounded by a
// global deadline; a resolver still busy when it expires finishes at
// its generic tier instead of leaving the field empty.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Tegath/kaleads/internal/cascade"
	"github.com/Tegath/kaleads/internal/clientctx"
	"github.com/Tegath/kaleads/internal/domain"
	"github.com/Tegath/kaleads/internal/ledger"
	"github.com/Tegath/kaleads/internal/quality"
	"github.com/Tegath/kaleads/internal/resolvers"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrLedger wraps ledger failures. The record is still returned with it.
var ErrLedger = errors.New("ledger append failed")

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// newID generates record ids; tests pin it.
var newID = uuid.NewString

// Config holds orchestration settings.
type Config struct {
	// Deadline bounds one Generate call. Zero means no global deadline.
	Deadline time.Duration
}

// DefaultConfig returns the default orchestration settings.
func DefaultConfig() Config {
	return Config{Deadline: 60 * time.Second}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithScorer replaces the default weighted scorer.
func WithScorer(s quality.Scorer) Option {
	return func(o *Orchestrator) { o.scorer = s }
}

// WithLedger sets where records are appended. Without one, records are
// returned but not persisted.
func WithLedger(l ledger.Ledger) Option {
	return func(o *Orchestrator) { o.ledger = l }
}

// WithClients sets the provider used by GenerateFor.
func WithClients(p clientctx.Provider) Option {
	return func(o *Orchestrator) { o.clients = p }
}

// WithLogger sets the logger. Nil discards output.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// Orchestrator runs a resolver catalogue.
type Orchestrator struct {
	cfg       Config
	resolvers []*resolvers.Resolver
	byField   map[domain.FieldID]*resolvers.Resolver
	scorer    quality.Scorer
	ledger    ledger.Ledger
	clients   clientctx.Provider
	logger    *zap.Logger
}

// New validates the resolver graph and returns an Orchestrator. Graph
// errors (duplicate field, unknown dependency, cycle) and invalid
// strategy lists are reported as *cascade.ConfigError.
func New(cfg Config, rs []*resolvers.Resolver, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:       cfg,
		resolvers: rs,
		scorer:    quality.NewWeightedScorer(nil),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("orchestrator")

	byField, err := validateGraph(rs)
	if err != nil {
		return nil, err
	}
	o.byField = byField
	return o, nil
}

// Resolvers returns the catalogue in canonical field order.
func (o *Orchestrator) Resolvers() []*resolvers.Resolver {
	out := append([]*resolvers.Resolver(nil), o.resolvers...)
	sort.SliceStable(out, func(i, j int) bool { return fieldRank(out[i].Field) < fieldRank(out[j].Field) })
	return out
}

// Fields lists the fields this orchestrator produces.
func (o *Orchestrator) Fields() []domain.FieldID {
	rs := o.Resolvers()
	out := make([]domain.FieldID, len(rs))
	for i, r := range rs {
		out[i] = r.Field
	}
	return out
}

// GenerateFor loads the client context by id and generates a record.
// An unknown client is a configuration error.
func (o *Orchestrator) GenerateFor(ctx context.Context, contactID, clientID string, company domain.CompanyDescriptor) (*domain.EmailGenerationRecord, error) {
	client, err := o.client(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return o.Generate(ctx, contactID, company, client)
}

// Generate resolves every field for company on behalf of client,
// scores the record and appends it to the ledger without feedback.
//
// The only errors that abort a run are configuration errors. A ledger
// failure is logged and returned wrapped in ErrLedger together with the
// complete record.
func (o *Orchestrator) Generate(ctx context.Context, contactID string, company domain.CompanyDescriptor, client *domain.ClientContext) (*domain.EmailGenerationRecord, error) {
	if strings.TrimSpace(contactID) == "" {
		return nil, fmt.Errorf("orchestrator: contact id is required")
	}
	if err := company.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("orchestrator: client context is required")
	}

	start := time.Now()
	fields, err := o.run(ctx, o.resolvers, company, client)
	if err != nil {
		return nil, err
	}

	record := &domain.EmailGenerationRecord{
		ID:             newID(),
		ContactID:      contactID,
		ClientID:       client.ID,
		Company:        company,
		Fields:         fields,
		QualityScore:   o.scorer.Score(fields),
		GenerationTime: time.Since(start),
		CreatedAt:      timeNow().UTC(),
	}
	if missing := record.Missing(o.Fields()); len(missing) > 0 {
		o.logger.Warn("record has empty fields", zap.String("record", record.ID), zap.Any("fields", missing))
	}

	o.logger.Info("record generated",
		zap.String("record", record.ID),
		zap.String("contact", contactID),
		zap.String("company", company.Name),
		zap.Int("quality", record.QualityScore),
		zap.Duration("elapsed", record.GenerationTime))

	if o.ledger != nil {
		// The caller's context, not the run deadline: a run that used its
		// whole budget must still be recorded.
		if _, err := o.ledger.Append(ctx, contactID, record, nil); err != nil {
			o.logger.Error("ledger append failed", zap.String("record", record.ID), zap.Error(err))
			return record, fmt.Errorf("%w: %v", ErrLedger, err)
		}
	}
	return record, nil
}

// ResolveField resolves one field together with the fields it depends
// on, without scoring or recording anything.
func (o *Orchestrator) ResolveField(ctx context.Context, field domain.FieldID, company domain.CompanyDescriptor, client *domain.ClientContext) (domain.ResolvedField, error) {
	if _, ok := o.byField[field]; !ok {
		return domain.ResolvedField{}, &cascade.ConfigError{Resolver: field, Reason: "no resolver for field"}
	}
	if client == nil {
		client = &domain.ClientContext{}
	}
	fields, err := o.run(ctx, o.closure(field), company, client)
	if err != nil {
		return domain.ResolvedField{}, err
	}
	return fields[field], nil
}

// ResolveFieldFor is ResolveField with the client loaded by id. An empty
// id resolves without client context.
func (o *Orchestrator) ResolveFieldFor(ctx context.Context, field domain.FieldID, clientID string, company domain.CompanyDescriptor) (domain.ResolvedField, error) {
	var client *domain.ClientContext
	if clientID != "" {
		var err error
		if client, err = o.client(ctx, clientID); err != nil {
			return domain.ResolvedField{}, err
		}
	}
	return o.ResolveField(ctx, field, company, client)
}

func (o *Orchestrator) client(ctx context.Context, clientID string) (*domain.ClientContext, error) {
	if o.clients == nil {
		return nil, &cascade.ConfigError{Resolver: "client", Reason: "no client context provider configured"}
	}
	client, err := o.clients.GetClientContext(ctx, clientID)
	if errors.Is(err, clientctx.ErrNotFound) {
		return nil, &cascade.ConfigError{Resolver: "client", Reason: err.Error()}
	}
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load client %s: %w", clientID, err)
	}
	return client, nil
}

// run resolves rs concurrently. Each resolver waits on the completion
// channels of its dependencies only.
func (o *Orchestrator) run(ctx context.Context, rs []*resolvers.Resolver, company domain.CompanyDescriptor, client *domain.ClientContext) (map[domain.FieldID]domain.ResolvedField, error) {
	runCtx := ctx
	if o.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.Deadline)
		defer cancel()
	}

	done := make(map[domain.FieldID]chan struct{}, len(rs))
	for _, r := range rs {
		done[r.Field] = make(chan struct{})
	}

	var (
		mu      sync.Mutex
		results = make(map[domain.FieldID]domain.ResolvedField, len(rs))
	)

	g, gctx := errgroup.WithContext(runCtx)
	for _, r := range rs {
		g.Go(func() error {
			defer close(done[r.Field])

			// Dependencies always complete: a cascade under an expired
			// context goes straight to its generic tier.
			for _, dep := range r.DependsOn {
				<-done[dep]
			}

			mu.Lock()
			deps := make(map[domain.FieldID]domain.ResolvedField, len(r.DependsOn))
			aborted := false
			for _, dep := range r.DependsOn {
				f, ok := results[dep]
				if !ok {
					aborted = true
					break
				}
				deps[dep] = f
			}
			mu.Unlock()
			if aborted {
				// A dependency failed with a configuration error that the
				// group already reports.
				return nil
			}

			f, err := r.ResolveWith(gctx, company, client, deps)
			if err != nil {
				return err
			}
			o.logger.Debug("field resolved",
				zap.String("field", string(f.Field)),
				zap.Int("level", f.FallbackLevel),
				zap.Int("confidence", f.Confidence),
				zap.String("source", string(f.Source)))

			mu.Lock()
			results[r.Field] = f
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// closure returns the resolvers needed to produce field, dependencies
// included.
func (o *Orchestrator) closure(field domain.FieldID) []*resolvers.Resolver {
	seen := map[domain.FieldID]bool{}
	var out []*resolvers.Resolver
	var visit func(domain.FieldID)
	visit = func(f domain.FieldID) {
		if seen[f] {
			return
		}
		seen[f] = true
		r := o.byField[f]
		for _, dep := range r.DependsOn {
			visit(dep)
		}
		out = append(out, r)
	}
	visit(field)
	return out
}

// validateGraph checks every resolver and the dependency graph between
// them.
func validateGraph(rs []*resolvers.Resolver) (map[domain.FieldID]*resolvers.Resolver, error) {
	if len(rs) == 0 {
		return nil, &cascade.ConfigError{Resolver: "catalogue", Reason: "no resolvers"}
	}
	byField := make(map[domain.FieldID]*resolvers.Resolver, len(rs))
	for _, r := range rs {
		if r == nil {
			return nil, &cascade.ConfigError{Resolver: "catalogue", Reason: "nil resolver"}
		}
		if _, dup := byField[r.Field]; dup {
			return nil, &cascade.ConfigError{Resolver: r.Field, Reason: "duplicate resolver for field"}
		}
		if err := r.Validate(); err != nil {
			return nil, err
		}
		byField[r.Field] = r
	}
	for _, r := range rs {
		for _, dep := range r.DependsOn {
			if dep == r.Field {
				return nil, &cascade.ConfigError{Resolver: r.Field, Reason: "depends on itself"}
			}
			if _, ok := byField[dep]; !ok {
				return nil, &cascade.ConfigError{Resolver: r.Field, Reason: fmt.Sprintf("depends on unknown field %q", dep)}
			}
		}
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[domain.FieldID]int, len(rs))
	var visit func(domain.FieldID, []domain.FieldID) error
	visit = func(f domain.FieldID, path []domain.FieldID) error {
		switch state[f] {
		case visiting:
			return &cascade.ConfigError{Resolver: f, Reason: "dependency cycle: " + cyclePath(append(path, f))}
		case visited:
			return nil
		}
		state[f] = visiting
		for _, dep := range byField[f].DependsOn {
			if err := visit(dep, append(path, f)); err != nil {
				return err
			}
		}
		state[f] = visited
		return nil
	}
	for _, r := range rs {
		if err := visit(r.Field, nil); err != nil {
			return nil, err
		}
	}
	return byField, nil
}

func cyclePath(path []domain.FieldID) string {
	parts := make([]string, len(path))
	for i, f := range path {
		parts[i] = string(f)
	}
	return strings.Join(parts, " -> ")
}

func fieldRank(f domain.FieldID) int {
	for i, id := range domain.FieldOrder {
		if id == f {
			return i
		}
	}
	return len(domain.FieldOrder)
}
