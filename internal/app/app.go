// Package app is the composition root: it turns a Config into the
// shared services, the resolver catalogue, the orchestrator, the
// ledger and the feedback analyzer, and exposes the operator
// operations both the MCP and the HTTP surfaces call.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/Tegath/kaleads/internal/cascade"
	"github.com/Tegath/kaleads/internal/clientctx"
	"github.com/Tegath/kaleads/internal/config"
	"github.com/Tegath/kaleads/internal/domain"
	"github.com/Tegath/kaleads/internal/feedback"
	"github.com/Tegath/kaleads/internal/ledger"
	"github.com/Tegath/kaleads/internal/orchestrator"
	"github.com/Tegath/kaleads/internal/prompts"
	"github.com/Tegath/kaleads/internal/quality"
	"github.com/Tegath/kaleads/internal/resolvers"
	"github.com/Tegath/kaleads/internal/services/inference"
	"github.com/Tegath/kaleads/internal/services/inspect"
	"github.com/Tegath/kaleads/internal/services/search"
	"go.uber.org/zap"
)

// App holds every long-lived component of a kaleads process.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	Prompts      *prompts.Catalogue
	Scorer       quality.Scorer
	Clients      clientctx.Provider
	Ledger       ledger.Archive
	Orchestrator *orchestrator.Orchestrator
	Analyzer     *feedback.Analyzer
}

// Overrides replace components built from Config. Tests use them to
// run without network access.
type Overrides struct {
	Services *resolvers.Services
	Clients  clientctx.Provider
	Ledger   ledger.Archive
}

// New builds an App. The returned cleanup releases the ledger and the
// browser, if any, and must be called once the App is no longer used.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, func(), error) {
	return NewWith(ctx, cfg, logger, Overrides{})
}

// NewWith is New with some components supplied by the caller.
func NewWith(ctx context.Context, cfg *config.Config, logger *zap.Logger, ov Overrides) (*App, func(), error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("cleanup failed", zap.Error(err))
			}
		}
	}
	fail := func(err error) (*App, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	catalogue, err := loadPrompts(cfg.Prompts.File)
	if err != nil {
		return fail(err)
	}

	var svc resolvers.Services
	if ov.Services != nil {
		svc = *ov.Services
	} else {
		var closeSvc func() error
		svc, closeSvc, err = buildServices(ctx, cfg, logger)
		closers = append(closers, closeSvc)
		if err != nil {
			return fail(err)
		}
	}

	scorer, err := BuildScorer(cfg.Quality)
	if err != nil {
		return fail(err)
	}

	clients := ov.Clients
	if clients == nil {
		if err := os.MkdirAll(cfg.Clients.Dir, 0o700); err != nil {
			return fail(fmt.Errorf("app: create client directory: %w", err))
		}
		dir, err := clientctx.NewDir(cfg.Clients.Dir)
		if err != nil {
			return fail(fmt.Errorf("app: %w", err))
		}
		clients = dir
	}

	archive := ov.Ledger
	if archive == nil {
		var closeLedger func() error
		archive, closeLedger, err = buildLedger(cfg.Ledger)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, closeLedger)
	}

	timeouts := resolvers.Timeouts{
		Context:   cfg.Cascade.ContextTimeout,
		Search:    cfg.Cascade.SearchTimeout,
		Inspect:   cfg.Cascade.InspectTimeout,
		Inference: cfg.Cascade.InferenceTimeout,
		Retry:     cfg.Cascade.Retry,
	}
	rs, err := resolvers.Default(svc, catalogue, timeouts, cascade.NewController(logger))
	if err != nil {
		return fail(fmt.Errorf("app: resolver catalogue: %w", err))
	}

	orch, err := orchestrator.New(
		orchestrator.Config{Deadline: cfg.Orchestrator.Deadline},
		rs,
		orchestrator.WithScorer(scorer),
		orchestrator.WithLedger(archive),
		orchestrator.WithClients(clients),
		orchestrator.WithLogger(logger),
	)
	if err != nil {
		return fail(err)
	}

	fbCfg := feedback.DefaultConfig()
	fbCfg.Threshold = cfg.Feedback.Threshold
	fbCfg.Refine = cfg.Feedback.Refine
	if cfg.Feedback.RefineTimeout > 0 {
		fbCfg.RefineTimeout = cfg.Feedback.RefineTimeout
	}
	analyzer := feedback.NewAnalyzer(fbCfg, nil, catalogue, svc.Inference, logger)

	a := &App{
		Config:       cfg,
		Logger:       logger,
		Prompts:      catalogue,
		Scorer:       scorer,
		Clients:      clients,
		Ledger:       archive,
		Orchestrator: orch,
		Analyzer:     analyzer,
	}
	return a, cleanup, nil
}

func loadPrompts(file string) (*prompts.Catalogue, error) {
	if file == "" {
		return prompts.Default()
	}
	c, err := prompts.LoadFile(file)
	if err != nil {
		return nil, fmt.Errorf("app: prompts: %w", err)
	}
	return c, nil
}

// buildServices creates the process-wide external clients. Disabled
// services are left nil and replaced by stubs in the resolvers.
func buildServices(ctx context.Context, cfg *config.Config, logger *zap.Logger) (resolvers.Services, func() error, error) {
	var svc resolvers.Services
	closeFn := func() error { return nil }
	client := &http.Client{}

	if cfg.Search.Enabled {
		svc.Search = search.NewDuckDuckGo(search.Config{
			BaseURL:           cfg.Search.BaseURL,
			MaxResults:        cfg.Search.MaxResults,
			RequestsPerSecond: cfg.Search.RequestsPerSecond,
			Burst:             cfg.Search.Burst,
			UserAgent:         cfg.Search.UserAgent,
		}, client, logger)
	}

	if cfg.Inspect.Enabled {
		switch cfg.Inspect.Mode {
		case "browser":
			b := inspect.NewBrowserInspector(inspect.BrowserConfig{
				DebuggerURL: cfg.Inspect.BrowserURL,
				Bin:         cfg.Inspect.BrowserBin,
				Headless:    cfg.Inspect.Headless,
				SettleDelay: cfg.Inspect.SettleDelay,
			}, logger)
			svc.Inspect = b
			closeFn = b.Close
		default:
			svc.Inspect = inspect.NewHTTPInspector(client, cfg.Inspect.RequestsPerSecond, logger)
		}
	}

	if cfg.Inference.Enabled {
		g, err := inference.NewGemini(ctx, inference.GeminiConfig{
			APIKey:            cfg.Inference.APIKey,
			Model:             cfg.Inference.Model,
			Temperature:       cfg.Inference.Temperature,
			RequestsPerMinute: cfg.Inference.RequestsPerMinute,
		}, logger)
		if err != nil {
			return svc, closeFn, fmt.Errorf("app: %w", err)
		}
		svc.Inference = g
	}
	return svc, closeFn, nil
}

func buildLedger(cfg config.LedgerConfig) (ledger.Archive, func() error, error) {
	if cfg.Driver == "memory" {
		return ledger.NewMemory(), func() error { return nil }, nil
	}
	store, err := ledger.New(ledger.Config{DataDir: cfg.DataDir, MaxHistory: cfg.MaxHistory})
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// BuildScorer applies the configured weight and penalty overrides to the
// default weighting. A CEL expression, when set, replaces the weighted
// formula.
func BuildScorer(cfg config.QualityConfig) (quality.Scorer, error) {
	weights := quality.DefaultWeights()
	for i := range weights {
		key := string(weights[i].Field)
		if w, ok := cfg.Weights[key]; ok {
			weights[i].Weight = w
		}
		if p, ok := cfg.Penalties[key]; ok {
			weights[i].Penalty = p
		}
	}
	if strings.TrimSpace(cfg.Expression) == "" {
		return quality.NewWeightedScorer(weights), nil
	}
	s, err := quality.NewCELScorer(cfg.Expression, weights)
	if err != nil {
		return nil, fmt.Errorf("app: quality expression: %w", err)
	}
	return s, nil
}

// ─── Operations ─────────────────────────────────────────────────────────────

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Review is the outcome of one feedback submission.
type Review struct {
	Entry    domain.SessionEntry         `json:"entry"`
	Proposal *domain.ImprovementProposal `json:"proposal"`
}

// Review analyzes feedback on a stored record and appends both the
// feedback and the resulting proposal to the record's session.
func (a *App) Review(ctx context.Context, recordID string, entry *domain.FeedbackEntry) (*Review, error) {
	record, err := a.Ledger.FindRecord(ctx, recordID)
	if errors.Is(err, ledger.ErrRecordNotFound) {
		return nil, fmt.Errorf("record %s: %w", recordID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	proposal, err := a.Analyzer.Analyze(ctx, record, entry)
	if err != nil {
		return nil, err
	}
	se, err := a.Ledger.AppendReview(ctx, record.ContactID, record, entry, proposal)
	if err != nil {
		return nil, fmt.Errorf("recording review: %w", err)
	}
	return &Review{Entry: se, Proposal: proposal}, nil
}

// History is a contact's session with the comparison of its last two
// iterations, when there are two.
type History struct {
	Session    *domain.Session    `json:"session"`
	Terminal   bool               `json:"terminal"`
	Comparison *ledger.Comparison `json:"comparison,omitempty"`
}

// History reads a contact's session.
func (a *App) History(ctx context.Context, contactID string) (*History, error) {
	if strings.TrimSpace(contactID) == "" {
		return nil, fmt.Errorf("contact id is required")
	}
	s, err := a.Ledger.ReadHistory(ctx, contactID)
	if err != nil {
		return nil, err
	}
	h := &History{Session: s, Terminal: s.Terminal()}
	if c, ok := ledger.CompareLatest(s); ok {
		h.Comparison = &c
	}
	return h, nil
}

// Compare diffs two stored records.
func (a *App) Compare(ctx context.Context, beforeID, afterID string) (ledger.Comparison, error) {
	before, err := a.find(ctx, beforeID)
	if err != nil {
		return ledger.Comparison{}, err
	}
	after, err := a.find(ctx, afterID)
	if err != nil {
		return ledger.Comparison{}, err
	}
	return ledger.Compare(before, after), nil
}

func (a *App) find(ctx context.Context, recordID string) (*domain.EmailGenerationRecord, error) {
	r, err := a.Ledger.FindRecord(ctx, recordID)
	if errors.Is(err, ledger.ErrRecordNotFound) {
		return nil, fmt.Errorf("record %s: %w", recordID, ErrNotFound)
	}
	return r, err
}

// IsUserError reports whether err is the caller's fault: a configuration
// error, an unknown record or an invalid ledger entry.
func IsUserError(err error) bool {
	return cascade.IsConfigError(err) || errors.Is(err, ErrNotFound) || errors.Is(err, ledger.ErrInvalidEntry)
}
