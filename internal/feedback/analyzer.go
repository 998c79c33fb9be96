// Package feedback turns a human review of a generation record into an
// improvement proposal per resolver.
//
// Analysis has three steps. Attribution maps each issue phrase to the
// fields it talks about through a synonym vocabulary, exactly or by
// fuzzy match; phrases that match nothing are kept as unattributed.
// Root-cause inference reads the attributed field's source, fallback
// level and attempt trace. Suggestion synthesis orders concrete fixes
// and proposes one addition per prompt section.
//
// Everything above is deterministic. An optional model refinement may
// add one suggestion per field; it is best-effort and its failures are
// ignored.
package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Tegath/kaleads/internal/domain"
	"github.com/Tegath/kaleads/internal/prompts"
	"github.com/Tegath/kaleads/internal/services/inference"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Config controls the analyzer.
type Config struct {
	// Threshold is the minimum fuzzy attribution score, in (0, 1].
	Threshold float64
	// Refine asks the inference service for one extra suggestion per field.
	Refine bool
	// RefineTimeout bounds all refinement calls together.
	RefineTimeout time.Duration
	// MaxConcurrency caps parallel refinement calls.
	MaxConcurrency int
}

// DefaultConfig returns the analyzer defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:      DefaultThreshold,
		RefineTimeout:  15 * time.Second,
		MaxConcurrency: 4,
	}
}

// Analyzer builds improvement proposals. It is safe for concurrent use.
type Analyzer struct {
	cfg       Config
	attr      *attributor
	prompts   *prompts.Catalogue
	completer inference.Completer
	logger    *zap.Logger
}

// NewAnalyzer creates an Analyzer. catalogue supplies the prompt sections
// deltas are keyed by; completer may be nil when Refine is off.
func NewAnalyzer(cfg Config, vocab Vocabulary, catalogue *prompts.Catalogue, completer inference.Completer, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.RefineTimeout <= 0 {
		cfg.RefineTimeout = 15 * time.Second
	}
	return &Analyzer{
		cfg:       cfg,
		attr:      newAttributor(vocab, cfg.Threshold),
		prompts:   catalogue,
		completer: completer,
		logger:    logger.Named("feedback"),
	}
}

// Analyze proposes improvements for the resolvers the feedback blames.
// A perfect rating with no issues yields an empty proposal.
func (a *Analyzer) Analyze(ctx context.Context, record *domain.EmailGenerationRecord, entry *domain.FeedbackEntry) (*domain.ImprovementProposal, error) {
	if record == nil {
		return nil, fmt.Errorf("feedback: record is required")
	}
	if entry == nil || !entry.Rating.Valid() {
		return nil, fmt.Errorf("feedback: a feedback entry with a valid rating is required")
	}

	proposal := &domain.ImprovementProposal{
		RecordID:  record.ID,
		Resolvers: map[domain.FieldID]domain.ResolverProposal{},
	}
	if entry.Rating == domain.RatingPerfect && len(entry.Issues) == 0 {
		return proposal, nil
	}

	// Step 1: attribution.
	issuesByField := map[domain.FieldID][]string{}
	for _, issue := range entry.Issues {
		hits := a.attr.attribute(issue)
		if len(hits) == 0 {
			proposal.Unattributed = append(proposal.Unattributed, issue)
			continue
		}
		kept := 0
		for _, h := range hits {
			if _, ok := record.Fields[h.Field]; !ok {
				continue
			}
			kept++
			proposal.Attributions = append(proposal.Attributions, h)
			issuesByField[h.Field] = append(issuesByField[h.Field], issue)
		}
		// Blames only fields the record does not carry.
		if kept == 0 {
			proposal.Unattributed = append(proposal.Unattributed, issue)
		}
	}

	improvementsByField := map[domain.FieldID][]string{}
	var general []string
	for _, imp := range entry.Improvements {
		hits := a.attr.attribute(imp)
		if len(hits) == 0 {
			general = append(general, imp)
			continue
		}
		for _, h := range hits {
			improvementsByField[h.Field] = append(improvementsByField[h.Field], imp)
		}
	}

	// Steps 2 and 3: root cause and suggestions per blamed resolver.
	for _, field := range sortedFields(issuesByField) {
		f := record.Fields[field]
		issues := issuesByField[field]
		cat := categorize(strings.Join(issues, " "))

		var sugg []string
		for _, imp := range improvementsByField[field] {
			sugg = appendUnique(sugg, "operator: "+imp)
		}
		for _, s := range suggestions(field, f, cat) {
			sugg = appendUnique(sugg, s)
		}
		for _, imp := range general {
			sugg = appendUnique(sugg, "operator: "+imp)
		}

		rp := domain.ResolverProposal{
			RootCause:   rootCause(f, cat),
			Suggestions: sugg,
		}
		if a.prompts != nil {
			if p, ok := a.prompts.Get(field); ok {
				rp.PromptDeltas = promptDeltas(p, f, issues, cat)
			}
		}
		proposal.Resolvers[field] = rp
	}

	if a.cfg.Refine && a.completer != nil && len(proposal.Resolvers) > 0 {
		a.refine(ctx, record, issuesByField, proposal)
	}

	a.logger.Info("feedback analyzed",
		zap.String("record", record.ID),
		zap.String("rating", entry.Rating.String()),
		zap.Int("resolvers", len(proposal.Resolvers)),
		zap.Int("unattributed", len(proposal.Unattributed)))
	return proposal, nil
}

type refinement struct {
	field      domain.FieldID
	suggestion string
}

var refineSchema = inference.Schema{Properties: []inference.Property{
	{Name: "suggestion", Type: inference.TypeString, Required: true, Description: "One concrete configuration change, one sentence."},
}}

// refine asks the model for one extra suggestion per blamed field, all
// fields in parallel. Errors only drop that field's refinement.
func (a *Analyzer) refine(ctx context.Context, record *domain.EmailGenerationRecord, issues map[domain.FieldID][]string, proposal *domain.ImprovementProposal) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RefineTimeout)
	defer cancel()

	p := pool.NewWithResults[refinement]().WithContext(ctx).WithMaxGoroutines(a.cfg.MaxConcurrency)
	for _, field := range sortedFields(issues) {
		f := record.Fields[field]
		rp := proposal.Resolvers[field]
		prompt := fmt.Sprintf(
			"A cold-email field %q resolved to %q (source %s, fallback level %d) for %s.\n"+
				"Reviewer issues: %s.\nDiagnosis: %s.\n"+
				"Propose one concrete change to how this field is resolved.",
			field, f.Value, f.Source, f.FallbackLevel, record.Company.Name,
			strings.Join(issues[field], "; "), rp.RootCause)

		p.Go(func(ctx context.Context) (refinement, error) {
			out, err := a.completer.Complete(ctx, prompt, refineSchema)
			if err != nil {
				return refinement{}, fmt.Errorf("refine %s: %w", field, err)
			}
			s := strings.TrimSpace(inference.String(out, "suggestion"))
			if s == "" {
				return refinement{}, fmt.Errorf("refine %s: empty suggestion", field)
			}
			return refinement{field: field, suggestion: s}, nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		a.logger.Debug("refinement incomplete", zap.Error(err))
	}
	for _, r := range results {
		if r.suggestion == "" {
			continue
		}
		rp := proposal.Resolvers[r.field]
		rp.Suggestions = appendUnique(rp.Suggestions, "model: "+r.suggestion)
		proposal.Resolvers[r.field] = rp
	}
}

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if strings.EqualFold(x, s) {
			return list
		}
	}
	return append(list, s)
}
