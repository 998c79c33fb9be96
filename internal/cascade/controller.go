package cascade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Tegath/kaleads/internal/domain"
	"github.com/Tegath/kaleads/internal/services"
	"go.uber.org/zap"
)

// neutralValues end every fallback when all derived candidates are
// forbidden. They describe a group rather than name anyone.
var neutralValues = []string{"companies like yours", "teams in your space", "n/a"}

// lastResortValue names the field itself. It ends a fallback whose
// neutral values are all excluded.
func lastResortValue(f domain.FieldID) string {
	if f == "" {
		return "unspecified"
	}
	return "unspecified " + strings.ReplaceAll(string(f), "_", " ")
}

// Controller drives strategy lists. It holds no per-run state and is
// safe for concurrent use by many resolvers.
type Controller struct {
	logger *zap.Logger
}

// NewController creates a Controller. A nil logger discards output.
func NewController(logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{logger: logger.Named("cascade")}
}

// Run resolves req.Field with specs and always returns a value unless
// the specs themselves are invalid.
//
// If ctx is already done when a non-terminal strategy is due, that
// strategy is skipped: a global deadline forces the field straight to
// its fallback instead of leaving it pending.
func (c *Controller) Run(ctx context.Context, req Request, specs []Spec) (domain.ResolvedField, error) {
	if err := Validate(req.Field, specs); err != nil {
		return domain.ResolvedField{}, err
	}

	n := len(specs)
	attempts := make([]domain.Attempt, 0, n)

	for i, spec := range specs[:n-1] {
		level := LevelOf(i, n)
		a := domain.Attempt{Strategy: spec.Strategy.Name(), Source: spec.Source, Level: level}

		if err := ctx.Err(); err != nil {
			a.Outcome = domain.OutcomeSkipped
			a.Detail = "run deadline reached"
			attempts = append(attempts, a)
			continue
		}

		start := time.Now()
		cand, err := c.attempt(ctx, spec, req)
		a.Duration = time.Since(start)

		if err == nil {
			value := strings.TrimSpace(cand.Value)
			switch {
			case value == "":
				a.Outcome = domain.OutcomeNoResult
				a.Detail = "empty value"
			case req.Excluded.Forbidden(value):
				a.Outcome = domain.OutcomeForbidden
				a.Detail = fmt.Sprintf("rejected %q: excluded value", value)
			default:
				a.Outcome = domain.OutcomeAccepted
				attempts = append(attempts, a)
				return c.accept(req, spec, level, value, cand, attempts), nil
			}
		} else {
			a.Outcome = outcomeOf(err)
			a.Detail = err.Error()
		}

		c.logger.Debug("strategy did not resolve",
			zap.String("field", string(req.Field)),
			zap.String("strategy", a.Strategy),
			zap.Int("level", level),
			zap.String("outcome", string(a.Outcome)),
			zap.String("detail", a.Detail))
		attempts = append(attempts, a)
	}

	return c.fallback(req, specs[n-1], attempts), nil
}

// attempt runs one strategy under its own timeout. The strategy runs in
// its own goroutine so a strategy that ignores its context still cannot
// hold the cascade past the deadline.
func (c *Controller) attempt(ctx context.Context, spec Spec, req Request) (Candidate, error) {
	actx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	type result struct {
		cand Candidate
		err  error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("strategy %s panicked: %v", spec.Strategy.Name(), r)}
			}
		}()
		cand, err := spec.Strategy.Attempt(actx, req)
		if err != nil && spec.Retry && services.Transient(err) && actx.Err() == nil {
			c.logger.Debug("retrying transient failure",
				zap.String("field", string(req.Field)),
				zap.String("strategy", spec.Strategy.Name()),
				zap.Error(err))
			cand, err = spec.Strategy.Attempt(actx, req)
		}
		done <- result{cand: cand, err: err}
	}()

	select {
	case r := <-done:
		return r.cand, r.err
	case <-actx.Done():
		return Candidate{}, fmt.Errorf("strategy %s: %w", spec.Strategy.Name(), services.Classify(actx.Err()))
	}
}

func (c *Controller) accept(req Request, spec Spec, level int, value string, cand Candidate, attempts []domain.Attempt) domain.ResolvedField {
	base := spec.BaseConfidence
	if base == 0 {
		base = DefaultConfidence(level)
	}
	field := domain.ResolvedField{
		Field:         req.Field,
		Value:         value,
		Confidence:    domain.ClampConfidence(level, base+cand.ConfidenceAdjustment),
		Source:        spec.Source,
		FallbackLevel: level,
		Reasoning:     strings.TrimSpace(cand.Reasoning),
		Attempts:      attempts,
	}
	if field.Reasoning == "" {
		field.Reasoning = fmt.Sprintf("resolved by %s", spec.Strategy.Name())
	}

	c.logger.Debug("field resolved",
		zap.String("field", string(req.Field)),
		zap.String("strategy", spec.Strategy.Name()),
		zap.Int("level", level),
		zap.Int("confidence", field.Confidence))
	return field
}

// fallback runs the terminal strategy. It cannot fail: derived candidates
// are tried in order, then neutral phrases.
func (c *Controller) fallback(req Request, spec Spec, attempts []domain.Attempt) domain.ResolvedField {
	fb := spec.Strategy.(Fallback)
	start := time.Now()

	var rejected []string
	pick := func(cands []Candidate) (Candidate, bool) {
		for _, cand := range cands {
			v := strings.TrimSpace(cand.Value)
			if v == "" {
				continue
			}
			if req.Excluded.Forbidden(v) {
				rejected = append(rejected, v)
				continue
			}
			cand.Value = v
			return cand, true
		}
		return Candidate{}, false
	}

	cand, ok := pick(fb.Derive(req))
	if !ok {
		neutral := make([]Candidate, len(neutralValues))
		for i, v := range neutralValues {
			neutral[i] = Candidate{Value: v, Reasoning: "no specific value could be derived; neutral wording used"}
		}
		cand, ok = pick(neutral)
	}
	if !ok {
		// Exempt from exclusion: the run must end with a value.
		cand = Candidate{
			Value:     lastResortValue(req.Field),
			Reasoning: "every derived and neutral value is excluded; field label used",
		}
	}

	a := domain.Attempt{
		Strategy: fb.Name(),
		Source:   domain.SourceGeneric,
		Level:    domain.MaxFallbackLevel,
		Outcome:  domain.OutcomeAccepted,
		Duration: time.Since(start),
	}
	if len(rejected) > 0 {
		a.Detail = fmt.Sprintf("rejected %d excluded candidate(s)", len(rejected))
	}
	attempts = append(attempts, a)

	reasoning := strings.TrimSpace(cand.Reasoning)
	if reasoning == "" {
		reasoning = "generic fallback: no strategy produced a usable value"
	}

	c.logger.Info("field fell back to generic tier",
		zap.String("field", string(req.Field)),
		zap.String("company", req.Company.Name),
		zap.Int("attempts", len(attempts)))

	return domain.ResolvedField{
		Field:         req.Field,
		Value:         cand.Value,
		Confidence:    domain.MinConfidence,
		Source:        domain.SourceGeneric,
		FallbackLevel: domain.MaxFallbackLevel,
		Reasoning:     reasoning,
		Attempts:      attempts,
	}
}

func outcomeOf(err error) domain.AttemptOutcome {
	switch {
	case errors.Is(err, ErrNoResult):
		return domain.OutcomeNoResult
	case errors.Is(err, services.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return domain.OutcomeTimeout
	default:
		return domain.OutcomeFailed
	}
}
