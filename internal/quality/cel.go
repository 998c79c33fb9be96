package quality

import (
	"fmt"

	"github.com/Tegath/kaleads/internal/domain"
	"github.com/google/cel-go/cel"
)

// celCostLimit bounds evaluation of operator-supplied expressions.
const celCostLimit = 100000

// CELScorer evaluates an operator-supplied CEL expression. The
// expression sees:
//
//	confidence  map(string, int)  field id -> confidence 1..5
//	level       map(string, int)  field id -> fallback level 0..3
//	weight      map(string, int)  field id -> configured weight
//	penalty     map(string, int)  field id -> configured penalty
//	base        int               weighted base score 0..100
//	degraded    list(string)      fields at level 2 or above
//
// and must return an int, which is clamped to 0..100. Example:
//
//	base - 10 * size(degraded)
//
// Monotonicity in each confidence is the expression author's duty.
type CELScorer struct {
	expr     string
	weighted *WeightedScorer
	program  cel.Program
}

// NewCELScorer compiles expr. Weights feed the base score and the
// weight and penalty maps; empty weights mean DefaultWeights.
func NewCELScorer(expr string, weights []FieldWeight) (*CELScorer, error) {
	env, err := cel.NewEnv(
		cel.Variable("confidence", cel.MapType(cel.StringType, cel.IntType)),
		cel.Variable("level", cel.MapType(cel.StringType, cel.IntType)),
		cel.Variable("weight", cel.MapType(cel.StringType, cel.IntType)),
		cel.Variable("penalty", cel.MapType(cel.StringType, cel.IntType)),
		cel.Variable("base", cel.IntType),
		cel.Variable("degraded", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.IntType) {
		return nil, fmt.Errorf("quality expression must return int, got %s", ast.OutputType())
	}

	prog, err := env.Program(ast, cel.CostLimit(celCostLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return &CELScorer{expr: expr, weighted: NewWeightedScorer(weights), program: prog}, nil
}

// Expression returns the source expression.
func (s *CELScorer) Expression() string { return s.expr }

// Score implements Scorer. An evaluation error falls back to the
// weighted score so a record is never left unscored.
func (s *CELScorer) Score(fields map[domain.FieldID]domain.ResolvedField) int {
	score, err := s.Evaluate(fields)
	if err != nil {
		return s.weighted.Score(fields)
	}
	return score
}

// Evaluate runs the expression and reports evaluation errors.
func (s *CELScorer) Evaluate(fields map[domain.FieldID]domain.ResolvedField) (int, error) {
	report := s.weighted.Report(fields)

	confidence := make(map[string]int64, len(report.Fields))
	level := make(map[string]int64, len(report.Fields))
	weight := make(map[string]int64, len(report.Fields))
	penalty := make(map[string]int64, len(report.Fields))
	degraded := []string{}
	for i, f := range report.Fields {
		id := string(f.Field)
		confidence[id] = int64(f.Confidence)
		level[id] = int64(f.Level)
		weight[id] = int64(f.Weight)
		penalty[id] = int64(s.weighted.Weights[i].Penalty)
		if f.Level >= 2 {
			degraded = append(degraded, id)
		}
	}

	out, _, err := s.program.Eval(map[string]any{
		"confidence": confidence,
		"level":      level,
		"weight":     weight,
		"penalty":    penalty,
		"base":       int64(report.Base),
		"degraded":   degraded,
	})
	if err != nil {
		return 0, fmt.Errorf("evaluating quality expression: %w", err)
	}
	v, ok := out.Value().(int64)
	if !ok {
		return 0, fmt.Errorf("quality expression returned %T, want int", out.Value())
	}
	return clamp(int(v), 0, 100), nil
}
