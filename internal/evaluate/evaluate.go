// Package evaluate scores a finished run's artifacts against the rubric
// metrics. Evaluators are deterministic: the same commands and delta always
// produce the same scorecard.
package evaluate

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/keiko-bench/keiko/internal/diffcollect"
	"github.com/keiko-bench/keiko/internal/models"
)

// Metric identifies one rubric dimension.
type Metric string

const (
	MetricInstallSuccess     Metric = "install_success"
	MetricTestsNonRegression Metric = "tests_nonregression"
	MetricManagerCorrectness Metric = "manager_correctness"
	MetricDependencyTargets  Metric = "dependency_targets"
	MetricIntegrityGuard     Metric = "integrity_guard"
)

// defaultMetrics is the set scheduled for every run. Score is earned on
// positive evidence only; a metric with nothing to assess stays at zero.
var defaultMetrics = []Metric{
	MetricInstallSuccess,
	MetricTestsNonRegression,
	MetricManagerCorrectness,
	MetricDependencyTargets,
	MetricIntegrityGuard,
}

// Evaluator scores one metric from the run context.
type Evaluator interface {
	// Metric returns the scorecard key this evaluator fills.
	Metric() Metric

	// Evaluate inspects the run context and produces a detail whose score
	// is in [0, 1].
	Evaluate(ctx context.Context, runCtx *Context) (*models.EvaluationDetail, error)
}

// Context carries everything evaluators may inspect.
type Context struct {
	Commands     []models.CommandResult
	Delta        *diffcollect.Delta
	FinalReply   string
	WorkspaceDir string
}

// Command returns the result for a kind, or nil when the run never
// executed it.
func (c *Context) Command(kind models.CommandKind) *models.CommandResult {
	for i := range c.Commands {
		if c.Commands[i].Kind == kind {
			return &c.Commands[i]
		}
	}
	return nil
}

// Create builds the evaluator for a metric, decoding its params.
func Create(metric Metric, params map[string]any) (Evaluator, error) {
	switch metric {
	case MetricInstallSuccess:
		return &installEvaluator{}, nil
	case MetricTestsNonRegression:
		return &nonRegressionEvaluator{}, nil
	case MetricManagerCorrectness:
		var v managerCorrectnessArgs
		if err := mapstructure.Decode(params, &v); err != nil {
			return nil, fmt.Errorf("decoding %s params: %w", metric, err)
		}
		return newManagerEvaluator(v), nil
	case MetricDependencyTargets:
		var v dependencyTargetsArgs
		if err := mapstructure.Decode(params, &v); err != nil {
			return nil, fmt.Errorf("decoding %s params: %w", metric, err)
		}
		return newDependencyEvaluator(v), nil
	case MetricIntegrityGuard:
		var v integrityGuardArgs
		if err := mapstructure.Decode(params, &v); err != nil {
			return nil, fmt.Errorf("decoding %s params: %w", metric, err)
		}
		return newIntegrityEvaluator(v), nil
	default:
		return nil, fmt.Errorf("%q is not a valid metric", metric)
	}
}

// DefaultSet builds the standard evaluators, applying any per-metric params.
func DefaultSet(params map[string]map[string]any) ([]Evaluator, error) {
	out := make([]Evaluator, 0, len(defaultMetrics))
	for _, metric := range defaultMetrics {
		ev, err := Create(metric, params[string(metric)])
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// RunAll executes the evaluators and assembles the scorecard. A failing
// evaluator contributes no score; the error is returned alongside the
// partial results so callers can record the run as degraded.
func RunAll(ctx context.Context, evaluators []Evaluator, runCtx *Context) (models.ScoreCard, []models.EvaluationDetail, error) {
	card := make(models.ScoreCard, len(evaluators))
	details := make([]models.EvaluationDetail, 0, len(evaluators))
	var firstErr error

	// Every scheduled metric appears in the card, at zero until its
	// evaluator raises it.
	for _, ev := range evaluators {
		card[string(ev.Metric())] = 0
	}

	for _, ev := range evaluators {
		detail, err := ev.Evaluate(ctx, runCtx)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("evaluating %s: %w", ev.Metric(), err)
			}
			continue
		}
		card[detail.Metric] = detail.Score
		details = append(details, *detail)
	}

	return card, details, firstErr
}
