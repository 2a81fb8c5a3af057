package evaluate

import (
	"context"
	"fmt"
	"strings"

	"github.com/keiko-bench/keiko/internal/models"
)

// installEvaluator scores whether the workspace's install step completed.
type installEvaluator struct{}

func (e *installEvaluator) Metric() Metric { return MetricInstallSuccess }

func (e *installEvaluator) Evaluate(_ context.Context, runCtx *Context) (*models.EvaluationDetail, error) {
	result := runCtx.Command(models.CommandInstall)
	if result == nil {
		// Score is earned, never presumed: no install run means no credit.
		return &models.EvaluationDetail{
			Metric: string(e.Metric()),
			Score:  0,
			Passed: false,
			Notes:  "no install command executed",
		}, nil
	}

	if result.Succeeded() {
		return &models.EvaluationDetail{
			Metric: string(e.Metric()),
			Score:  1,
			Passed: true,
			Notes:  "install exited 0",
		}, nil
	}

	return &models.EvaluationDetail{
		Metric: string(e.Metric()),
		Score:  0,
		Passed: false,
		Notes:  fmt.Sprintf("install exited %d", result.ExitCode),
		Details: map[string]any{
			"command": result.Command,
			"stderr":  tail(result.Stderr, 2000),
		},
	}, nil
}

// nonRegressionEvaluator scores the static checks that guard against the
// agent breaking the project: each declared lint/typecheck command counts
// equally.
type nonRegressionEvaluator struct{}

func (e *nonRegressionEvaluator) Metric() Metric { return MetricTestsNonRegression }

func (e *nonRegressionEvaluator) Evaluate(_ context.Context, runCtx *Context) (*models.EvaluationDetail, error) {
	checks := []models.CommandKind{models.CommandLint, models.CommandTypecheck}

	var total, passed int
	var failures []string
	for _, kind := range checks {
		result := runCtx.Command(kind)
		if result == nil {
			continue
		}
		total++
		if result.Succeeded() {
			passed++
		} else {
			failures = append(failures, fmt.Sprintf("%s exited %d", kind, result.ExitCode))
		}
	}

	if total == 0 {
		return &models.EvaluationDetail{
			Metric: string(e.Metric()),
			Score:  0,
			Passed: false,
			Notes:  "no regression checks executed",
		}, nil
	}

	notes := "all regression checks passed"
	if len(failures) > 0 {
		notes = strings.Join(failures, "; ")
	}

	return &models.EvaluationDetail{
		Metric: string(e.Metric()),
		Score:  float64(passed) / float64(total),
		Passed: passed == total,
		Notes:  notes,
		Details: map[string]any{
			"passed": passed,
			"total":  total,
		},
	}, nil
}

// tail truncates long command output, keeping the end where failures land.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
