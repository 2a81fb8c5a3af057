package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/keiko-bench/keiko/internal/models"
)

// managerCorrectnessArgs configures the manifest/lockfile check.
type managerCorrectnessArgs struct {
	// Manifest is the dependency manifest that must remain valid,
	// relative to the workspace. Defaults to package.json.
	Manifest string `mapstructure:"manifest"`
	// Lockfiles lists files that must exist after the run.
	Lockfiles []string `mapstructure:"lockfiles"`
}

// managerEvaluator verifies that the package manager state is coherent:
// the manifest still parses and expected lockfiles are present.
type managerEvaluator struct {
	manifest  string
	lockfiles []string
}

func newManagerEvaluator(args managerCorrectnessArgs) *managerEvaluator {
	manifest := args.Manifest
	if manifest == "" {
		manifest = "package.json"
	}
	return &managerEvaluator{manifest: manifest, lockfiles: args.Lockfiles}
}

func (e *managerEvaluator) Metric() Metric { return MetricManagerCorrectness }

func (e *managerEvaluator) Evaluate(_ context.Context, runCtx *Context) (*models.EvaluationDetail, error) {
	var failures []string
	total := 1 + len(e.lockfiles)
	passed := 0

	data, err := os.ReadFile(filepath.Join(runCtx.WorkspaceDir, e.manifest))
	switch {
	case os.IsNotExist(err):
		failures = append(failures, fmt.Sprintf("manifest %s missing", e.manifest))
	case err != nil:
		return nil, fmt.Errorf("reading manifest %s: %w", e.manifest, err)
	case strings.HasSuffix(e.manifest, ".json") && !json.Valid(data):
		failures = append(failures, fmt.Sprintf("manifest %s is not valid JSON", e.manifest))
	default:
		passed++
	}

	for _, lock := range e.lockfiles {
		if _, err := os.Stat(filepath.Join(runCtx.WorkspaceDir, lock)); err != nil {
			failures = append(failures, fmt.Sprintf("lockfile %s missing", lock))
		} else {
			passed++
		}
	}

	notes := "manifest and lockfiles intact"
	if len(failures) > 0 {
		notes = strings.Join(failures, "; ")
	}

	return &models.EvaluationDetail{
		Metric: string(e.Metric()),
		Score:  float64(passed) / float64(total),
		Passed: len(failures) == 0,
		Notes:  notes,
		Details: map[string]any{
			"manifest":  e.manifest,
			"lockfiles": e.lockfiles,
			"failures":  failures,
		},
	}, nil
}

// dependencyTargetsArgs configures which dependency movements the scenario
// expects the agent to have made.
type dependencyTargetsArgs struct {
	// Require lists dependencies that must be present after the run.
	// Version is a prefix match when set ("4." matches "4.17.21").
	Require []dependencyTarget `mapstructure:"require"`
	// Forbid lists dependency names that must be gone after the run.
	Forbid []string `mapstructure:"forbid"`
}

type dependencyTarget struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// dependencyEvaluator checks the workspace manifest against the scenario's
// dependency targets.
type dependencyEvaluator struct {
	require []dependencyTarget
	forbid  []string
}

func newDependencyEvaluator(args dependencyTargetsArgs) *dependencyEvaluator {
	return &dependencyEvaluator{require: args.Require, forbid: args.Forbid}
}

func (e *dependencyEvaluator) Metric() Metric { return MetricDependencyTargets }

func (e *dependencyEvaluator) Evaluate(_ context.Context, runCtx *Context) (*models.EvaluationDetail, error) {
	total := len(e.require) + len(e.forbid)
	if total == 0 {
		return &models.EvaluationDetail{
			Metric: string(e.Metric()),
			Score:  0,
			Passed: false,
			Notes:  "no dependency targets declared",
		}, nil
	}

	deps, err := workspaceDeps(runCtx.WorkspaceDir)
	if err != nil {
		return nil, err
	}

	var failures []string
	passed := 0
	for _, target := range e.require {
		version, ok := deps[target.Name]
		switch {
		case !ok:
			failures = append(failures, fmt.Sprintf("%s not installed", target.Name))
		case target.Version != "" && !strings.HasPrefix(strings.TrimLeft(version, "^~"), target.Version):
			failures = append(failures, fmt.Sprintf("%s at %s, want %s", target.Name, version, target.Version))
		default:
			passed++
		}
	}
	for _, name := range e.forbid {
		if _, ok := deps[name]; ok {
			failures = append(failures, fmt.Sprintf("%s still present", name))
		} else {
			passed++
		}
	}

	notes := "all dependency targets met"
	if len(failures) > 0 {
		notes = strings.Join(failures, "; ")
	}

	return &models.EvaluationDetail{
		Metric: string(e.Metric()),
		Score:  float64(passed) / float64(total),
		Passed: len(failures) == 0,
		Notes:  notes,
		Details: map[string]any{
			"failures": failures,
		},
	}, nil
}

// workspaceDeps reads declared dependencies from the workspace package.json.
// A missing manifest counts as an empty dependency set, not an error.
func workspaceDeps(dir string) (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading package.json: %w", err)
	}

	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("parsing package.json: %w", err)
	}

	deps := make(map[string]string, len(pkg.Dependencies)+len(pkg.DevDependencies))
	for name, version := range pkg.Dependencies {
		deps[name] = version
	}
	for name, version := range pkg.DevDependencies {
		deps[name] = version
	}
	return deps, nil
}
