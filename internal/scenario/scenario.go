// Package scenario loads suite and scenario definitions from disk.
//
// A benchmark root has the layout:
//
//	<root>/<suite>/<scenario>/scenario.yaml
//	<root>/<suite>/<scenario>/prompts/<tier>.md
//	<root>/<suite>/<scenario>/fixture/...
//
// Scenario values are immutable once loaded.
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/keiko-bench/keiko/internal/models"
	"gopkg.in/yaml.v3"
)

// Scenario is one loaded scenario definition.
type Scenario struct {
	Suite       string
	Name        string
	Dir         string
	Title       string
	Description string

	// Commands maps declared validation command kinds to shell strings.
	Commands map[models.CommandKind]string

	// WeightOverrides replace base rubric weights by metric name.
	WeightOverrides map[string]float64

	// EvaluatorParams carries per-metric evaluator configuration, decoded
	// by the evaluator factory. Metrics without an entry use defaults.
	EvaluatorParams map[string]map[string]any

	// OracleAnswersFile is the path (relative to Dir) of the scripted
	// answers file, empty when the scenario declares none.
	OracleAnswersFile string
}

type scenarioFile struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description,omitempty"`
	Validation  struct {
		Commands map[string]string `yaml:"commands,omitempty"`
	} `yaml:"validation,omitempty"`
	RubricOverrides struct {
		Weights map[string]float64 `yaml:"weights,omitempty"`
	} `yaml:"rubric_overrides,omitempty"`
	Evaluators map[string]map[string]any `yaml:"evaluators,omitempty"`
	Oracle struct {
		AnswersFile string `yaml:"answers_file,omitempty"`
	} `yaml:"oracle,omitempty"`
}

// Load reads <root>/<suite>/<name>/scenario.yaml.
func Load(root, suite, name string) (*Scenario, error) {
	dir := filepath.Join(root, suite, name)
	data, err := os.ReadFile(filepath.Join(dir, "scenario.yaml"))
	if err != nil {
		return nil, fmt.Errorf("loading scenario %s/%s: %w", suite, name, err)
	}

	var sf scenarioFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parsing scenario %s/%s: %w", suite, name, err)
	}

	s := &Scenario{
		Suite:             suite,
		Name:              name,
		Dir:               dir,
		Title:             sf.Title,
		Description:       sf.Description,
		WeightOverrides:   sf.RubricOverrides.Weights,
		EvaluatorParams:   sf.Evaluators,
		OracleAnswersFile: sf.Oracle.AnswersFile,
		Commands:          make(map[models.CommandKind]string),
	}

	for kind, cmd := range sf.Validation.Commands {
		if strings.TrimSpace(cmd) == "" {
			continue
		}
		s.Commands[models.CommandKind(kind)] = cmd
	}

	return s, nil
}

// Prompt returns the tier-specific prompt body. Absence surfaces as the
// underlying fs.ErrNotExist so callers can treat it as a missing tier rather
// than an I/O failure.
func (s *Scenario) Prompt(tier string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, "prompts", tier+".md"))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Tiers lists the prompt tiers available for this scenario, sorted.
func (s *Scenario) Tiers() []string {
	entries, err := os.ReadDir(filepath.Join(s.Dir, "prompts"))
	if err != nil {
		return nil
	}

	var tiers []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		tiers = append(tiers, strings.TrimSuffix(e.Name(), ".md"))
	}
	sort.Strings(tiers)
	return tiers
}

// OraclePath resolves the answers file against the scenario directory.
// Returns empty when the scenario declares no oracle.
func (s *Scenario) OraclePath() string {
	if s.OracleAnswersFile == "" {
		return ""
	}
	if filepath.IsAbs(s.OracleAnswersFile) {
		return s.OracleAnswersFile
	}
	return filepath.Join(s.Dir, s.OracleAnswersFile)
}

// ListSuites returns the suite directory names under root, sorted.
func ListSuites(root string) ([]string, error) {
	return listDirs(root)
}

// ListScenarios returns the scenario directory names for a suite, sorted.
// Only directories containing a scenario.yaml count.
func ListScenarios(root, suite string) ([]string, error) {
	names, err := listDirs(filepath.Join(root, suite))
	if err != nil {
		return nil, err
	}

	var out []string
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(root, suite, name, "scenario.yaml")); err == nil {
			out = append(out, name)
		}
	}
	return out, nil
}

func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
