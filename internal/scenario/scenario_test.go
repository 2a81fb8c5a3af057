package scenario

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/keiko-bench/keiko/internal/models"
	"github.com/stretchr/testify/require"
)

const sampleScenarioYAML = `title: Bump lodash to 4.x
description: Upgrade lodash without breaking the build.
validation:
  commands:
    install: npm install
    lint: npm run lint
    test: npm test
rubric_overrides:
  weights:
    manager_correctness: 0
evaluators:
  dependency_targets:
    require:
      - name: lodash
        version: "4."
oracle:
  answers_file: answers.yaml
`

func writeScenario(t *testing.T, root, suite, name, yaml string) string {
	t.Helper()
	dir := filepath.Join(root, suite, name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "prompts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scenario.yaml"), []byte(yaml), 0o644))
	return dir
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	writeScenario(t, root, "js", "lodash-bump", sampleScenarioYAML)

	s, err := Load(root, "js", "lodash-bump")
	require.NoError(t, err)

	require.Equal(t, "Bump lodash to 4.x", s.Title)
	require.Equal(t, "npm install", s.Commands[models.CommandInstall])
	require.Equal(t, "npm run lint", s.Commands[models.CommandLint])
	require.Equal(t, "npm test", s.Commands[models.CommandTest])
	require.Equal(t, 0.0, s.WeightOverrides["manager_correctness"])
	require.Equal(t, "answers.yaml", s.OracleAnswersFile)
	require.Contains(t, s.EvaluatorParams, "dependency_targets")
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(t.TempDir(), "js", "absent")
	require.Error(t, err)
}

func TestLoad_BlankCommandsDropped(t *testing.T) {
	root := t.TempDir()
	writeScenario(t, root, "js", "s", "title: t\nvalidation:\n  commands:\n    install: \"  \"\n")

	s, err := Load(root, "js", "s")
	require.NoError(t, err)
	require.Empty(t, s.Commands)
}

func TestPrompt(t *testing.T) {
	root := t.TempDir()
	dir := writeScenario(t, root, "js", "s", "title: t\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompts", "terse.md"), []byte("do the thing"), 0o644))

	s, err := Load(root, "js", "s")
	require.NoError(t, err)

	body, err := s.Prompt("terse")
	require.NoError(t, err)
	require.Equal(t, "do the thing", body)

	_, err = s.Prompt("verbose")
	require.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestTiers(t *testing.T) {
	root := t.TempDir()
	dir := writeScenario(t, root, "js", "s", "title: t\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompts", "verbose.md"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompts", "terse.md"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompts", "notes.txt"), nil, 0o644))

	s, err := Load(root, "js", "s")
	require.NoError(t, err)
	require.Equal(t, []string{"terse", "verbose"}, s.Tiers())
}

func TestOraclePath(t *testing.T) {
	root := t.TempDir()
	dir := writeScenario(t, root, "js", "s", "title: t\noracle:\n  answers_file: answers.yaml\n")

	s, err := Load(root, "js", "s")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "answers.yaml"), s.OraclePath())

	s.OracleAnswersFile = ""
	require.Empty(t, s.OraclePath())
}

func TestListSuitesAndScenarios(t *testing.T) {
	root := t.TempDir()
	writeScenario(t, root, "js", "b-scenario", "title: b\n")
	writeScenario(t, root, "js", "a-scenario", "title: a\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "js", "not-a-scenario"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "go"), 0o755))

	suites, err := ListSuites(root)
	require.NoError(t, err)
	require.Equal(t, []string{"go", "js"}, suites)

	names, err := ListScenarios(root, "js")
	require.NoError(t, err)
	require.Equal(t, []string{"a-scenario", "b-scenario"}, names)
}
