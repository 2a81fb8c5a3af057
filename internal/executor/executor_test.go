package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/keiko-bench/keiko/internal/agent"
	"github.com/keiko-bench/keiko/internal/models"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory RunStore capturing every transition.
type memStore struct {
	runs map[string]*models.Run
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[string]*models.Run)}
}

func (m *memStore) StartRun(_ context.Context, run *models.Run) error {
	clone := *run
	m.runs[run.ID] = &clone
	return nil
}

func (m *memStore) LogTelemetry(_ context.Context, id string, t models.Telemetry) error {
	m.runs[id].Telemetry = t
	return nil
}

func (m *memStore) LogValidation(_ context.Context, id string, commands []models.CommandResult) error {
	m.runs[id].Commands = commands
	return nil
}

func (m *memStore) LogEvaluation(_ context.Context, id string, card models.ScoreCard, details []models.EvaluationDetail) error {
	m.runs[id].ScoreCard = card
	m.runs[id].Evaluations = details
	return nil
}

func (m *memStore) MarkDegraded(_ context.Context, id string, stage models.Stage, reason string) error {
	m.runs[id].Degraded = append(m.runs[id].Degraded, models.DegradedStage{Stage: stage, Reason: reason})
	return nil
}

func (m *memStore) FailRun(_ context.Context, id string, stage models.Stage, cause error) error {
	run := m.runs[id]
	run.State = models.RunFailed
	run.FailedStage = stage
	run.Error = cause.Error()
	return nil
}

func (m *memStore) CompleteRun(_ context.Context, id string, total models.WeightedTotal, oracleLog []models.OracleExchange) error {
	run := m.runs[id]
	run.State = models.RunCompleted
	run.Total = total
	run.OracleLog = oracleLog
	return nil
}

// writeBenchmark lays out one scenario under a fresh benchmark root.
func writeBenchmark(t *testing.T, scenarioYAML string, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "js", "demo")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scenario.yaml"), []byte(scenarioYAML), 0o644))
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestExecute_EchoEndToEnd(t *testing.T) {
	root := writeBenchmark(t, "title: demo\n", map[string]string{
		"fixture/readme.md": "hello",
	})
	st := newMemStore()
	e := New(root, t.TempDir(), st, nil)

	run, err := e.Execute(context.Background(), "", models.Combination{
		Suite: "js", Scenario: "demo", Tier: "terse", Backend: models.BackendEcho,
	})
	require.NoError(t, err)

	require.Equal(t, models.RunCompleted, run.State)
	require.Empty(t, run.Commands)
	require.Len(t, run.ScoreCard, 5)
	require.Equal(t, 0.0, run.Total.Weighted)
	require.Equal(t, 10.0, run.Total.Max)
	require.Empty(t, run.OracleLog)
	require.Zero(t, run.Telemetry.TokensIn)

	persisted := st.runs[run.ID]
	require.Equal(t, models.RunCompleted, persisted.State)
	require.Equal(t, 0.0, persisted.Total.Weighted)
}

func TestExecute_MissingPromptFailsBeforeWorkspace(t *testing.T) {
	root := writeBenchmark(t, "title: demo\n", map[string]string{
		"fixture/readme.md": "hello",
	})
	st := newMemStore()
	resultsDir := t.TempDir()
	e := New(root, resultsDir, st, nil)

	run, err := e.Execute(context.Background(), "", models.Combination{
		Suite: "js", Scenario: "demo", Tier: "terse",
		Backend: models.BackendAnthropic, Model: "claude-x",
	})
	require.NoError(t, err)

	require.Equal(t, models.RunFailed, run.State)
	require.Equal(t, models.StagePrompt, run.FailedStage)

	// No workspace side effect: the workspaces root was never created.
	_, statErr := os.Stat(filepath.Join(resultsDir, "workspaces"))
	require.True(t, os.IsNotExist(statErr))
}

func TestExecute_MissingFixtureFailsWorkspaceStage(t *testing.T) {
	root := writeBenchmark(t, "title: demo\n", nil)
	st := newMemStore()
	e := New(root, t.TempDir(), st, nil)

	run, err := e.Execute(context.Background(), "", models.Combination{
		Suite: "js", Scenario: "demo", Tier: "terse", Backend: models.BackendEcho,
	})
	require.NoError(t, err)
	require.Equal(t, models.RunFailed, run.State)
	require.Equal(t, models.StageWorkspace, run.FailedStage)
}

func TestExecute_UnknownScenarioFailsPromptStage(t *testing.T) {
	st := newMemStore()
	e := New(t.TempDir(), t.TempDir(), st, nil)

	run, err := e.Execute(context.Background(), "", models.Combination{
		Suite: "js", Scenario: "absent", Tier: "terse", Backend: models.BackendEcho,
	})
	require.NoError(t, err)
	require.Equal(t, models.RunFailed, run.State)
	require.Equal(t, models.StagePrompt, run.FailedStage)
}

func TestExecute_AgentFailureTruncatesPipeline(t *testing.T) {
	root := writeBenchmark(t, "title: demo\nvalidation:\n  commands:\n    install: exit 0\n", map[string]string{
		"fixture/readme.md": "hello",
		"prompts/terse.md":  "fix things",
	})
	st := newMemStore()
	session := agent.NewSessionWithFactory(func(models.Backend) (agent.Adapter, error) {
		return &panickingAdapter{}, nil
	}, nil)
	e := New(root, t.TempDir(), st, nil, WithSession(session))

	run, err := e.Execute(context.Background(), "", models.Combination{
		Suite: "js", Scenario: "demo", Tier: "terse",
		Backend: models.BackendAnthropic, Model: "claude-x",
	})
	require.NoError(t, err)

	require.Equal(t, models.RunFailed, run.State)
	require.Equal(t, models.StageAgent, run.FailedStage)
	// Validation, diffing and evaluation were all skipped.
	require.Empty(t, run.Commands)
	require.Empty(t, run.ScoreCard)
}

func TestExecute_AgentSuccessRunsFullPipeline(t *testing.T) {
	root := writeBenchmark(t,
		"title: demo\nvalidation:\n  commands:\n    install: exit 0\n    lint: exit 0\n    typecheck: exit 0\n",
		map[string]string{
			"fixture/app.js":   "old",
			"prompts/terse.md": "fix things",
		})
	st := newMemStore()
	session := agent.NewSessionWithFactory(func(models.Backend) (agent.Adapter, error) {
		return &editingAdapter{}, nil
	}, nil)
	e := New(root, t.TempDir(), st, nil, WithSession(session))

	run, err := e.Execute(context.Background(), "batch-1", models.Combination{
		Suite: "js", Scenario: "demo", Tier: "terse",
		Backend: models.BackendAnthropic, Model: "claude-x",
	})
	require.NoError(t, err)

	require.Equal(t, models.RunCompleted, run.State)
	require.Equal(t, "batch-1", run.BatchID)
	require.Len(t, run.Commands, 3)
	require.Equal(t, 42, run.Telemetry.TokensIn)

	// install succeeded and both regression checks passed; the adapter
	// modified a file without touching protected paths.
	require.Equal(t, 1.0, run.ScoreCard["install_success"])
	require.Equal(t, 1.0, run.ScoreCard["tests_nonregression"])
	require.Equal(t, 1.0, run.ScoreCard["integrity_guard"])
	require.Greater(t, run.Total.Weighted, 0.0)
}

func TestExecute_AbsentOracleFileIsNotDegradation(t *testing.T) {
	root := writeBenchmark(t,
		"title: demo\noracle:\n  answers_file: answers.yaml\n",
		map[string]string{
			"fixture/app.js":   "old",
			"prompts/terse.md": "fix things",
		})
	st := newMemStore()
	session := agent.NewSessionWithFactory(func(models.Backend) (agent.Adapter, error) {
		return &editingAdapter{}, nil
	}, nil)
	e := New(root, t.TempDir(), st, nil, WithSession(session))

	run, err := e.Execute(context.Background(), "", models.Combination{
		Suite: "js", Scenario: "demo", Tier: "terse",
		Backend: models.BackendAnthropic, Model: "claude-x",
	})
	require.NoError(t, err)

	// The declared answers file does not exist: ask_user is simply not
	// registered, and the run is neither failed nor degraded.
	require.Equal(t, models.RunCompleted, run.State)
	require.Empty(t, run.Degraded)
	require.Empty(t, run.OracleLog)
}

func TestExecute_CorruptOracleFileDegradesAgentStage(t *testing.T) {
	root := writeBenchmark(t,
		"title: demo\noracle:\n  answers_file: answers.yaml\n",
		map[string]string{
			"fixture/app.js":   "old",
			"prompts/terse.md": "fix things",
			"answers.yaml":     "{not yaml: [",
		})
	st := newMemStore()
	session := agent.NewSessionWithFactory(func(models.Backend) (agent.Adapter, error) {
		return &editingAdapter{}, nil
	}, nil)
	e := New(root, t.TempDir(), st, nil, WithSession(session))

	run, err := e.Execute(context.Background(), "", models.Combination{
		Suite: "js", Scenario: "demo", Tier: "terse",
		Backend: models.BackendAnthropic, Model: "claude-x",
	})
	require.NoError(t, err)

	require.Equal(t, models.RunCompleted, run.State)
	require.Len(t, run.Degraded, 1)
	require.Equal(t, models.StageAgent, run.Degraded[0].Stage)
}

type panickingAdapter struct{}

func (p *panickingAdapter) Send(_ context.Context, _ *agent.Request) (*agent.Response, error) {
	panic("backend blew up")
}

// editingAdapter mimics an agent run: it edits one workspace file and
// reports telemetry.
type editingAdapter struct{}

func (a *editingAdapter) Send(_ context.Context, req *agent.Request) (*agent.Response, error) {
	path := filepath.Join(req.WorkspaceDir, "app.js")
	if err := os.WriteFile(path, []byte("new"), 0o644); err != nil {
		return nil, err
	}
	return &agent.Response{Content: "done", TokensIn: 42, TokensOut: 7}, nil
}
