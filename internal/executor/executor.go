// Package executor drives one run through the full pipeline: scenario load,
// workspace provisioning, agent session, validation, diff collection and
// evaluation, persisting every transition.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/keiko-bench/keiko/internal/agent"
	"github.com/keiko-bench/keiko/internal/diffcollect"
	"github.com/keiko-bench/keiko/internal/evaluate"
	"github.com/keiko-bench/keiko/internal/models"
	"github.com/keiko-bench/keiko/internal/oracle"
	"github.com/keiko-bench/keiko/internal/scenario"
	"github.com/keiko-bench/keiko/internal/scoring"
	"github.com/keiko-bench/keiko/internal/toolbridge"
	"github.com/keiko-bench/keiko/internal/validation"
	"github.com/keiko-bench/keiko/internal/workspace"
)

// RunStore is the persistence surface the executor drives. Implemented by
// *store.Store; tests substitute an in-memory recorder.
type RunStore interface {
	StartRun(ctx context.Context, run *models.Run) error
	LogTelemetry(ctx context.Context, id string, t models.Telemetry) error
	LogValidation(ctx context.Context, id string, commands []models.CommandResult) error
	LogEvaluation(ctx context.Context, id string, card models.ScoreCard, details []models.EvaluationDetail) error
	MarkDegraded(ctx context.Context, id string, stage models.Stage, reason string) error
	FailRun(ctx context.Context, id string, stage models.Stage, cause error) error
	CompleteRun(ctx context.Context, id string, total models.WeightedTotal, oracleLog []models.OracleExchange) error
}

// Executor runs one combination end to end.
type Executor struct {
	root        string
	store       RunStore
	session     *agent.Session
	provisioner *workspace.Provisioner
	runner      *validation.Runner
	collector   *diffcollect.Collector
	logger      *slog.Logger
}

// Option customizes an Executor.
type Option func(*Executor)

// WithSession replaces the default agent session, letting tests inject
// adapter factories.
func WithSession(session *agent.Session) Option {
	return func(e *Executor) { e.session = session }
}

// New builds an executor rooted at the benchmark directory, writing
// workspaces under resultsDir and persisting through store.
func New(root, resultsDir string, store RunStore, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		root:        root,
		store:       store,
		session:     agent.NewSession(logger),
		provisioner: workspace.NewProvisioner(resultsDir, logger),
		runner:      validation.NewRunner(logger),
		collector:   diffcollect.NewCollector(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one combination. The returned run reflects the final
// persisted state; the error is non-nil only for persistence failures, not
// for runs that end in the failed state.
func (e *Executor) Execute(ctx context.Context, batchID string, comb models.Combination) (*models.Run, error) {
	run := &models.Run{
		ID:          uuid.NewString(),
		BatchID:     batchID,
		Combination: comb,
		State:       models.RunRunning,
		StartedAt:   time.Now().UTC(),
	}
	if err := e.store.StartRun(ctx, run); err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}

	logger := e.logger.With("run_id", run.ID, "combination", comb.Label())

	// Stage: prompt. A missing prompt for a real backend fails before any
	// workspace side effect.
	scen, err := scenario.Load(e.root, comb.Suite, comb.Scenario)
	if err != nil {
		return e.fail(ctx, run, models.StagePrompt, err)
	}

	var promptText string
	if comb.Backend != models.BackendEcho {
		promptText, err = scen.Prompt(comb.Tier)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				err = fmt.Errorf("prompt tier %q not available for %s/%s: %w",
					comb.Tier, comb.Suite, comb.Scenario, err)
			}
			return e.fail(ctx, run, models.StagePrompt, err)
		}
	}

	// Stage: workspace.
	paths, err := e.provisioner.Prepare(scen)
	if err != nil {
		return e.fail(ctx, run, models.StageWorkspace, err)
	}
	if paths == nil {
		return e.fail(ctx, run, models.StageWorkspace,
			fmt.Errorf("no workspace provisioned for %s/%s", comb.Suite, comb.Scenario))
	}

	// Stage: agent. Skipped entirely for the echo backend; adapter failure
	// truncates the rest of the pipeline.
	var bridge *toolbridge.Bridge
	if comb.Backend != models.BackendEcho {
		var questions oracle.Oracle
		if path := scen.OraclePath(); path != "" {
			scripted, err := oracle.LoadScripted(path)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				// A declared but absent answers file means ask_user is
				// simply not registered for this run.
				logger.Debug("no oracle answers file, ask_user not registered", "path", path)
			case err != nil:
				logger.Warn("oracle unavailable, continuing without ask_user", "error", err)
				e.degrade(ctx, run, models.StageAgent, "oracle load: "+err.Error())
			default:
				questions = scripted
			}
		}

		bridge, err = toolbridge.Build(paths.WorkspaceDir, questions, logger)
		if err != nil {
			return e.fail(ctx, run, models.StageAgent, err)
		}

		result, err := e.session.Run(ctx, comb, paths.WorkspaceDir, promptText, bridge)
		if err != nil {
			return e.fail(ctx, run, models.StageAgent, err)
		}

		run.Telemetry = models.Telemetry{
			TokensIn:   result.TokensIn,
			TokensOut:  result.TokensOut,
			CostUSD:    result.CostUSD,
			ToolCalls:  result.ToolCalls,
			Duration:   result.Duration,
			FinalReply: result.Content,
		}
		if err := e.store.LogTelemetry(ctx, run.ID, run.Telemetry); err != nil {
			return nil, fmt.Errorf("logging telemetry: %w", err)
		}
	}

	// Stage: validation. Command failures are data, never fatal.
	run.Commands = e.runner.Run(ctx, paths.WorkspaceDir, scen.Commands)
	if err := e.store.LogValidation(ctx, run.ID, run.Commands); err != nil {
		return nil, fmt.Errorf("logging validation: %w", err)
	}

	// Stage: diff, best-effort.
	var delta *diffcollect.Delta
	delta, err = e.collector.Build(paths.FixtureDir, paths.WorkspaceDir)
	if err != nil {
		logger.Warn("diff collection failed", "error", err)
		e.degrade(ctx, run, models.StageDiff, err.Error())
		delta = nil
	}

	// Stage: evaluation, best-effort. A failing evaluator leaves its
	// metric at zero rather than failing the run.
	card, details := e.evaluateRun(ctx, run, scen, delta, paths.WorkspaceDir, logger)
	run.ScoreCard = card
	run.Evaluations = details
	if err := e.store.LogEvaluation(ctx, run.ID, card, details); err != nil {
		return nil, fmt.Errorf("logging evaluation: %w", err)
	}

	run.Total = scoring.Compute(card, scen.WeightOverrides)

	if bridge != nil {
		run.OracleLog = bridge.QuestionLog()
	}
	if err := e.store.CompleteRun(ctx, run.ID, run.Total, run.OracleLog); err != nil {
		return nil, fmt.Errorf("completing run: %w", err)
	}

	run.State = models.RunCompleted
	run.FinishedAt = time.Now().UTC()
	logger.Info("run completed",
		"weighted", run.Total.Weighted,
		"commands", len(run.Commands),
		"degraded", len(run.Degraded))
	return run, nil
}

func (e *Executor) evaluateRun(ctx context.Context, run *models.Run, scen *scenario.Scenario, delta *diffcollect.Delta, workspaceDir string, logger *slog.Logger) (models.ScoreCard, []models.EvaluationDetail) {
	evaluators, err := evaluate.DefaultSet(scen.EvaluatorParams)
	if err != nil {
		logger.Warn("evaluator setup failed", "error", err)
		e.degrade(ctx, run, models.StageEvaluation, err.Error())
		return models.ScoreCard{}, nil
	}

	card, details, err := evaluate.RunAll(ctx, evaluators, &evaluate.Context{
		Commands:     run.Commands,
		Delta:        delta,
		FinalReply:   run.Telemetry.FinalReply,
		WorkspaceDir: workspaceDir,
	})
	if err != nil {
		logger.Warn("evaluation degraded", "error", err)
		e.degrade(ctx, run, models.StageEvaluation, err.Error())
	}
	return card, details
}

// fail persists a failed terminal state and returns the updated run.
func (e *Executor) fail(ctx context.Context, run *models.Run, stage models.Stage, cause error) (*models.Run, error) {
	e.logger.Warn("run failed", "run_id", run.ID, "stage", stage, "error", cause)
	if err := e.store.FailRun(ctx, run.ID, stage, cause); err != nil {
		return nil, fmt.Errorf("failing run: %w", err)
	}
	run.State = models.RunFailed
	run.FailedStage = stage
	run.Error = cause.Error()
	run.FinishedAt = time.Now().UTC()
	return run, nil
}

// degrade records a best-effort stage failure without touching run state.
func (e *Executor) degrade(ctx context.Context, run *models.Run, stage models.Stage, reason string) {
	run.Degraded = append(run.Degraded, models.DegradedStage{Stage: stage, Reason: reason})
	if err := e.store.MarkDegraded(ctx, run.ID, stage, reason); err != nil {
		e.logger.Warn("recording degraded stage failed", "run_id", run.ID, "error", err)
	}
}
