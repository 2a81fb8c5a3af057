package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/keiko-bench/keiko/internal/models"
)

// StartRun inserts a new run record in the running state.
func (s *Store) StartRun(ctx context.Context, run *models.Run) error {
	if run.State == "" {
		run.State = models.RunRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	blob, err := encode(run)
	if err != nil {
		return fmt.Errorf("encoding run %s: %w", run.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, batch_id, suite, scenario, tier, backend, model, state, started_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.BatchID, run.Combination.Suite, run.Combination.Scenario,
		run.Combination.Tier, run.Combination.Backend.String(), run.Combination.Model,
		string(run.State), run.StartedAt, blob)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun loads one run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*models.Run, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = ?`, id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}

	var run models.Run
	if err := decode(blob, &run); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", id, err)
	}
	return &run, nil
}

// LogTelemetry records the agent session measurements for a running run.
func (s *Store) LogTelemetry(ctx context.Context, id string, t models.Telemetry) error {
	return s.updateRun(ctx, id, func(run *models.Run) error {
		run.Telemetry = t
		return nil
	})
}

// LogValidation records the validation command results for a running run.
func (s *Store) LogValidation(ctx context.Context, id string, commands []models.CommandResult) error {
	return s.updateRun(ctx, id, func(run *models.Run) error {
		run.Commands = commands
		return nil
	})
}

// LogEvaluation records the scorecard and evaluator details for a running
// run.
func (s *Store) LogEvaluation(ctx context.Context, id string, card models.ScoreCard, details []models.EvaluationDetail) error {
	return s.updateRun(ctx, id, func(run *models.Run) error {
		run.ScoreCard = card.Clone()
		run.Evaluations = details
		return nil
	})
}

// MarkDegraded appends a degraded-stage note to a running run.
func (s *Store) MarkDegraded(ctx context.Context, id string, stage models.Stage, reason string) error {
	return s.updateRun(ctx, id, func(run *models.Run) error {
		run.Degraded = append(run.Degraded, models.DegradedStage{Stage: stage, Reason: reason})
		return nil
	})
}

// FailRun moves a run to the failed state, recording the stage and error.
func (s *Store) FailRun(ctx context.Context, id string, stage models.Stage, cause error) error {
	return s.updateRun(ctx, id, func(run *models.Run) error {
		run.State = models.RunFailed
		run.FailedStage = stage
		if cause != nil {
			run.Error = cause.Error()
		}
		run.FinishedAt = time.Now().UTC()
		return nil
	})
}

// CompleteRun moves a run to the completed state with its final totals.
func (s *Store) CompleteRun(ctx context.Context, id string, total models.WeightedTotal, oracleLog []models.OracleExchange) error {
	return s.updateRun(ctx, id, func(run *models.Run) error {
		run.State = models.RunCompleted
		run.Total = total
		run.OracleLog = oracleLog
		run.FinishedAt = time.Now().UTC()
		return nil
	})
}

// MarkIncomplete moves a run to the incomplete state. Used when a batch is
// interrupted with runs still in flight.
func (s *Store) MarkIncomplete(ctx context.Context, id string, reason string) error {
	return s.updateRun(ctx, id, func(run *models.Run) error {
		run.State = models.RunIncomplete
		run.Error = reason
		run.FinishedAt = time.Now().UTC()
		return nil
	})
}

// updateRun applies mutate to a run inside a transaction. Runs already in a
// terminal state reject the write.
func (s *Store) updateRun(ctx context.Context, id string, mutate func(*models.Run) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var blob []byte
		err := tx.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = ?`, id).Scan(&blob)
		if err == sql.ErrNoRows {
			return fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("loading run %s: %w", id, err)
		}

		var run models.Run
		if err := decode(blob, &run); err != nil {
			return fmt.Errorf("decoding run %s: %w", id, err)
		}
		if run.State.Terminal() {
			return fmt.Errorf("run %s: %w", id, ErrRunFinalized)
		}

		if err := mutate(&run); err != nil {
			return err
		}

		updated, err := encode(&run)
		if err != nil {
			return fmt.Errorf("encoding run %s: %w", id, err)
		}

		var finishedAt any
		if !run.FinishedAt.IsZero() {
			finishedAt = run.FinishedAt
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE runs SET state = ?, finished_at = ?, payload = ? WHERE id = ?`,
			string(run.State), finishedAt, updated, id)
		if err != nil {
			return fmt.Errorf("updating run %s: %w", id, err)
		}
		return nil
	})
}

// ListRunsByBatch loads all runs belonging to a batch, oldest first.
func (s *Store) ListRunsByBatch(ctx context.Context, batchID string) ([]*models.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM runs WHERE batch_id = ? ORDER BY started_at ASC, id ASC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("listing runs for batch %s: %w", batchID, err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var run models.Run
		if err := decode(blob, &run); err != nil {
			return nil, err
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
