package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/keiko-bench/keiko/internal/models"
)

// StartBatch inserts a new batch in the open state.
func (s *Store) StartBatch(ctx context.Context, batch *models.Batch) error {
	if batch.State == "" {
		batch.State = models.BatchOpen
	}
	if batch.StartedAt.IsZero() {
		batch.StartedAt = time.Now().UTC()
	}

	blob, err := encode(batch)
	if err != nil {
		return fmt.Errorf("encoding batch %s: %w", batch.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO batches (id, state, started_at, payload)
		VALUES (?, ?, ?, ?)`,
		batch.ID, string(batch.State), batch.StartedAt, blob)
	if err != nil {
		return fmt.Errorf("inserting batch %s: %w", batch.ID, err)
	}
	return nil
}

// CompleteBatch closes a batch with its final stats and run ids.
func (s *Store) CompleteBatch(ctx context.Context, id string, stats models.BatchStats, runIDs []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var blob []byte
		err := tx.QueryRowContext(ctx, `SELECT payload FROM batches WHERE id = ?`, id).Scan(&blob)
		if err == sql.ErrNoRows {
			return fmt.Errorf("batch %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("loading batch %s: %w", id, err)
		}

		var batch models.Batch
		if err := decode(blob, &batch); err != nil {
			return fmt.Errorf("decoding batch %s: %w", id, err)
		}

		batch.State = models.BatchCompleted
		batch.Stats = stats
		batch.RunIDs = runIDs
		batch.EndedAt = time.Now().UTC()

		updated, err := encode(&batch)
		if err != nil {
			return fmt.Errorf("encoding batch %s: %w", id, err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE batches SET state = ?, ended_at = ?, payload = ? WHERE id = ?`,
			string(batch.State), batch.EndedAt, updated, id)
		if err != nil {
			return fmt.Errorf("updating batch %s: %w", id, err)
		}
		return nil
	})
}

// BatchDetails is a batch joined with its full run records.
type BatchDetails struct {
	Batch *models.Batch
	Runs  []*models.Run
}

// GetBatchDetails loads a batch and every run persisted under it. Stats are
// recomputed from the persisted runs, not read from the stored batch, so the
// answer reflects exactly what is on disk.
func (s *Store) GetBatchDetails(ctx context.Context, id string) (*BatchDetails, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM batches WHERE id = ?`, id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("batch %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading batch %s: %w", id, err)
	}

	var batch models.Batch
	if err := decode(blob, &batch); err != nil {
		return nil, fmt.Errorf("decoding batch %s: %w", id, err)
	}

	runs, err := s.ListRunsByBatch(ctx, id)
	if err != nil {
		return nil, err
	}

	batch.Stats = ComputeBatchStats(runs, batch.StartedAt, batch.EndedAt)
	return &BatchDetails{Batch: &batch, Runs: runs}, nil
}

// ComputeBatchStats derives aggregate stats strictly from run records.
// Failed and incomplete runs count toward the total but contribute no score.
func ComputeBatchStats(runs []*models.Run, startedAt, endedAt time.Time) models.BatchStats {
	stats := models.BatchStats{TotalRuns: len(runs)}

	var scoreSum, weightedSum float64
	for _, run := range runs {
		if run.State != models.RunCompleted {
			continue
		}
		stats.SuccessfulRuns++
		weightedSum += run.Total.Weighted

		var cardSum float64
		for _, v := range run.ScoreCard {
			cardSum += v
		}
		if n := len(run.ScoreCard); n > 0 {
			scoreSum += cardSum / float64(n)
		}
	}

	if stats.SuccessfulRuns > 0 {
		stats.AvgScore = scoreSum / float64(stats.SuccessfulRuns)
		stats.AvgWeightedScore = weightedSum / float64(stats.SuccessfulRuns)
	}
	if !endedAt.IsZero() {
		stats.Duration = endedAt.Sub(startedAt)
	}
	return stats
}
