// Package batch expands combination selections and schedules runs across a
// bounded worker pool.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/keiko-bench/keiko/internal/models"
	"github.com/keiko-bench/keiko/internal/scenario"
	"github.com/keiko-bench/keiko/internal/store"
	"golang.org/x/sync/errgroup"
)

// Selection names the combination sets to expand. Empty suite/scenario
// slices mean "everything under the benchmark root"; empty tiers mean every
// tier a scenario provides.
type Selection struct {
	Suites    []string
	Scenarios []string
	Tiers     []string
	Backends  []models.Backend
	Models    []string
}

// Store is the batch persistence surface. Implemented by *store.Store.
type Store interface {
	StartBatch(ctx context.Context, batch *models.Batch) error
	CompleteBatch(ctx context.Context, id string, stats models.BatchStats, runIDs []string) error
	ListRunsByBatch(ctx context.Context, batchID string) ([]*models.Run, error)
	MarkIncomplete(ctx context.Context, id string, reason string) error
}

// Runner executes one combination. Implemented by *executor.Executor.
type Runner interface {
	Execute(ctx context.Context, batchID string, comb models.Combination) (*models.Run, error)
}

// Scheduler owns batch expansion, dispatch and aggregation.
type Scheduler struct {
	root   string
	store  Store
	runner Runner
	logger *slog.Logger
}

// NewScheduler builds a scheduler over the benchmark root.
func NewScheduler(root string, st Store, runner Runner, logger *slog.Logger) *Scheduler {
	return &Scheduler{root: root, store: st, runner: runner, logger: logger}
}

// concurrencyFor picks the lane count from batch size. Small batches run
// sequentially; the pool never exceeds 8 lanes.
func concurrencyFor(n int) int {
	switch {
	case n < 3:
		return 1
	case n <= 5:
		return 2
	case n <= 15:
		return 3
	case n <= 30:
		return 5
	default:
		return 8
	}
}

// Expand produces the cartesian product of the selection, dropping tiers a
// scenario does not provide and dropping model values for backends that
// ignore them.
func (s *Scheduler) Expand(sel Selection) ([]models.Combination, error) {
	suites := sel.Suites
	if len(suites) == 0 {
		all, err := scenario.ListSuites(s.root)
		if err != nil {
			return nil, fmt.Errorf("listing suites: %w", err)
		}
		suites = all
	}

	var combos []models.Combination
	for _, suite := range suites {
		scenarios := sel.Scenarios
		if len(scenarios) == 0 {
			all, err := scenario.ListScenarios(s.root, suite)
			if err != nil {
				return nil, fmt.Errorf("listing scenarios for %s: %w", suite, err)
			}
			scenarios = all
		}

		for _, name := range scenarios {
			scen, err := scenario.Load(s.root, suite, name)
			if err != nil {
				return nil, err
			}

			available := scen.Tiers()
			tiers := sel.Tiers
			if len(tiers) == 0 {
				tiers = available
			} else {
				tiers = intersect(tiers, available)
			}

			for _, tier := range tiers {
				for _, backend := range sel.Backends {
					if !backend.UsesModel() {
						combos = append(combos, models.Combination{
							Suite: suite, Scenario: name, Tier: tier, Backend: backend,
						})
						continue
					}
					for _, model := range sel.Models {
						combos = append(combos, models.Combination{
							Suite: suite, Scenario: name, Tier: tier, Backend: backend, Model: model,
						})
					}
				}
			}
		}
	}
	return combos, nil
}

func intersect(want, available []string) []string {
	set := make(map[string]struct{}, len(available))
	for _, t := range available {
		set[t] = struct{}{}
	}
	var out []string
	for _, t := range want {
		if _, ok := set[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Run expands the selection and executes every combination, then recomputes
// batch aggregates from the persisted run records. Interruption marks
// unfinished runs incomplete rather than leaving them dangling.
func (s *Scheduler) Run(ctx context.Context, sel Selection) (*models.Batch, error) {
	combos, err := s.Expand(sel)
	if err != nil {
		return nil, err
	}
	if len(combos) == 0 {
		return nil, fmt.Errorf("selection expands to no combinations")
	}

	batch := &models.Batch{
		ID:        uuid.NewString(),
		State:     models.BatchOpen,
		StartedAt: time.Now().UTC(),
	}
	if err := s.store.StartBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("starting batch: %w", err)
	}

	lanes := concurrencyFor(len(combos))
	s.logger.Info("batch started", "batch_id", batch.ID, "combinations", len(combos), "lanes", lanes)

	jobs := make(chan models.Combination, len(combos))
	for _, comb := range combos {
		jobs <- comb
	}
	close(jobs)

	var mu sync.Mutex
	var runIDs []string

	// Lane failures here are persistence failures; run-level benchmark
	// failures are contained inside the executor and land as failed runs.
	g, gctx := errgroup.WithContext(ctx)
	for lane := 0; lane < lanes; lane++ {
		g.Go(func() error {
			for comb := range jobs {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				run, err := s.runner.Execute(gctx, batch.ID, comb)
				if err != nil {
					return err
				}
				mu.Lock()
				runIDs = append(runIDs, run.ID)
				mu.Unlock()
			}
			return nil
		})
	}

	waitErr := g.Wait()

	// Aggregates come from what was persisted, not from in-memory run
	// values. Finalization uses a fresh context so an interrupt still
	// leaves consistent records behind.
	finalCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	runs, err := s.store.ListRunsByBatch(finalCtx, batch.ID)
	if err != nil {
		return nil, fmt.Errorf("listing batch runs: %w", err)
	}

	for _, run := range runs {
		if run.State.Terminal() {
			continue
		}
		reason := "batch interrupted"
		if waitErr != nil {
			reason = "batch aborted: " + waitErr.Error()
		}
		if err := s.store.MarkIncomplete(finalCtx, run.ID, reason); err != nil {
			s.logger.Warn("marking run incomplete failed", "run_id", run.ID, "error", err)
		} else {
			run.State = models.RunIncomplete
		}
	}

	batch.EndedAt = time.Now().UTC()
	batch.Stats = store.ComputeBatchStats(runs, batch.StartedAt, batch.EndedAt)
	batch.State = models.BatchCompleted
	for _, run := range runs {
		batch.RunIDs = append(batch.RunIDs, run.ID)
	}

	if err := s.store.CompleteBatch(finalCtx, batch.ID, batch.Stats, batch.RunIDs); err != nil {
		return nil, fmt.Errorf("completing batch: %w", err)
	}

	s.logger.Info("batch completed",
		"batch_id", batch.ID,
		"total", batch.Stats.TotalRuns,
		"successful", batch.Stats.SuccessfulRuns,
		"avg_weighted", batch.Stats.AvgWeightedScore)

	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return batch, fmt.Errorf("batch aborted: %w", waitErr)
	}
	return batch, nil
}
