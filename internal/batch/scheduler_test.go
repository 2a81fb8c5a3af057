package batch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/keiko-bench/keiko/internal/models"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConcurrencyFor(t *testing.T) {
	cases := []struct {
		combinations int
		lanes        int
	}{
		{1, 1},
		{2, 1},
		{3, 2},
		{5, 2},
		{6, 3},
		{10, 3},
		{15, 3},
		{16, 5},
		{20, 5},
		{30, 5},
		{31, 8},
		{45, 8},
		{500, 8},
	}
	for _, tc := range cases {
		require.Equal(t, tc.lanes, concurrencyFor(tc.combinations), "n=%d", tc.combinations)
	}
}

// memBatchStore implements Store in memory, shared with the fake runner.
type memBatchStore struct {
	mu      sync.Mutex
	batches map[string]*models.Batch
	runs    map[string][]*models.Run
}

func newMemBatchStore() *memBatchStore {
	return &memBatchStore{
		batches: make(map[string]*models.Batch),
		runs:    make(map[string][]*models.Run),
	}
}

func (m *memBatchStore) StartBatch(_ context.Context, batch *models.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *batch
	m.batches[batch.ID] = &clone
	return nil
}

func (m *memBatchStore) CompleteBatch(_ context.Context, id string, stats models.BatchStats, runIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.batches[id]
	b.State = models.BatchCompleted
	b.Stats = stats
	b.RunIDs = runIDs
	return nil
}

func (m *memBatchStore) ListRunsByBatch(_ context.Context, batchID string) ([]*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Run(nil), m.runs[batchID]...), nil
}

func (m *memBatchStore) MarkIncomplete(_ context.Context, id string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, runs := range m.runs {
		for _, run := range runs {
			if run.ID == id {
				run.State = models.RunIncomplete
				run.Error = reason
			}
		}
	}
	return nil
}

func (m *memBatchStore) record(run *models.Run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.BatchID] = append(m.runs[run.BatchID], run)
}

// countingRunner records the peak number of in-flight Execute calls.
type countingRunner struct {
	store    *memBatchStore
	inFlight atomic.Int64
	peak     atomic.Int64
	failOdd  bool
	count    atomic.Int64
}

func (r *countingRunner) Execute(_ context.Context, batchID string, comb models.Combination) (*models.Run, error) {
	cur := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		peak := r.peak.Load()
		if cur <= peak || r.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	run := &models.Run{
		ID:          uuid.NewString(),
		BatchID:     batchID,
		Combination: comb,
		State:       models.RunCompleted,
		Total:       models.WeightedTotal{Weighted: 8, Max: 10},
		ScoreCard:   models.ScoreCard{"install_success": 1},
	}
	if r.failOdd && r.count.Add(1)%2 == 0 {
		run.State = models.RunFailed
		run.FailedStage = models.StageAgent
		run.Total = models.WeightedTotal{Max: 10}
	}
	r.store.record(run)
	return run, nil
}

// writeMatrix lays out suites/scenarios/tiers for expansion tests.
func writeMatrix(t *testing.T, root string, suite string, scenarios map[string][]string) {
	t.Helper()
	for name, tiers := range scenarios {
		dir := filepath.Join(root, suite, name)
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "prompts"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "scenario.yaml"), []byte("title: "+name+"\n"), 0o644))
		for _, tier := range tiers {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "prompts", tier+".md"), []byte("p"), 0o644))
		}
	}
}

func TestExpand(t *testing.T) {
	root := t.TempDir()
	writeMatrix(t, root, "js", map[string][]string{
		"alpha": {"terse", "verbose"},
		"beta":  {"terse"},
	})
	s := NewScheduler(root, newMemBatchStore(), nil, discardLogger())

	t.Run("models dropped for agent-less backends", func(t *testing.T) {
		combos, err := s.Expand(Selection{
			Suites:    []string{"js"},
			Scenarios: []string{"beta"},
			Backends:  []models.Backend{models.BackendEcho},
			Models:    []string{"m1", "m2"},
		})
		require.NoError(t, err)
		require.Len(t, combos, 1)
		require.Empty(t, combos[0].Model)
	})

	t.Run("models multiply for real backends", func(t *testing.T) {
		combos, err := s.Expand(Selection{
			Suites:    []string{"js"},
			Scenarios: []string{"beta"},
			Backends:  []models.Backend{models.BackendAnthropic},
			Models:    []string{"m1", "m2"},
		})
		require.NoError(t, err)
		require.Len(t, combos, 2)
	})

	t.Run("unavailable tiers dropped", func(t *testing.T) {
		combos, err := s.Expand(Selection{
			Suites:   []string{"js"},
			Tiers:    []string{"verbose"},
			Backends: []models.Backend{models.BackendEcho},
		})
		require.NoError(t, err)
		// Only alpha has a verbose tier.
		require.Len(t, combos, 1)
		require.Equal(t, "alpha", combos[0].Scenario)
	})

	t.Run("empty selection discovers everything", func(t *testing.T) {
		combos, err := s.Expand(Selection{
			Backends: []models.Backend{models.BackendEcho},
		})
		require.NoError(t, err)
		// alpha terse+verbose, beta terse.
		require.Len(t, combos, 3)
	})
}

func TestRun_SequentialForSmallBatch(t *testing.T) {
	root := t.TempDir()
	writeMatrix(t, root, "js", map[string][]string{"alpha": {"terse", "verbose"}})

	st := newMemBatchStore()
	runner := &countingRunner{store: st}
	s := NewScheduler(root, st, runner, discardLogger())

	batch, err := s.Run(context.Background(), Selection{
		Backends: []models.Backend{models.BackendEcho},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), runner.peak.Load())
	require.Equal(t, 2, batch.Stats.TotalRuns)
}

func TestRun_BoundedConcurrency(t *testing.T) {
	root := t.TempDir()
	writeMatrix(t, root, "js", map[string][]string{
		"a": {"t1", "t2"}, "b": {"t1", "t2"}, "c": {"t1", "t2"},
		"d": {"t1", "t2"}, "e": {"t1", "t2"},
	})

	st := newMemBatchStore()
	runner := &countingRunner{store: st}
	s := NewScheduler(root, st, runner, discardLogger())

	// 10 combinations -> 3 lanes.
	batch, err := s.Run(context.Background(), Selection{
		Backends: []models.Backend{models.BackendEcho},
	})
	require.NoError(t, err)
	require.Equal(t, 10, batch.Stats.TotalRuns)
	require.LessOrEqual(t, runner.peak.Load(), int64(3))
}

func TestRun_AggregatesFromPersistedRuns(t *testing.T) {
	root := t.TempDir()
	writeMatrix(t, root, "js", map[string][]string{
		"a": {"t1", "t2"}, "b": {"t1", "t2"},
	})

	st := newMemBatchStore()
	runner := &countingRunner{store: st, failOdd: true}
	s := NewScheduler(root, st, runner, discardLogger())

	batch, err := s.Run(context.Background(), Selection{
		Backends: []models.Backend{models.BackendEcho},
	})
	require.NoError(t, err)

	require.Equal(t, models.BatchCompleted, batch.State)
	require.Equal(t, 4, batch.Stats.TotalRuns)
	require.Equal(t, 2, batch.Stats.SuccessfulRuns)
	require.Equal(t, 8.0, batch.Stats.AvgWeightedScore)
	require.Len(t, batch.RunIDs, 4)
	require.Positive(t, batch.Stats.Duration)
}

func TestRun_EmptySelection(t *testing.T) {
	s := NewScheduler(t.TempDir(), newMemBatchStore(), nil, discardLogger())
	_, err := s.Run(context.Background(), Selection{Backends: []models.Backend{models.BackendEcho}})
	require.ErrorContains(t, err, "no combinations")
}
