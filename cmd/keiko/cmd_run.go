package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/keiko-bench/keiko/internal/batch"
	"github.com/keiko-bench/keiko/internal/executor"
	"github.com/keiko-bench/keiko/internal/models"
	"github.com/keiko-bench/keiko/internal/store"
	"github.com/spf13/cobra"
)

var (
	benchRoot  string
	resultsDir string
	dbPath     string
	suites     []string
	scenarios  []string
	tiers      []string
	agents     []string
	modelIDs   []string
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a benchmark batch",
		Long: `Run every combination of the selected suites, scenarios, tiers, agents
and models. Small batches run sequentially; larger ones fan out across a
bounded worker pool.`,
		Args: cobra.NoArgs,
		RunE: runCommandE,
	}

	cmd.Flags().StringVar(&benchRoot, "root", "benchmarks", "Benchmark root directory")
	cmd.Flags().StringVar(&resultsDir, "results-dir", "results", "Directory for workspaces and the results database")
	cmd.Flags().StringVar(&dbPath, "db", "", "Path to the sqlite database (default: <results-dir>/keiko.db)")
	cmd.Flags().StringArrayVar(&suites, "suite", nil, "Suite to run (repeatable; default: all)")
	cmd.Flags().StringArrayVar(&scenarios, "scenario", nil, "Scenario to run (repeatable; default: all in suite)")
	cmd.Flags().StringArrayVar(&tiers, "tier", nil, "Prompt tier (repeatable; default: all available)")
	cmd.Flags().StringArrayVar(&agents, "agent", []string{"echo"}, "Agent backend: echo, anthropic, openrouter, claude-code (repeatable)")
	cmd.Flags().StringArrayVar(&modelIDs, "model", nil, "Model identifier (repeatable; ignored by agent-less backends)")

	return cmd
}

func runCommandE(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	backends := make([]models.Backend, 0, len(agents))
	for _, name := range agents {
		backend, err := models.ParseBackend(name)
		if err != nil {
			return err
		}
		backends = append(backends, backend)
	}

	needsModel := false
	for _, b := range backends {
		if b.UsesModel() {
			needsModel = true
		}
	}
	if needsModel && len(modelIDs) == 0 {
		return fmt.Errorf("at least one --model is required for the selected agents")
	}

	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return fmt.Errorf("creating results dir: %w", err)
	}
	if dbPath == "" {
		dbPath = filepath.Join(resultsDir, "keiko.db")
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	exec := executor.New(benchRoot, resultsDir, st, logger)
	scheduler := batch.NewScheduler(benchRoot, st, exec, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := scheduler.Run(ctx, batch.Selection{
		Suites:    suites,
		Scenarios: scenarios,
		Tiers:     tiers,
		Backends:  backends,
		Models:    modelIDs,
	})
	if err != nil {
		return err
	}

	printBatchSummary(cmd, st, result)

	if result.Stats.SuccessfulRuns < result.Stats.TotalRuns {
		return &RunFailureError{Message: fmt.Sprintf("%d of %d runs did not complete",
			result.Stats.TotalRuns-result.Stats.SuccessfulRuns, result.Stats.TotalRuns)}
	}
	return nil
}

func printBatchSummary(cmd *cobra.Command, st *store.Store, result *models.Batch) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nBatch %s\n", result.ID)
	fmt.Fprintf(out, "  runs:         %d (%d completed)\n", result.Stats.TotalRuns, result.Stats.SuccessfulRuns)
	fmt.Fprintf(out, "  avg score:    %.4f\n", result.Stats.AvgScore)
	fmt.Fprintf(out, "  avg weighted: %.4f / 10\n", result.Stats.AvgWeightedScore)
	fmt.Fprintf(out, "  duration:     %s\n\n", result.Stats.Duration.Round(1e6))

	details, err := st.GetBatchDetails(cmd.Context(), result.ID)
	if err != nil {
		fmt.Fprintf(out, "  (run details unavailable: %v)\n", err)
		return
	}

	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  COMBINATION\tSTATE\tWEIGHTED\tSTAGE")
	for _, run := range details.Runs {
		stage := ""
		if run.FailedStage != "" {
			stage = string(run.FailedStage)
		}
		fmt.Fprintf(w, "  %s\t%s\t%.2f\t%s\n", run.Combination.Label(), run.State, run.Total.Weighted, stage)
	}
	w.Flush()
}
