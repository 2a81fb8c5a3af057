// Package validation executes scenario-declared shell commands against a
// workspace, capturing output and exit codes.
package validation

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"

	"github.com/keiko-bench/keiko/internal/models"
)

// commandTimeout is the hard wall-clock bound for each validation command.
const commandTimeout = 10 * time.Minute

// executionOrder is the fixed sequence validation commands run in. Only
// kinds declared by the scenario actually execute. CommandTest is absent on
// purpose: declared test commands parse but are never scheduled.
var executionOrder = []models.CommandKind{
	models.CommandInstall,
	models.CommandLint,
	models.CommandTypecheck,
}

// Runner executes validation commands sequentially and unconditionally: an
// earlier failure never skips later commands.
type Runner struct {
	logger *slog.Logger
}

// NewRunner returns a validation runner.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// Run executes the declared commands in the fixed order and returns one
// result per executed command, in order. Every command yields a result
// regardless of success; a spawn-level failure is captured as exit code -1
// with the error text in stderr rather than returned as an error.
func (r *Runner) Run(ctx context.Context, workspaceDir string, commands map[models.CommandKind]string) []models.CommandResult {
	results := make([]models.CommandResult, 0, len(executionOrder))

	for _, kind := range executionOrder {
		command, ok := commands[kind]
		if !ok {
			continue
		}

		result := r.runOne(ctx, workspaceDir, kind, command)
		r.logger.Debug("validation command finished",
			"kind", kind, "exit_code", result.ExitCode, "duration_ms", result.Duration.Milliseconds())
		results = append(results, result)
	}

	return results
}

func (r *Runner) runOne(ctx context.Context, workspaceDir string, kind models.CommandKind, command string) models.CommandResult {
	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)
	cmd.Dir = workspaceDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	result := models.CommandResult{
		Kind:     kind,
		Command:  command,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: elapsed,
	}

	switch {
	case err == nil:
		result.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// Spawn-level failure (shell unavailable, bad workspace dir):
			// captured as data, never thrown.
			result.ExitCode = -1
			if result.Stderr == "" {
				result.Stderr = err.Error()
			}
		}
	}

	return result
}
