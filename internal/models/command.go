package models

import "time"

// CommandKind names a validation command slot declared by a scenario.
type CommandKind string

const (
	CommandInstall   CommandKind = "install"
	CommandLint      CommandKind = "lint"
	CommandTypecheck CommandKind = "typecheck"
	// CommandTest exists in scenario files but is not part of the scheduled
	// execution order. Kept so declared test commands still parse.
	CommandTest CommandKind = "test"
)

// CommandResult captures one executed validation command. Results are
// append-only and ordered by the fixed execution sequence.
type CommandResult struct {
	Kind     CommandKind   `json:"kind"`
	Command  string        `json:"command"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
}

// Succeeded reports whether the command exited zero.
func (r CommandResult) Succeeded() bool {
	return r.ExitCode == 0
}
