package models

import "time"

// RunState is the lifecycle state of a run. Terminal states are final; the
// store rejects writes to a run that has reached one.
type RunState string

const (
	RunPending    RunState = "pending"
	RunRunning    RunState = "running"
	RunCompleted  RunState = "completed"
	RunFailed     RunState = "failed"
	RunIncomplete RunState = "incomplete"
)

// Terminal reports whether the state admits no further transitions.
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunIncomplete
}

// Stage names the pipeline stage a failure or degradation occurred in.
type Stage string

const (
	StagePrompt     Stage = "prompt"
	StageWorkspace  Stage = "workspace"
	StageAgent      Stage = "agent"
	StageValidation Stage = "validation"
	StageDiff       Stage = "diff"
	StageEvaluation Stage = "evaluation"
)

// Telemetry holds per-run agent session measurements.
type Telemetry struct {
	TokensIn   int           `json:"tokens_in"`
	TokensOut  int           `json:"tokens_out"`
	CostUSD    float64       `json:"cost_usd"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	Duration   time.Duration `json:"duration"`
	FinalReply string        `json:"final_reply,omitempty"`
}

// DegradedStage records a best-effort stage that failed without failing the
// run. Tests assert on these to distinguish degraded-but-complete runs from
// clean ones.
type DegradedStage struct {
	Stage  Stage  `json:"stage"`
	Reason string `json:"reason"`
}

// OracleExchange is one question/answer pair from the ask_user tool.
type OracleExchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Run is one scored execution of a combination.
type Run struct {
	ID          string             `json:"run_id"`
	BatchID     string             `json:"batch_id,omitempty"`
	Combination Combination        `json:"combination"`
	State       RunState           `json:"state"`
	FailedStage Stage              `json:"failed_stage,omitempty"`
	Error       string             `json:"error,omitempty"`
	Telemetry   Telemetry          `json:"telemetry"`
	Commands    []CommandResult    `json:"commands,omitempty"`
	ScoreCard   ScoreCard          `json:"scorecard,omitempty"`
	Evaluations []EvaluationDetail `json:"evaluations,omitempty"`
	Total       WeightedTotal      `json:"weighted_total"`
	OracleLog   []OracleExchange   `json:"oracle_log,omitempty"`
	Degraded    []DegradedStage    `json:"degraded,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at,omitempty"`
}

// BatchState is the lifecycle state of a batch.
type BatchState string

const (
	BatchOpen      BatchState = "open"
	BatchCompleted BatchState = "completed"
)

// BatchStats are derived strictly from a batch's persisted runs.
type BatchStats struct {
	TotalRuns        int           `json:"total_runs"`
	SuccessfulRuns   int           `json:"successful_runs"`
	AvgScore         float64       `json:"avg_score"`
	AvgWeightedScore float64       `json:"avg_weighted_score"`
	Duration         time.Duration `json:"duration"`
}

// Batch groups runs executed under one scheduling invocation.
type Batch struct {
	ID        string     `json:"batch_id"`
	State     BatchState `json:"state"`
	RunIDs    []string   `json:"run_ids"`
	Stats     BatchStats `json:"stats"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   time.Time  `json:"ended_at,omitempty"`
}
