package models

// ScoreCard maps metric names to scores in [0, 1]. Cards are produced by
// evaluators; the engine only aggregates them.
type ScoreCard map[string]float64

// Clone returns a copy so aggregation never mutates an evaluator's card.
func (s ScoreCard) Clone() ScoreCard {
	out := make(ScoreCard, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// WeightedTotal is the single 0-10 score derived from a scorecard and a
// weight table. It is recomputed on every scoring pass, never mutated.
type WeightedTotal struct {
	Weighted float64 `json:"weighted"`
	Max      float64 `json:"max"`
}

// EvaluationDetail is one evaluator-level finding attached to a run.
type EvaluationDetail struct {
	Metric  string  `json:"metric"`
	Score   float64 `json:"score"`
	Passed  bool    `json:"passed"`
	Notes   string  `json:"notes,omitempty"`
	Details any     `json:"details,omitempty"`
}
