// Package scoring turns a raw metric scorecard into a single weighted total
// on a 0-10 scale.
package scoring

import (
	"math"

	"github.com/keiko-bench/keiko/internal/models"
)

// maxWeighted is the ceiling of the weighted total scale.
const maxWeighted = 10.0

// baseWeights is the default rubric weight table. Metrics absent from the
// table weigh 1.
var baseWeights = map[string]float64{
	"install_success":     1.5,
	"tests_nonregression": 2.5,
	"manager_correctness": 1,
	"dependency_targets":  2,
	"integrity_guard":     1.5,
}

// Compute derives the weighted total for a scorecard. Scenario-level
// overrides replace base weights by name; entries with weight <= 0 are
// excluded from both numerator and denominator. The result is
// (sum score*weight / sum weight) * 10, rounded to 4 decimals; an empty
// effective weight sum yields 0. Max is always 10.
func Compute(card models.ScoreCard, overrides map[string]float64) models.WeightedTotal {
	weightedSum := 0.0
	weightSum := 0.0

	for metric, score := range card {
		w := weightFor(metric, overrides)
		if w <= 0 {
			continue
		}
		weightedSum += score * w
		weightSum += w
	}

	total := models.WeightedTotal{Max: maxWeighted}
	if weightSum == 0 {
		return total
	}

	total.Weighted = round4(weightedSum / weightSum * maxWeighted)
	return total
}

func weightFor(metric string, overrides map[string]float64) float64 {
	if w, ok := overrides[metric]; ok {
		return w
	}
	if w, ok := baseWeights[metric]; ok {
		return w
	}
	return 1
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
