package app

import "math"

// ScoringRules produce a time-decayed score for a correct answer.
type ScoringRules struct {
	BasePoints       int
	PenaltyPerSecond int
}

func DefaultScoringRules() ScoringRules {
	return ScoringRules{BasePoints: 1000, PenaltyPerSecond: 50}
}

// Score returns 0 for a wrong answer. A correct answer earns BasePoints minus
// PenaltyPerSecond for every second of latency, never dropping below half of
// BasePoints. Latency is clamped to [0, timeLimitMs].
func (r ScoringRules) Score(correct bool, latencyMs, timeLimitMs int64) int {
	if !correct {
		return 0
	}
	if latencyMs < 0 {
		latencyMs = 0
	}
	if timeLimitMs > 0 && latencyMs > timeLimitMs {
		latencyMs = timeLimitMs
	}
	base := float64(r.BasePoints)
	floor := base * 0.5
	penalty := math.Min(float64(r.PenaltyPerSecond)*float64(latencyMs)/1000, floor)
	return int(math.Round(math.Max(base-penalty, floor)))
}
