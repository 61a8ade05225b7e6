package app_test

import (
	"testing"

	"quizduel-service/internal/app"
)

func TestScoreDecaysWithLatency(t *testing.T) {
	rules := app.DefaultScoringRules()
	cases := []struct {
		name    string
		correct bool
		latency int64
		want    int
	}{
		{"instant", true, 0, 1000},
		{"two seconds", true, 2000, 900},
		{"ten seconds", true, 10000, 500},
		{"floored at half", true, 25000, 500},
		{"negative latency clamps to zero", true, -300, 1000},
		{"wrong answer", false, 100, 0},
	}
	for _, tc := range cases {
		if got := rules.Score(tc.correct, tc.latency, 30000); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestScoreClampsToTimeLimit(t *testing.T) {
	rules := app.ScoringRules{BasePoints: 1000, PenaltyPerSecond: 10}
	// 60s reported against a 5s limit is scored as 5s.
	if got := rules.Score(true, 60000, 5000); got != 950 {
		t.Fatalf("expected 950, got %d", got)
	}
}
