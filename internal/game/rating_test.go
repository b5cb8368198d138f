package game

import (
	"math"
	"testing"
)

func TestExpectedScore(t *testing.T) {
	tests := []struct {
		name     string
		rating   int
		opponent int
		want     float64
	}{
		{"equal ratings", 1200, 1200, 0.5},
		{"400 points ahead", 1600, 1200, 10.0 / 11.0},
		{"400 points behind", 1200, 1600, 1.0 / 11.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpectedScore(tt.rating, tt.opponent)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ExpectedScore(%d, %d) = %f, want %f", tt.rating, tt.opponent, got, tt.want)
			}
		})
	}
}

func TestSettleRatings(t *testing.T) {
	tests := []struct {
		name       string
		ratingA    int
		ratingB    int
		outcome    Outcome
		wantDeltaA int
		wantDeltaB int
	}{
		{"equal ratings decisive win", 1200, 1200, OutcomeFirstWins, 16, -16},
		{"equal ratings decisive loss", 1200, 1200, OutcomeSecondWins, -16, 16},
		{"equal ratings draw", 1200, 1200, OutcomeDraw, 0, 0},
		{"underdog wins", 1000, 1400, OutcomeFirstWins, 29, -29},
		{"favorite wins", 1400, 1000, OutcomeFirstWins, 3, -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deltaA, deltaB := SettleRatings(tt.ratingA, tt.ratingB, tt.outcome, 32)
			if deltaA != tt.wantDeltaA || deltaB != tt.wantDeltaB {
				t.Errorf("SettleRatings(%d, %d) = (%d, %d), want (%d, %d)",
					tt.ratingA, tt.ratingB, deltaA, deltaB, tt.wantDeltaA, tt.wantDeltaB)
			}
		})
	}
}

func TestSettleRatingsZeroSumForEqualRatings(t *testing.T) {
	for _, outcome := range []Outcome{OutcomeFirstWins, OutcomeSecondWins, OutcomeDraw} {
		deltaA, deltaB := SettleRatings(1500, 1500, outcome, 32)
		if deltaA+deltaB != 0 {
			t.Errorf("outcome %v: deltas (%d, %d) are not zero-sum", outcome, deltaA, deltaB)
		}
	}
}
