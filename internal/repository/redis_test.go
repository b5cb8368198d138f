package repository

import (
	"testing"
	"time"
)

func TestCompositeScoreRoundTrip(t *testing.T) {
	now := time.Now().Unix()

	tests := []struct {
		name   string
		rating int
	}{
		{"floor rating", 0},
		{"default rating", 1200},
		{"high rating", 3000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := ComputeCompositeScore(tt.rating, now)
			if got := ExtractBaseScore(score); got != tt.rating {
				t.Errorf("ExtractBaseScore(ComputeCompositeScore(%d)) = %d", tt.rating, got)
			}
		})
	}
}

func TestCompositeScoreFavorsEarlierTimestamp(t *testing.T) {
	early := ComputeCompositeScore(1200, time.Now().Unix())
	late := ComputeCompositeScore(1200, time.Now().Add(time.Hour).Unix())

	if early <= late {
		t.Errorf("earlier settlement should rank higher: early %f, late %f", early, late)
	}
	if ExtractBaseScore(early) != ExtractBaseScore(late) {
		t.Error("tiebreak fraction must not change the integer rating")
	}
}
