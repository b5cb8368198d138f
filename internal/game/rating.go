package game

import "math"

// Outcome of a head-to-head race from the first participant's perspective.
type Outcome int

const (
	OutcomeDraw Outcome = iota
	OutcomeFirstWins
	OutcomeSecondWins
)

// ExpectedScore returns the logistic win expectation of a player rated
// `rating` against an opponent rated `opponent`.
func ExpectedScore(rating, opponent int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(opponent-rating)/400.0))
}

// SettleRatings computes the Elo deltas for a head-to-head race.
// It is a pure function: persistence of the resulting ratings is the
// caller's problem. Deltas are rounded to the nearest integer, so a pair
// of equally rated players always settles zero-sum.
func SettleRatings(ratingA, ratingB int, outcome Outcome, k int) (deltaA, deltaB int) {
	expectedA := ExpectedScore(ratingA, ratingB)
	expectedB := ExpectedScore(ratingB, ratingA)

	var scoreA, scoreB float64
	switch outcome {
	case OutcomeFirstWins:
		scoreA, scoreB = 1, 0
	case OutcomeSecondWins:
		scoreA, scoreB = 0, 1
	case OutcomeDraw:
		scoreA, scoreB = 0.5, 0.5
	}

	deltaA = int(math.Round(float64(k) * (scoreA - expectedA)))
	deltaB = int(math.Round(float64(k) * (scoreB - expectedB)))
	return deltaA, deltaB
}
