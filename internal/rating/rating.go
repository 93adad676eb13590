package rating

import "math"

const (
	// DefaultRating is assigned on a player's first match participation.
	DefaultRating = 1000.0

	// ProvisionalGames is the number of games below which a player's
	// rating is considered provisional and moves with a larger K-factor.
	ProvisionalGames = 10

	KProvisional = 64.0
	KStandard    = 32.0
)

// Result scores relative to a player, fed into NewRating as the actual outcome.
const (
	ScoreWin  = 1.0
	ScoreDraw = 0.5
	ScoreLoss = 0.0
)

// ExpectedScore returns the probability that a player rated a beats a
// player rated b under the Elo model.
func ExpectedScore(a, b float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (b-a)/400.0))
}

// KFactor returns the rating adjustment multiplier for a player with the
// given number of completed games. The count is taken before the match
// being applied, so the in-flight game does not count toward leaving
// provisional status.
func KFactor(gamesPlayed int) float64 {
	if gamesPlayed < ProvisionalGames {
		return KProvisional
	}
	return KStandard
}

// NewRating returns the updated rating after a single result.
// actual is ScoreWin, ScoreDraw or ScoreLoss; expected comes from
// ExpectedScore for the same pairing.
func NewRating(current, expected, actual float64, gamesPlayed int) float64 {
	return math.Round(current + KFactor(gamesPlayed)*(actual-expected))
}
