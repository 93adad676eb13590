package rating

import (
	"math"
	"testing"
)

func TestExpectedScoreSymmetry(t *testing.T) {
	ratings := []float64{0, 100, 800, 968, 1000, 1032, 1200, 1500, 2400, 3000}

	for _, a := range ratings {
		for _, b := range ratings {
			sum := ExpectedScore(a, b) + ExpectedScore(b, a)
			if math.Abs(sum-1.0) > 1e-9 {
				t.Errorf("ExpectedScore(%v,%v)+ExpectedScore(%v,%v) = %v, want 1", a, b, b, a, sum)
			}
		}
	}
}

func TestExpectedScoreBoundaries(t *testing.T) {
	if got := ExpectedScore(1000, 1000); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("equal ratings: expected score %v, want 0.5", got)
	}
	// A 400 point gap gives the stronger player ~10:1 odds.
	if got := ExpectedScore(1400, 1000); math.Abs(got-10.0/11.0) > 1e-9 {
		t.Errorf("400 point gap: expected score %v, want %v", got, 10.0/11.0)
	}
	if got := ExpectedScore(3000, 0); got <= 0.99 {
		t.Errorf("huge gap: expected score %v, want near 1", got)
	}
	if got := ExpectedScore(0, 3000); got >= 0.01 {
		t.Errorf("huge deficit: expected score %v, want near 0", got)
	}
}

func TestKFactor(t *testing.T) {
	tests := []struct {
		gamesPlayed int
		want        float64
	}{
		{0, KProvisional},
		{9, KProvisional},
		{10, KStandard},
		{100, KStandard},
	}
	for _, tt := range tests {
		if got := KFactor(tt.gamesPlayed); got != tt.want {
			t.Errorf("KFactor(%d) = %v, want %v", tt.gamesPlayed, got, tt.want)
		}
	}
}

func TestNewRatingDirection(t *testing.T) {
	// Against any expected score, a win never lowers the rating, a loss
	// never raises it, and the shift direction follows actual-expected.
	ratings := []float64{800, 1000, 1200, 2000}

	for _, a := range ratings {
		for _, b := range ratings {
			expected := ExpectedScore(a, b)

			win := NewRating(a, expected, ScoreWin, 20)
			loss := NewRating(a, expected, ScoreLoss, 20)
			if win < a {
				t.Errorf("win lowered rating %v -> %v (expected %v)", a, win, expected)
			}
			if loss > a {
				t.Errorf("loss raised rating %v -> %v (expected %v)", a, loss, expected)
			}
			if win <= loss && expected > 0 && expected < 1 {
				t.Errorf("win result %v not above loss result %v", win, loss)
			}
		}
	}
}

func TestNewRatingZeroSum(t *testing.T) {
	// At equal K, the winner gains what the loser drops (up to rounding).
	a, b := 1100.0, 900.0
	ea := ExpectedScore(a, b)
	eb := ExpectedScore(b, a)

	gain := NewRating(a, ea, ScoreWin, 50) - a
	drop := b - NewRating(b, eb, ScoreLoss, 50)
	if math.Abs(gain-drop) > 1.0 {
		t.Errorf("gain %v and drop %v differ by more than rounding", gain, drop)
	}
}

func TestNewRatingProvisionalFirstGame(t *testing.T) {
	// Two fresh players at the default rating: the winner lands on 1032,
	// the loser on 968 (K=64, expected 0.5).
	expected := ExpectedScore(DefaultRating, DefaultRating)

	winner := NewRating(DefaultRating, expected, ScoreWin, 0)
	loser := NewRating(DefaultRating, expected, ScoreLoss, 0)

	if winner != 1032 {
		t.Errorf("winner rating = %v, want 1032", winner)
	}
	if loser != 968 {
		t.Errorf("loser rating = %v, want 968", loser)
	}

	draw := NewRating(DefaultRating, expected, ScoreDraw, 0)
	if draw != DefaultRating {
		t.Errorf("draw at equal ratings moved rating to %v", draw)
	}
}

func TestNewRatingRounds(t *testing.T) {
	got := NewRating(1000, ExpectedScore(1000, 1100), ScoreWin, 30)
	if got != math.Round(got) {
		t.Errorf("rating %v not rounded", got)
	}
}
