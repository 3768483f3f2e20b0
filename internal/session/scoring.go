package session

import (
	"math"
	"time"
)

// Award converts a completed line's base points into the points actually
// granted: base × (1 + bonus × unusedFraction), where unusedFraction
// degrades linearly from 1 at an instant solve to 0 at the time limit.
// Elapsed is clamped to [0, timer]. The result carries two decimals.
func Award(basePoints float64, timerSec int, elapsed time.Duration, bonusMultiplier float64) float64 {
	if timerSec <= 0 {
		return round2(basePoints)
	}
	limit := time.Duration(timerSec) * time.Second
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > limit {
		elapsed = limit
	}
	unused := 1 - elapsed.Seconds()/limit.Seconds()
	return round2(basePoints * (1 + bonusMultiplier*unused))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

// clampElapsedSec returns the elapsed solve time in seconds, clamped to
// the puzzle's time window, for display purposes.
func clampElapsedSec(elapsed time.Duration, timerSec int) float64 {
	sec := elapsed.Seconds()
	if sec < 0 {
		sec = 0
	}
	if limit := float64(timerSec); timerSec > 0 && sec > limit {
		sec = limit
	}
	return round1(sec)
}
