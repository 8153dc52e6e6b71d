// Package xp maps experience points to skill levels.
//
// The curve is quadratic: reaching level L requires 50*L*(L-1) XP, so level 2 needs 100 XP,
// level 3 needs 300 XP and so on. It is monotonic and has no cap.
package xp

import "math"

// ForLevel returns the total XP required to reach level. Levels below 1 map to 0.
func ForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	l := int64(level)
	return 50 * l * (l - 1)
}

// Level returns the level reached with the given total XP (minimum 1).
func Level(total int64) int {
	if total <= 0 {
		return 1
	}
	// Solve 50*L*(L-1) <= total for the largest integer L, then correct for float error.
	l := int((1 + math.Sqrt(1+float64(total)*4/50)) / 2)
	if l < 1 {
		l = 1
	}
	for ForLevel(l+1) <= total {
		l++
	}
	for l > 1 && ForLevel(l) > total {
		l--
	}
	return l
}
