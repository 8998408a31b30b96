// Package level converts an xp score into a level and the progress towards
// the next level, following the MEE6 level curve. Levelling up from level n
// takes 5n² + 50n + 100 xp.
package level

import "sort"

// MaxLevel is the highest level that XPForLevel computes without overflow.
const MaxLevel = 1_000_000

// Info describes the level reached with an amount of xp.
type Info struct {
	XP    uint64 `json:"xp"`
	Level uint64 `json:"level"`
	// Percentage is the progress from Level towards the next level, in the
	// range [0, 100).
	Percentage float64 `json:"percentage"`
}

// XPForLevel returns the total xp needed to reach level n from zero. Levels
// above MaxLevel are treated as MaxLevel.
func XPForLevel(n uint64) uint64 {
	if n > MaxLevel {
		n = MaxLevel
	}
	return 5 * n * (2*n*n + 27*n + 91) / 6
}

// New returns the level info for xp.
func New(xp uint64) Info {
	// First level whose requirement exceeds xp, minus one.
	lvl := uint64(sort.Search(MaxLevel+1, func(i int) bool {
		return XPForLevel(uint64(i)) > xp
	})) - 1

	info := Info{
		XP:    xp,
		Level: lvl,
	}
	if lvl < MaxLevel {
		last := XPForLevel(lvl)
		next := XPForLevel(lvl + 1)
		info.Percentage = float64(xp-last) / float64(next-last) * 100
	}
	return info
}
