package level_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/valk-sh/go-scorecache/level"
)

func TestXPForLevel(t *testing.T) {
	require.Zero(t, level.XPForLevel(0))
	require.Equal(t, uint64(100), level.XPForLevel(1))
	require.Equal(t, uint64(255), level.XPForLevel(2))
	require.Equal(t, uint64(475), level.XPForLevel(3))
	require.Equal(t, uint64(1150), level.XPForLevel(5))

	// Each step matches the per-level requirement.
	for n := uint64(0); n < 200; n++ {
		step := level.XPForLevel(n+1) - level.XPForLevel(n)
		require.Equal(t, 5*n*n+50*n+100, step, "level %d", n)
	}

	require.Equal(t, level.XPForLevel(level.MaxLevel), level.XPForLevel(math.MaxUint64))
}

func TestNew(t *testing.T) {
	info := level.New(0)
	require.Equal(t, level.Info{XP: 0, Level: 0, Percentage: 0}, info)

	info = level.New(99)
	require.Equal(t, uint64(0), info.Level)
	require.InDelta(t, 99.0, info.Percentage, 1e-9)

	info = level.New(100)
	require.Equal(t, uint64(1), info.Level)
	require.Zero(t, info.Percentage)

	info = level.New(177)
	require.Equal(t, uint64(1), info.Level)
	require.InDelta(t, 77.0/155.0*100, info.Percentage, 1e-9)

	info = level.New(1235)
	require.Equal(t, uint64(5), info.Level)
	require.Equal(t, uint64(1235), info.XP)
}

func TestNewLevelBoundaries(t *testing.T) {
	for n := uint64(1); n < 500; n++ {
		xp := level.XPForLevel(n)
		require.Equal(t, n, level.New(xp).Level)
		require.Equal(t, n-1, level.New(xp-1).Level)

		pct := level.New(xp - 1).Percentage
		require.GreaterOrEqual(t, pct, 0.0)
		require.Less(t, pct, 100.0)
	}
}

func TestNewHuge(t *testing.T) {
	info := level.New(math.MaxUint64)
	require.Equal(t, uint64(level.MaxLevel), info.Level)
	require.Zero(t, info.Percentage)
}
