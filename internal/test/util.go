package test

import (
	"math/rand"
	"sync/atomic"

	"github.com/valk-sh/go-scorecache/scorecache"
)

var globalSeed atomic.Int64

// RandomRecords returns n score records with unique random ids.
func RandomRecords(n int) []scorecache.ScoreRecord {
	rng := rand.New(rand.NewSource(globalSeed.Add(1)))

	records := make([]scorecache.ScoreRecord, 0, n)
	seen := make(map[uint64]struct{}, n)
	for len(records) < n {
		id := rng.Uint64()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		records = append(records, scorecache.ScoreRecord{
			ID:    id,
			Value: uint64(rng.Int63n(10_000_000)),
		})
	}
	return records
}

// UniformSnapshot returns a snapshot of n ids, 0 to n-1, that all map to
// value. Readers can detect a torn read as a snapshot with mixed values.
func UniformSnapshot(n int, value uint64) map[uint64]uint64 {
	m := make(map[uint64]uint64, n)
	for i := 0; i < n; i++ {
		m[uint64(i)] = value
	}
	return m
}
