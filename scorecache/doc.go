// Package scorecache provides a lock-free cache of numeric scores, keyed by
// numeric identifier, that is periodically refreshed in bulk from a remote
// source.
//
// Cache holds a single immutable snapshot of all scores. Lookups load the
// current snapshot atomically and never take a lock, so any number of
// request handlers can read concurrently without contending with each other
// or with a refresh that is in flight.
//
// ## Whole-Snapshot Replacement
//
// Each refresh fetches the complete dataset from its Source and builds a new
// snapshot off to the side. If the same identifier appears more than once in
// one fetched batch, the later record wins. The finished snapshot is then
// installed with a single atomic pointer swap. A lookup therefore observes
// either the old snapshot or the new one in its entirety, never a mixture,
// and a lookup that starts after Replace returns always sees the new data.
// Snapshots are never modified after they are published.
//
// ## Refresh Scheduling
//
// Refresher runs one refresh immediately and then one every refresh interval
// (default 20 minutes) until its context is canceled. Only one refresh runs
// at a time. The interval is measured between the starts of consecutive
// refreshes; a refresh that takes longer than the interval delays the next
// one rather than overlapping with it.
//
// A refresh that fails, because the source is unreachable, answers with an
// error status, or returns a malformed payload, leaves the current snapshot
// in place. The failure is logged, recorded in the refresher status, and
// delivered to every OnRefresh observer, and the next refresh is attempted at
// the next interval. A failed refresh never stops the refresher.
//
// Each fetch is bounded by a timeout (default 2 minutes) so that a stalled
// network call cannot stop all future refreshes.
//
// ## Multiple Sources
//
// MultiSource combines several sources into one. Records are concatenated in
// source order, so a later source wins for identifiers that appear in more
// than one. If any source fails the whole refresh fails, so that a partial
// dataset is never installed.
package scorecache
