// Package cache provides the per-account read-through cache for upstream
// datasets (vessel fleet, advertising campaigns).
//
// Validity is binary: an entry is valid from the moment it is stored until
// an invalidation event removes it. There is no time-based expiry. The
// events that invalidate are state-changing operations such as purchases
// and fleet-count changes, routed through Invalidate by the pilots that
// perform them.
//
// Concurrent misses for the same (account, kind) pair are coalesced so the
// upstream sees a single fetch regardless of how many callers raced.
package cache
