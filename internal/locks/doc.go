// Package locks implements the lock coordinator: per-account, per-category
// mutual exclusion between automated tasks and manual actions.
//
// A lock has two states, FREE and HELD, and no others. HELD always
// returns to FREE: task bodies run inside Coordinator.With, which
// guarantees release on every exit path including panics. Release is
// idempotent.
//
// Every acquire/release transition is broadcast as a lock_status event so
// every open tab can enable or disable its manual controls consistently.
package locks
