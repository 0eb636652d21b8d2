// Package session holds mutable per-account state behind accessor
// methods: the persisted settings blob, the pause flag, the latest price
// snapshot, and price-alert arming. Sessions come from a registry with
// get-or-create semantics and live for the process lifetime.
package session
