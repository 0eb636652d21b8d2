// Package pilot contains the automations and the Runner that executes
// them.
//
// Each pilot is one named action against the game: topping up fuel or CO2
// quota, departing ready vessels, repairing or drydocking worn ones,
// sending the co-op bonus, negotiating pirate ransoms, renewing ad
// campaigns, and watching commodity prices.
//
// The Runner provides the guarantees pilots rely on: a run only starts
// with a configured session, the pilot's lock category is held for
// exactly the duration of the body and released on every exit path
// including panics, and any failure becomes exactly one logbook entry.
// Nothing a pilot does can escape into the scheduler.
package pilot
