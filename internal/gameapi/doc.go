// Package gameapi is the typed adapter over the Shipping Manager HTTP API.
//
// It is the only place that knows the upstream wire quirks: quantities
// travel in kilograms while the domain works in tonnes, id lists travel as
// comma-joined strings, and commodity prices are keyed by 30-minute UTC
// slot labels ("HH:00"/"HH:30"). The adapter computes the current slot and
// requires a matching row; it never falls back to an arbitrary one.
//
// Failures are classified into three sentinels: ErrTransient (network,
// timeout, 5xx), ErrDataAnomaly (valid shape, suspicious contents), and
// ErrSession (rejected cookie). A missing or malformed expected field is a
// hard error rather than a defaulted value, because a defaulted value
// would be broadcast to clients as fabricated financial data.
package gameapi
