package gameapi

import "errors"

var (
	// ErrTransient marks a network failure, timeout, or upstream 5xx.
	// Transient failures are logged and retried on the next scheduled
	// tick; they never raise an account-visible alarm.
	ErrTransient = errors.New("gameapi: transient upstream failure")

	// ErrDataAnomaly marks a response whose shape is valid but whose
	// contents are suspicious, such as a missing price slot or a zero
	// price. The current cycle is skipped and the cache left untouched.
	ErrDataAnomaly = errors.New("gameapi: upstream data anomaly")

	// ErrSession marks an authentication failure (expired or missing
	// session cookie). Automated tasks skip until the session is
	// restored.
	ErrSession = errors.New("gameapi: session rejected by upstream")
)
