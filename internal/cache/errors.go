package cache

import "errors"

// ErrNoLoader is returned by Get when no loader is registered for the
// requested kind. This is a wiring bug, not a runtime condition.
var ErrNoLoader = errors.New("cache: no loader registered for kind")
