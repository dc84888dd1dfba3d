package domain

import "errors"

// ErrNotFound reports a lookup of something the daemon has never seen.
var ErrNotFound = errors.New("domain: not found") //nolint:gochecknoglobals // sentinel error
