package upstream

import "errors"

// Failure classes. Errors returned by Client wrap exactly one of them.
var (
	ErrNetwork   = errors.New("network failure")
	ErrMalformed = errors.New("malformed response")
	// ErrTimestamp is partial: the measurement is still returned with its
	// raw timestamp.
	ErrTimestamp = errors.New("unparseable timestamp")
)
