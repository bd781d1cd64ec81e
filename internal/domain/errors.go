package domain

import "errors"

var (
	// ErrMalformedOutput marks oracle text that could not be turned into the
	// requested record. Retrying does not help.
	ErrMalformedOutput = errors.New("malformed oracle output")

	// ErrOracleUnavailable marks an oracle that could not be reached.
	ErrOracleUnavailable = errors.New("oracle unavailable")
)
