package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrNotConnected   = errors.New("not connected")
	ErrClosed         = errors.New("closed")
	ErrStaleSnapshot  = errors.New("stale snapshot")
	ErrMalformed      = errors.New("malformed message")
	ErrTerminal       = errors.New("terminal transport failure")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrRateLimited    = errors.New("rate limited")
	ErrSigningFailed  = errors.New("signing failed")
	ErrInvalidDecimal = errors.New("invalid decimal string")
)
