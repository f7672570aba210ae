package discovery

import "errors"

var (
	// ErrUnreachable is returned when no attempt produced a response body.
	ErrUnreachable = errors.New("discovery: device unreachable")

	// ErrParse is returned when a body was fetched but names no device UID.
	ErrParse = errors.New("discovery: unrecognised device info")

	// ErrInvalidHost is returned for an empty or malformed host argument.
	ErrInvalidHost = errors.New("discovery: invalid host")
)
