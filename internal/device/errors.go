package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when no active device has the given UID.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidDevice is returned when upsert parameters fail validation.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidField is returned when a query filter names a field outside
	// the allow-list. It is raised before any SQL runs.
	ErrInvalidField = errors.New("device: invalid field")
)
