package cas

import "errors"

// Domain errors for the content store.
//
// Both are returned before any storage mutation:
//
//	if errors.Is(err, cas.ErrSizeExceeded) {
//	    // content was not stored
//	}
var (
	// ErrSizeExceeded is returned when content is longer than MaxContentLength characters.
	ErrSizeExceeded = errors.New("cas: content too large")

	// ErrTypeMismatch is returned when a payload is not valid UTF-8 text.
	ErrTypeMismatch = errors.New("cas: content must be text")
)
