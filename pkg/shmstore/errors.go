package shmstore

import "errors"

// Sentinel errors returned by shmstore operations.
//
// Callers should use [errors.Is] to check error types. Provider causes are
// wrapped alongside the sentinel, so both match:
//
//	if errors.Is(err, shmstore.ErrSegment) && errors.Is(err, segment.ErrRemoved) {
//	    // another process destroyed the segment
//	}
var (
	// ErrSegment indicates the segment provider failed to create, attach to,
	// read, write or destroy the segment.
	//
	// Never retried internally.
	ErrSegment = errors.New("shmstore: segment error")

	// ErrInvalidState indicates the store handle was destroyed or closed.
	//
	// This is a programming error. Open a new handle to keep working with the
	// same key.
	ErrInvalidState = errors.New("shmstore: invalid state")

	// ErrDecode indicates the segment content or a stored value is malformed.
	//
	// The segment is assumed corrupt. Recovery: destroy and rebuild it from
	// your source of truth.
	ErrDecode = errors.New("shmstore: decode error")

	// ErrCapacityExceeded indicates the serialized map does not fit in the
	// segment. Nothing was written.
	//
	// Recovery: store less, or recreate the segment with a larger capacity.
	ErrCapacityExceeded = errors.New("shmstore: capacity exceeded")

	// ErrInvalidInput indicates invalid options or arguments were provided,
	// such as a capacity not larger than the header or a key that is not
	// valid UTF-8.
	//
	// This is a programming error.
	ErrInvalidInput = errors.New("shmstore: invalid input")

	// ErrBusy indicates [Store.WithLock] could not take the lock within its
	// timeout.
	//
	// Recovery: retry after a short delay.
	ErrBusy = errors.New("shmstore: busy")
)
