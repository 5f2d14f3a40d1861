//go:build !unix

package seglock

import "time"

// Locker is a placeholder on platforms without flock(2).
type Locker struct{}

// New returns a Locker whose Acquire always fails.
func New() *Locker {
	return &Locker{}
}

// Lock is never handed out on this platform.
type Lock struct{}

// Close is a no-op.
func (lk *Lock) Close() error {
	return nil
}

// Acquire returns [ErrUnsupported].
func (l *Locker) Acquire(string, time.Duration) (*Lock, error) {
	return nil, ErrUnsupported
}
