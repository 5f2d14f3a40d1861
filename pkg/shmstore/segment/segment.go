// Package segment provides fixed-capacity shared memory segments addressed by
// a 32-bit identifier.
//
// A [Provider] attaches to the segment for an identifier, creating it when it
// does not exist yet. The returned [Segment] gives raw fixed-offset access;
// it knows nothing about what is stored in it.
//
// Providers in this package:
//   - [SysV]: System V shared memory (linux)
//   - [File]: a memory-mapped file, by default under /dev/shm
//   - [Memory]: process-local segments for tests and embedding
package segment

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

var (
	// ErrOutOfRange indicates a read or write beyond the segment's capacity.
	// Nothing is read or written.
	ErrOutOfRange = errors.New("segment: out of range")

	// ErrIncompatible indicates an existing segment is smaller than the
	// requested capacity.
	ErrIncompatible = errors.New("segment: incompatible capacity")

	// ErrRemoved indicates the segment was destroyed, possibly by another
	// process.
	ErrRemoved = errors.New("segment: removed")

	// ErrClosed indicates the segment handle was already closed or destroyed.
	ErrClosed = errors.New("segment: closed")

	// ErrUnsupported indicates the provider is not available on this platform.
	ErrUnsupported = errors.New("segment: unsupported platform")

	// ErrInvalidCapacity indicates a capacity < 1 was requested.
	ErrInvalidCapacity = errors.New("segment: invalid capacity")
)

// Segment is an attached shared memory segment.
//
// ReadAt and WriteAt are all-or-nothing: a range that does not fit within
// [Segment.Size] fails with [ErrOutOfRange] and transfers no bytes.
type Segment interface {
	io.ReaderAt
	io.WriterAt

	// Size returns the segment capacity in bytes. It never changes.
	Size() int

	// Destroy removes the segment so the next OpenOrCreate for the same
	// identifier creates a fresh one, then detaches this handle.
	Destroy() error

	// Close detaches this handle. The segment itself survives.
	Close() error
}

// Provider opens or creates segments.
type Provider interface {
	// OpenOrCreate attaches to the segment for id, creating it with capacity
	// bytes and owner read/write permissions if it does not exist. created
	// reports whether this call created it.
	OpenOrCreate(id uint32, capacity int) (seg Segment, created bool, err error)
}

func checkRange(size int, off int64, n int) error {
	if off < 0 || off > int64(size) || int64(n) > int64(size)-off {
		return fmt.Errorf("offset %d length %d capacity %d: %w", off, n, size, ErrOutOfRange)
	}

	return nil
}

func checkCapacity(capacity int) error {
	if capacity < 1 {
		return fmt.Errorf("capacity %d: %w", capacity, ErrInvalidCapacity)
	}

	return nil
}

// mapping is a byte slice mapped into this process, shared by the SysV and
// File providers. release unmaps it; remove deletes the backing object.
//
// A removed object stays mapped until every handle detaches, so stale is
// asked before each access and reports [ErrRemoved] once the object is gone.
// closeBacking, if set, runs after release.
type mapping struct {
	mu           sync.RWMutex
	data         []byte
	release      func([]byte) error
	remove       func() error
	stale        func() error
	closeBacking func() error
}

func (m *mapping) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	err := m.usableLocked()
	if err != nil {
		return 0, err
	}

	err = checkRange(len(m.data), off, len(p))
	if err != nil {
		return 0, err
	}

	return copy(p, m.data[off:]), nil
}

func (m *mapping) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.usableLocked()
	if err != nil {
		return 0, err
	}

	err = checkRange(len(m.data), off, len(p))
	if err != nil {
		return 0, err
	}

	return copy(m.data[off:], p), nil
}

func (m *mapping) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.data)
}

func (m *mapping) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.detachLocked()
}

// Destroy removes the backing object first. If that fails the handle stays
// attached. A handle whose object is already gone gets [ErrRemoved] and never
// touches whatever now lives under the same name.
func (m *mapping) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.usableLocked()
	if err != nil {
		return err
	}

	err = m.remove()
	if err != nil {
		return err
	}

	return m.detachLocked()
}

func (m *mapping) usableLocked() error {
	if m.data == nil {
		return ErrClosed
	}

	if m.stale == nil {
		return nil
	}

	return m.stale()
}

func (m *mapping) detachLocked() error {
	if m.data == nil {
		return nil
	}

	data := m.data
	m.data = nil

	err := m.release(data)
	if err != nil {
		err = fmt.Errorf("detach: %w", err)
	}

	if m.closeBacking != nil {
		err = errors.Join(err, m.closeBacking())
	}

	return err
}
