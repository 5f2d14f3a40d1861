package shmstore

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/calvinalkan/shmkv/internal/seglock"
	"github.com/calvinalkan/shmkv/pkg/shmstore/segment"
)

// locker is the package-level lock file locker used by [Store.WithLock].
var locker = seglock.New()

// Store is a handle to the map kept in one shared memory segment.
//
// Every operation reads the whole map from the segment, and every mutation
// writes the whole map back. Nothing is cached in the handle.
//
// Concurrency: a Store is safe for concurrent use by multiple goroutines, but
// read-modify-write cycles are NOT atomic across handles or processes. Two
// concurrent Set calls through different handles can lose one update: the
// later full-map write silently replaces the earlier one. Wrap such cycles in
// [Store.WithLock] when that matters.
type Store struct {
	// mu guards the flags and keeps the segment mapped while an operation
	// uses it. It does not coordinate with other handles.
	mu sync.Mutex

	seg      segment.Segment
	key      string
	id       uint32
	capacity int
	lockDir  string

	destroyed bool
	closed    bool
}

// Open attaches to the segment for opts.Key, creating and initializing it
// with an empty map if it does not exist.
//
// Possible errors:
//   - [ErrInvalidInput]: capacity not larger than [HeaderSize]
//   - [ErrSegment]: the provider could not create or attach the segment
func Open(opts Options) (*Store, error) {
	opts = opts.withDefaults()

	err := opts.validate()
	if err != nil {
		return nil, err
	}

	id := Identifier(opts.Key)

	seg, created, err := opts.Provider.OpenOrCreate(id, opts.Capacity)
	if err != nil {
		return nil, fmt.Errorf("open segment %08x for key %q: %w: %w", id, opts.Key, ErrSegment, err)
	}

	if created {
		err = writeMap(seg, newEntries(), opts.Capacity)
		if err != nil {
			_ = seg.Close()

			return nil, fmt.Errorf("initialize segment %08x: %w", id, err)
		}
	}

	return &Store{
		seg:      seg,
		key:      opts.Key,
		id:       id,
		capacity: opts.Capacity,
		lockDir:  opts.LockDir,
	}, nil
}

// Key returns the key the store was opened with.
func (s *Store) Key() string { return s.key }

// Identifier returns the segment identifier derived from the key.
func (s *Store) Identifier() uint32 { return s.id }

// Capacity returns the configured capacity in bytes.
func (s *Store) Capacity() int { return s.capacity }

// Get returns the value stored under key, or def if there is none.
//
// Possible errors: [ErrInvalidState], [ErrSegment], [ErrDecode].
func (s *Store) Get(key string, def Value) (Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readLocked()
	if err != nil {
		return Value{}, err
	}

	tagged, ok := m.get(key)
	if !ok {
		return def, nil
	}

	v, err := decodeValue(tagged)
	if err != nil {
		return Value{}, fmt.Errorf("key %q: %w", key, err)
	}

	return v, nil
}

// Set stores v under key, replacing any previous value and leaving other
// keys untouched. It returns v.
//
// Possible errors: [ErrInvalidState], [ErrInvalidInput], [ErrSegment],
// [ErrDecode], [ErrCapacityExceeded].
func (s *Store) Set(key string, v Value) (Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.checkUsableLocked()
	if err != nil {
		return Value{}, err
	}

	if !utf8.ValidString(key) {
		return Value{}, fmt.Errorf("key is not valid UTF-8: %w", ErrInvalidInput)
	}

	tagged, err := encodeValue(v)
	if err != nil {
		return Value{}, fmt.Errorf("key %q: %w", key, err)
	}

	m, err := readMap(s.seg)
	if err != nil {
		return Value{}, err
	}

	m.set(key, tagged)

	err = writeMap(s.seg, m, s.capacity)
	if err != nil {
		return Value{}, err
	}

	return v, nil
}

// Forget removes key. A missing key is not an error.
//
// Possible errors: [ErrInvalidState], [ErrSegment], [ErrDecode].
func (s *Store) Forget(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readLocked()
	if err != nil {
		return err
	}

	m.remove(key)

	return writeMap(s.seg, m, s.capacity)
}

// Has reports whether key is present. The value is not decoded.
//
// Possible errors: [ErrInvalidState], [ErrSegment], [ErrDecode].
func (s *Store) Has(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readLocked()
	if err != nil {
		return false, err
	}

	_, ok := m.get(key)

	return ok, nil
}

// Keys returns all keys in insertion order.
//
// Possible errors: [ErrInvalidState], [ErrSegment], [ErrDecode].
func (s *Store) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readLocked()
	if err != nil {
		return nil, err
	}

	return slices.Clone(m.keys), nil
}

// Len returns the number of keys.
//
// Possible errors: [ErrInvalidState], [ErrSegment], [ErrDecode].
func (s *Store) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readLocked()
	if err != nil {
		return 0, err
	}

	return m.len(), nil
}

// Destroy removes the segment for every process. On success the handle is
// unusable; on failure it is left as it was and may be retried.
//
// Other handles on the same key, in this or other processes, are not
// notified. Their next operation fails with [ErrSegment] wrapping
// [segment.ErrRemoved]; they must be closed and the key opened again.
//
// Possible errors:
//   - [ErrInvalidState]: already destroyed or closed
//   - [ErrSegment]: the provider failed to remove the segment
func (s *Store) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.checkUsableLocked()
	if err != nil {
		return err
	}

	err = s.seg.Destroy()
	if err != nil {
		return fmt.Errorf("destroy segment %08x: %w: %w", s.id, ErrSegment, err)
	}

	s.destroyed = true

	return nil
}

// Close detaches the handle. The segment and its contents survive.
// Close is idempotent and a no-op after [Store.Destroy].
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.destroyed {
		return nil
	}

	s.closed = true

	err := s.seg.Close()
	if err != nil {
		return fmt.Errorf("close segment %08x: %w: %w", s.id, ErrSegment, err)
	}

	return nil
}

// WithLock runs fn while holding the cross-process lock for this store's
// segment and releases it afterwards, also when fn panics. Only callers that
// use WithLock exclude each other; plain Get/Set/Forget never take the lock.
//
// fn may call methods on s. It must not call WithLock for the same key
// again: the lock is not reentrant.
//
// timeout < 0 blocks until the lock is free, 0 tries once, > 0 polls until
// the timeout expires.
//
// Possible errors: [ErrInvalidState], [ErrBusy], lock file errors, and
// whatever fn returns.
func (s *Store) WithLock(timeout time.Duration, fn func() error) (err error) {
	s.mu.Lock()
	usableErr := s.checkUsableLocked()
	s.mu.Unlock()

	if usableErr != nil {
		return usableErr
	}

	lock, err := locker.Acquire(seglock.Path(s.lockDir, s.id), timeout)
	if err != nil {
		if errors.Is(err, seglock.ErrWouldBlock) {
			return fmt.Errorf("lock segment %08x: %w: %w", s.id, ErrBusy, err)
		}

		return fmt.Errorf("lock segment %08x: %w", s.id, err)
	}

	defer func() {
		closeErr := lock.Close()
		if closeErr != nil {
			err = errors.Join(err, fmt.Errorf("unlock segment %08x: %w", s.id, closeErr))
		}
	}()

	return fn()
}

func (s *Store) checkUsableLocked() error {
	if s.destroyed {
		return fmt.Errorf("segment %08x was destroyed: %w", s.id, ErrInvalidState)
	}

	if s.closed {
		return fmt.Errorf("store for segment %08x is closed: %w", s.id, ErrInvalidState)
	}

	return nil
}

func (s *Store) readLocked() (*entries, error) {
	err := s.checkUsableLocked()
	if err != nil {
		return nil, err
	}

	return readMap(s.seg)
}
