package segment

import (
	"sync"
)

// Memory is a process-local [Provider]. All callers of OpenOrCreate on the
// same *Memory share segments, which makes it a stand-in for real shared
// memory in tests.
//
// The zero value is ready to use and safe for concurrent use.
type Memory struct {
	mu   sync.Mutex
	segs map[uint32]*memBlock
}

type memBlock struct {
	mu      sync.RWMutex
	data    []byte
	removed bool
}

// NewMemory returns an empty Memory provider.
func NewMemory() *Memory {
	return &Memory{}
}

// OpenOrCreate implements [Provider].
func (m *Memory) OpenOrCreate(id uint32, capacity int) (Segment, bool, error) {
	err := checkCapacity(capacity)
	if err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.segs == nil {
		m.segs = make(map[uint32]*memBlock)
	}

	block, ok := m.segs[id]
	if ok {
		if len(block.data) < capacity {
			return nil, false, ErrIncompatible
		}

		return &memSegment{mem: m, id: id, block: block}, false, nil
	}

	block = &memBlock{data: make([]byte, capacity)}
	m.segs[id] = block

	return &memSegment{mem: m, id: id, block: block}, true, nil
}

// Exists reports whether a segment for id currently exists.
func (m *Memory) Exists(id uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.segs[id]

	return ok
}

type memSegment struct {
	mem    *Memory
	id     uint32
	block  *memBlock
	mu     sync.Mutex
	closed bool
}

func (s *memSegment) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

func (s *memSegment) ReadAt(p []byte, off int64) (int, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}

	s.block.mu.RLock()
	defer s.block.mu.RUnlock()

	if s.block.removed {
		return 0, ErrRemoved
	}

	err := checkRange(len(s.block.data), off, len(p))
	if err != nil {
		return 0, err
	}

	return copy(p, s.block.data[off:]), nil
}

func (s *memSegment) WriteAt(p []byte, off int64) (int, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}

	s.block.mu.Lock()
	defer s.block.mu.Unlock()

	if s.block.removed {
		return 0, ErrRemoved
	}

	err := checkRange(len(s.block.data), off, len(p))
	if err != nil {
		return 0, err
	}

	return copy(s.block.data[off:], p), nil
}

func (s *memSegment) Size() int {
	return len(s.block.data)
}

func (s *memSegment) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()

	s.block.mu.Lock()
	defer s.block.mu.Unlock()

	if s.block.removed {
		return ErrRemoved
	}

	s.block.removed = true

	if s.mem.segs[s.id] == s.block {
		delete(s.mem.segs, s.id)
	}

	s.closed = true

	return nil
}

func (s *memSegment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	return nil
}
