package shmstore

import (
	"fmt"

	"github.com/calvinalkan/shmkv/pkg/shmstore/segment"
)

const (
	// DefaultKey is the key used when [Options.Key] is empty.
	//
	// Every caller that leaves Key empty shares this one segment. Pick your
	// own key unless sharing is intended.
	DefaultKey = "shmkv"

	// DefaultCapacity is the segment capacity used when [Options.Capacity]
	// is zero (1 MiB).
	DefaultCapacity = 1 << 20
)

// Options configures [Open].
type Options struct {
	// Key names the segment. All processes opening the same key share one
	// map. The segment identifier is [Identifier](Key).
	//
	// Default: [DefaultKey].
	Key string

	// Capacity is the segment size in bytes, fixed at creation time. It is
	// the upper bound on header plus serialized map. Must be > [HeaderSize].
	//
	// Default: [DefaultCapacity].
	Capacity int

	// Provider supplies the shared memory.
	//
	// Default: [segment.NewSysV].
	Provider segment.Provider

	// LockDir holds the lock files used by [Store.WithLock].
	//
	// Default: [os.TempDir].
	LockDir string
}

func (o Options) withDefaults() Options {
	if o.Key == "" {
		o.Key = DefaultKey
	}

	if o.Capacity == 0 {
		o.Capacity = DefaultCapacity
	}

	if o.Provider == nil {
		o.Provider = segment.NewSysV()
	}

	return o
}

func (o Options) validate() error {
	if o.Capacity <= HeaderSize {
		return fmt.Errorf("capacity must be > %d, got %d: %w", HeaderSize, o.Capacity, ErrInvalidInput)
	}

	return nil
}
