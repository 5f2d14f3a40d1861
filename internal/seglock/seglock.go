// Package seglock coordinates processes that share a segment identifier
// through an advisory flock(2) lock file.
//
// The lock file lives next to (not inside) the shared memory it guards, at
// <dir>/shmkv-<id>.lock. It is created lazily and never removed: replacing or
// unlinking it while other processes wait on it would split them across
// different inodes.
//
// Locking needs flock(2). On other platforms [Locker.Acquire] fails with
// [ErrUnsupported].
package seglock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	// ErrWouldBlock is returned when the lock is held by another process and
	// the caller did not want to wait (or its timeout expired).
	ErrWouldBlock = errors.New("seglock: would block")

	// ErrUnsupported is returned by [Locker.Acquire] on platforms without
	// flock(2).
	ErrUnsupported = errors.New("seglock: unsupported platform")
)

// Path returns the lock file path for a segment identifier under dir.
// An empty dir means [os.TempDir].
func Path(dir string, id uint32) string {
	if dir == "" {
		dir = os.TempDir()
	}

	return filepath.Join(dir, fmt.Sprintf("shmkv-%08x.lock", id))
}
