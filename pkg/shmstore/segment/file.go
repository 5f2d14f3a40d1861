//go:build unix

package segment

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"golang.org/x/sys/unix"

	"github.com/calvinalkan/shmkv/internal/seglock"
)

const devShm = "/dev/shm"

// File provides segments backed by memory-mapped files.
//
// On linux the default directory is /dev/shm (tmpfs), which makes the
// segments plain shared memory that survives process exit until removed.
//
// Segment creation is serialized across processes under a "<segment>.init"
// lock file next to the segment. The zero-filled file is published
// with a temp+rename so no process ever maps a short file.
type File struct {
	// Dir holds the segment files and their creation lock files.
	Dir string

	locker *seglock.Locker
}

// DefaultDir returns /dev/shm when it exists, otherwise [os.TempDir].
func DefaultDir() string {
	info, err := os.Stat(devShm)
	if err == nil && info.IsDir() {
		return devShm
	}

	return os.TempDir()
}

// NewFile returns a File provider rooted at dir. An empty dir means
// [DefaultDir].
func NewFile(dir string) *File {
	if dir == "" {
		dir = DefaultDir()
	}

	return &File{Dir: dir, locker: seglock.New()}
}

// Path returns the segment file path for id.
func (p *File) Path(id uint32) string {
	return filepath.Join(p.Dir, fmt.Sprintf("shmkv-%08x", id))
}

// OpenOrCreate implements [Provider].
func (p *File) OpenOrCreate(id uint32, capacity int) (Segment, bool, error) {
	err := checkCapacity(capacity)
	if err != nil {
		return nil, false, err
	}

	path := p.Path(id)
	created := false

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, fs.ErrNotExist) {
		f, created, err = p.create(path, capacity)
	}

	if err != nil {
		return nil, false, fmt.Errorf("open segment file: %w", err)
	}

	seg, err := mapFile(f, path, capacity)
	if err != nil {
		_ = f.Close()

		return nil, false, err
	}

	return seg, created, nil
}

// mapFile maps f and keeps it open for the lifetime of the mapping: an
// unlinked file drops to zero links, which is how a handle notices that
// another process destroyed the segment.
func mapFile(f *os.File, path string, capacity int) (*mapping, error) {
	fd := int(f.Fd())

	var st unix.Stat_t

	err := unix.Fstat(fd, &st)
	if err != nil {
		return nil, fmt.Errorf("stat segment file: %w", err)
	}

	if st.Size < int64(capacity) {
		return nil, fmt.Errorf("segment file %s has %d bytes, want %d: %w", path, st.Size, capacity, ErrIncompatible)
	}

	data, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}

	seg := &mapping{
		data:         data,
		release:      unix.Munmap,
		closeBacking: f.Close,
		stale: func() error {
			var now unix.Stat_t

			statErr := unix.Fstat(fd, &now)
			if statErr != nil {
				return fmt.Errorf("stat segment file: %w", statErr)
			}

			if now.Nlink == 0 {
				return fmt.Errorf("segment file %s: %w", path, ErrRemoved)
			}

			return nil
		},
		remove: func() error {
			rmErr := os.Remove(path)
			if errors.Is(rmErr, fs.ErrNotExist) {
				return fmt.Errorf("remove %s: %w", path, ErrRemoved)
			}

			return rmErr
		},
	}

	return seg, nil
}

// create makes the segment file under the creation lock. If another process
// created it while we waited, that file is opened instead.
func (p *File) create(path string, capacity int) (*os.File, bool, error) {
	err := os.MkdirAll(p.Dir, 0o750)
	if err != nil {
		return nil, false, fmt.Errorf("create directory: %w", err)
	}

	lock, err := p.locker.Acquire(path+".init", -1)
	if err != nil {
		return nil, false, fmt.Errorf("acquire creation lock: %w", err)
	}
	defer lock.Close()

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err == nil {
		return f, false, nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	err = atomic.WriteFile(path, bytes.NewReader(make([]byte, capacity)))
	if err != nil {
		return nil, false, fmt.Errorf("write segment file: %w", err)
	}

	f, err = os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, false, err
	}

	return f, true, nil
}
