//go:build !unix

package segment

import (
	"fmt"
	"os"
	"path/filepath"
)

// File is only available on unix systems.
type File struct {
	Dir string
}

// DefaultDir returns [os.TempDir].
func DefaultDir() string {
	return os.TempDir()
}

// NewFile returns a File provider whose OpenOrCreate always fails.
func NewFile(dir string) *File {
	if dir == "" {
		dir = DefaultDir()
	}

	return &File{Dir: dir}
}

// Path returns the segment file path for id.
func (p *File) Path(id uint32) string {
	return filepath.Join(p.Dir, fmt.Sprintf("shmkv-%08x", id))
}

// OpenOrCreate returns [ErrUnsupported].
func (p *File) OpenOrCreate(uint32, int) (Segment, bool, error) {
	return nil, false, ErrUnsupported
}
