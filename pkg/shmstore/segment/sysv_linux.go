//go:build linux

package segment

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// SysV provides System V shared memory segments (shmget/shmat).
//
// The identifier is used directly as the IPC key. Identifier 0 is
// IPC_PRIVATE, which would create a new segment on every call, and is
// rejected.
type SysV struct {
	// Perm is the permission mode for created segments. Zero means 0600.
	Perm int
}

// NewSysV returns a SysV provider with owner read/write permissions.
func NewSysV() *SysV {
	return &SysV{Perm: 0o600}
}

// OpenOrCreate implements [Provider].
//
// Creation uses IPC_CREAT|IPC_EXCL; on EEXIST it attaches the existing
// segment instead, so racing creators end up on the same segment.
func (p *SysV) OpenOrCreate(id uint32, capacity int) (Segment, bool, error) {
	err := checkCapacity(capacity)
	if err != nil {
		return nil, false, err
	}

	if id == 0 {
		return nil, false, fmt.Errorf("sysv key 0 is IPC_PRIVATE: %w", ErrUnsupported)
	}

	perm := p.Perm
	if perm == 0 {
		perm = 0o600
	}

	key := int(int32(id)) //nolint:gosec // key_t is a signed 32-bit value; reinterpretation is intended.
	created := true

	shmid, err := unix.SysvShmGet(key, capacity, unix.IPC_CREAT|unix.IPC_EXCL|perm)
	if errors.Is(err, unix.EEXIST) {
		created = false
		shmid, err = unix.SysvShmGet(key, 0, 0)
	}

	if err != nil {
		return nil, false, fmt.Errorf("shmget %08x: %w", id, err)
	}

	data, err := unix.SysvShmAttach(shmid, 0, 0)
	if err != nil {
		if created {
			_, _ = unix.SysvShmCtl(shmid, unix.IPC_RMID, nil)
		}

		return nil, false, fmt.Errorf("shmat %08x: %w", id, err)
	}

	if len(data) < capacity {
		_ = unix.SysvShmDetach(data)

		return nil, false, fmt.Errorf("segment %08x has %d bytes, want %d: %w", id, len(data), capacity, ErrIncompatible)
	}

	seg := &mapping{
		data:    data,
		release: unix.SysvShmDetach,
		stale: func() error {
			// IPC_RMID hands the key back while attached handles keep the
			// memory, so the key no longer resolves to our shmid.
			current, getErr := unix.SysvShmGet(key, 0, 0)
			if getErr == nil && current == shmid {
				return nil
			}

			if getErr == nil || errors.Is(getErr, unix.ENOENT) {
				return fmt.Errorf("segment %08x: %w", id, ErrRemoved)
			}

			return fmt.Errorf("shmget %08x: %w", id, getErr)
		},
		remove: func() error {
			_, rmErr := unix.SysvShmCtl(shmid, unix.IPC_RMID, nil)
			if rmErr == nil {
				return nil
			}

			if errors.Is(rmErr, unix.EINVAL) || errors.Is(rmErr, unix.EIDRM) {
				return fmt.Errorf("shmctl IPC_RMID %08x: %w: %w", id, ErrRemoved, rmErr)
			}

			return fmt.Errorf("shmctl IPC_RMID %08x: %w", id, rmErr)
		},
	}

	return seg, created, nil
}
