//go:build !linux

package segment

// SysV is only available on linux.
type SysV struct {
	Perm int
}

// NewSysV returns a SysV provider whose OpenOrCreate always fails.
func NewSysV() *SysV {
	return &SysV{Perm: 0o600}
}

// OpenOrCreate returns [ErrUnsupported].
func (p *SysV) OpenOrCreate(uint32, int) (Segment, bool, error) {
	return nil, false, ErrUnsupported
}
