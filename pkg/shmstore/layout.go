package shmstore

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/calvinalkan/shmkv/pkg/shmstore/segment"
)

// Segment layout
//
//	offset 0,  10 bytes: N as zero-padded decimal ASCII ("0000000042")
//	offset 10, N bytes:  JSON object, key -> tagged value text
//	10+N .. capacity:    unused, may hold stale bytes of an older, longer map
//
// N == 0 is the empty map. A header of ten NUL bytes is a segment whose
// creator has not written the empty map yet, and also reads as empty.
const (
	// HeaderSize is the size of the length header at offset 0.
	HeaderSize = 10

	maxBodySize = 9_999_999_999
)

func formatHeader(n int) ([]byte, error) {
	if n < 0 || int64(n) > maxBodySize {
		return nil, fmt.Errorf("map body of %d bytes does not fit a %d-digit header: %w", n, HeaderSize, ErrCapacityExceeded)
	}

	return fmt.Appendf(nil, "%0*d", HeaderSize, n), nil
}

func parseHeader(header []byte) (int64, error) {
	if len(header) != HeaderSize {
		return 0, fmt.Errorf("header is %d bytes, want %d: %w", len(header), HeaderSize, ErrDecode)
	}

	zeroed := true

	for _, c := range header {
		if c != 0 {
			zeroed = false

			break
		}
	}

	if zeroed {
		return 0, nil
	}

	for _, c := range header {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("header %q is not decimal: %w", header, ErrDecode)
		}
	}

	n, err := strconv.ParseInt(string(header), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("header %q: %w: %w", header, ErrDecode, err)
	}

	return n, nil
}

// readMap decodes the whole logical map from seg.
func readMap(seg segment.Segment) (*entries, error) {
	header := make([]byte, HeaderSize)

	_, err := seg.ReadAt(header, 0)
	if err != nil {
		return nil, fmt.Errorf("read header: %w: %w", ErrSegment, err)
	}

	n, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	if n == 0 {
		return newEntries(), nil
	}

	if avail := int64(seg.Size() - HeaderSize); n > avail {
		return nil, fmt.Errorf("header claims %d bytes, segment holds %d: %w", n, avail, ErrDecode)
	}

	body := make([]byte, n)

	_, err = seg.ReadAt(body, HeaderSize)
	if err != nil {
		return nil, fmt.Errorf("read map body: %w: %w", ErrSegment, err)
	}

	m := newEntries()

	err = json.Unmarshal(body, m)
	if err != nil {
		return nil, fmt.Errorf("map body: %w: %w", ErrDecode, err)
	}

	return m, nil
}

// writeMap replaces the logical map in seg. limit caps header plus body.
//
// The body is written before the header, so a header never describes bytes
// that have not been written yet.
func writeMap(seg segment.Segment, m *entries, limit int) error {
	var body []byte

	if m.len() > 0 {
		var err error

		body, err = json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode map: %w", err)
		}
	}

	header, err := formatHeader(len(body))
	if err != nil {
		return err
	}

	if need := HeaderSize + len(body); need > limit {
		return fmt.Errorf("map needs %d bytes, capacity is %d: %w", need, limit, ErrCapacityExceeded)
	}

	if len(body) > 0 {
		_, err = seg.WriteAt(body, HeaderSize)
		if err != nil {
			return fmt.Errorf("write map body: %w: %w", ErrSegment, err)
		}
	}

	_, err = seg.WriteAt(header, 0)
	if err != nil {
		return fmt.Errorf("write header: %w: %w", ErrSegment, err)
	}

	return nil
}
