package shmstore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/shmkv/pkg/shmstore/segment"
)

func newTestSegment(t *testing.T, capacity int) segment.Segment {
	t.Helper()

	seg, created, err := segment.NewMemory().OpenOrCreate(1, capacity)
	require.NoError(t, err)
	require.True(t, created)

	t.Cleanup(func() { _ = seg.Close() })

	return seg
}

func readRaw(t *testing.T, seg segment.Segment) []byte {
	t.Helper()

	buf := make([]byte, seg.Size())

	_, err := seg.ReadAt(buf, 0)
	require.NoError(t, err)

	return buf
}

func Test_FormatHeader_Returns_Zero_Padded_Decimal_When_Length_Valid(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		n    int
		want string
	}{
		{0, "0000000000"},
		{7, "0000000007"},
		{1234567, "0001234567"},
		{maxBodySize, "9999999999"},
	}

	for _, testCase := range testCases {
		got, err := formatHeader(testCase.n)
		require.NoError(t, err)
		require.Equal(t, testCase.want, string(got))
	}
}

func Test_FormatHeader_Returns_ErrCapacityExceeded_When_Length_Out_Of_Range(t *testing.T) {
	t.Parallel()

	_, err := formatHeader(-1)
	require.ErrorIs(t, err, ErrCapacityExceeded)

	_, err = formatHeader(maxBodySize + 1)
	require.ErrorIs(t, err, ErrCapacityExceeded)
}

func Test_ParseHeader_Returns_Length_When_Header_Valid(t *testing.T) {
	t.Parallel()

	n, err := parseHeader([]byte("0000000042"))
	require.NoError(t, err)
	require.Equal(t, int64(42), n)

	n, err = parseHeader(make([]byte, HeaderSize))
	require.NoError(t, err)
	require.Equal(t, int64(0), n, "all-NUL header reads as empty map")
}

func Test_ParseHeader_Returns_ErrDecode_When_Header_Malformed(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		header []byte
	}{
		{"Letters", []byte("00000000ab")},
		{"Sign", []byte("-000000042")},
		{"Spaces", []byte("        42")},
		{"PartlyNUL", append([]byte("00000"), 0, 0, 0, 0, 0)},
		{"Short", []byte("42")},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := parseHeader(testCase.header)
			require.ErrorIs(t, err, ErrDecode)
		})
	}
}

func Test_ReadMap_Returns_Empty_Map_When_Segment_Zero_Filled(t *testing.T) {
	t.Parallel()

	seg := newTestSegment(t, 64)

	m, err := readMap(seg)
	require.NoError(t, err)
	require.Equal(t, 0, m.len())
}

func Test_WriteMap_Writes_Header_Matching_Body_Length_When_Map_Written(t *testing.T) {
	t.Parallel()

	seg := newTestSegment(t, 128)

	m := newEntries()
	m.set("b", "i2")
	m.set("a", "sx")

	require.NoError(t, writeMap(seg, m, seg.Size()))

	raw := readRaw(t, seg)
	body := `{"b":"i2","a":"sx"}`

	require.Equal(t, "0000000019", string(raw[:HeaderSize]))
	require.Equal(t, body, string(raw[HeaderSize:HeaderSize+len(body)]))

	got, err := readMap(seg)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, got.keys)
}

func Test_WriteMap_Writes_Zero_Header_And_No_Body_When_Map_Empty(t *testing.T) {
	t.Parallel()

	seg := newTestSegment(t, 64)

	full := newEntries()
	full.set("k", "sabcdef")
	require.NoError(t, writeMap(seg, full, seg.Size()))

	before := readRaw(t, seg)

	require.NoError(t, writeMap(seg, newEntries(), seg.Size()))

	after := readRaw(t, seg)
	require.Equal(t, "0000000000", string(after[:HeaderSize]))
	require.Equal(t, before[HeaderSize:], after[HeaderSize:], "stale body bytes are left in place")

	m, err := readMap(seg)
	require.NoError(t, err)
	require.Equal(t, 0, m.len())
}

func Test_ReadMap_Ignores_Stale_Bytes_When_Map_Shrinks(t *testing.T) {
	t.Parallel()

	seg := newTestSegment(t, 128)

	long := newEntries()
	long.set("key", "s"+string(bytes.Repeat([]byte("x"), 40)))
	require.NoError(t, writeMap(seg, long, seg.Size()))

	short := newEntries()
	short.set("key", "i1")
	require.NoError(t, writeMap(seg, short, seg.Size()))

	m, err := readMap(seg)
	require.NoError(t, err)

	v, ok := m.get("key")
	require.True(t, ok)
	require.Equal(t, "i1", v)
}

func Test_WriteMap_Returns_ErrCapacityExceeded_And_Writes_Nothing_When_Map_Too_Large(t *testing.T) {
	t.Parallel()

	seg := newTestSegment(t, 32)

	small := newEntries()
	small.set("a", "i1")
	require.NoError(t, writeMap(seg, small, seg.Size()))

	before := readRaw(t, seg)

	big := newEntries()
	big.set("a", "s"+string(bytes.Repeat([]byte("y"), 64)))

	err := writeMap(seg, big, seg.Size())
	require.ErrorIs(t, err, ErrCapacityExceeded)
	require.Equal(t, before, readRaw(t, seg))
}

func Test_WriteMap_Accepts_Map_When_It_Fills_Capacity_Exactly(t *testing.T) {
	t.Parallel()

	// {"a":"s"} is 9 bytes; 9 more payload bytes fill 28.
	m := newEntries()
	m.set("a", "s123456789")

	seg := newTestSegment(t, HeaderSize+18)
	require.NoError(t, writeMap(seg, m, seg.Size()))

	m.set("a", "s1234567890")
	require.ErrorIs(t, writeMap(seg, m, seg.Size()), ErrCapacityExceeded)
}

func Test_ReadMap_Returns_ErrDecode_When_Segment_Corrupt(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		raw  string
	}{
		{"HeaderNotDecimal", "abcdefghij{}"},
		{"HeaderBeyondSegment", "0000009999{}"},
		{"BodyNotJSON", "0000000004{{{{"},
		{"BodyNotObject", "0000000002[]"},
		{"BodyValueNotString", `0000000007{"a":1}`},
		{"BodyTruncated", `0000000005{"a":`},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			seg := newTestSegment(t, 64)

			_, err := seg.WriteAt([]byte(testCase.raw), 0)
			require.NoError(t, err)

			_, err = readMap(seg)
			require.ErrorIs(t, err, ErrDecode)
		})
	}
}
