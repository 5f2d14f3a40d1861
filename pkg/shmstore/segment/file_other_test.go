//go:build !unix

package segment_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/shmkv/pkg/shmstore/segment"
)

func Test_File_Returns_ErrUnsupported_When_Platform_Is_Not_Unix(t *testing.T) {
	t.Parallel()

	seg, created, err := segment.NewFile(t.TempDir()).OpenOrCreate(1, 16)
	require.ErrorIs(t, err, segment.ErrUnsupported)
	require.Nil(t, seg)
	require.False(t, created)
}
