package cli

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func Test_SplitLine_Splits_Words_And_Honors_Quotes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		line string
		want []string
	}{
		{"get k", []string{"get", "k"}},
		{"  set   k\tv  ", []string{"set", "k", "v"}},
		{`set k "two words"`, []string{"set", "k", "two words"}},
		{`set k 'it"s'`, []string{"set", "k", `it"s`}},
		{`set k a\ b`, []string{"set", "k", "a b"}},
		{`set k ""`, []string{"set", "k", ""}},
		{`set k pre"mid"post`, []string{"set", "k", "premidpost"}},
		{`set -t json k '{"a": [1, 2]}'`, []string{"set", "-t", "json", "k", `{"a": [1, 2]}`}},
		{`set k '\n'`, []string{"set", "k", `\n`}},
	}

	for _, testCase := range testCases {
		got, err := splitLine(testCase.line)
		require.NoError(t, err, testCase.line)

		if diff := cmp.Diff(testCase.want, got); diff != "" {
			t.Errorf("splitLine(%q) mismatch (-want +got):\n%s", testCase.line, diff)
		}
	}
}

func Test_SplitLine_Returns_Error_When_Quote_Unterminated(t *testing.T) {
	t.Parallel()

	for _, line := range []string{`set "k`, `set 'k`, `set k\`} {
		_, err := splitLine(line)
		require.ErrorIs(t, err, errUnterminatedQuote, line)
	}
}

func Test_IO_Finish_Returns_One_And_Resets_When_Warned(t *testing.T) {
	t.Parallel()

	var out, errOut strings.Builder

	o := NewIO(&out, &errOut)
	o.Warn("key \"x\"", "decode failed")
	o.Println("partial")

	require.Equal(t, 1, o.Finish())
	require.Equal(t, "warning: key \"x\": decode failed\nwarning: key \"x\": decode failed\n", errOut.String())
	require.Equal(t, "partial\n", out.String())

	require.Equal(t, 0, o.Finish())
}

func Test_FormatCapacity_Picks_Largest_Whole_Unit(t *testing.T) {
	t.Parallel()

	require.Equal(t, "1 MiB", formatCapacity(1<<20))
	require.Equal(t, "4 KiB", formatCapacity(4096))
	require.Equal(t, "100 B", formatCapacity(100))
}
