package shmstore_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/calvinalkan/shmkv/pkg/shmstore"
)

func Test_ValueFromJSON_Maps_Scalars_To_Kinds(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input string
		want  shmstore.Value
	}{
		{`"hi"`, shmstore.String("hi")},
		{`""`, shmstore.String("")},
		{`42`, shmstore.Int(42)},
		{`-7`, shmstore.Int(-7)},
		{`1.5`, shmstore.Float(1.5)},
		{`2.0`, shmstore.Float(2)},
		{`1e3`, shmstore.Float(1000)},
		{`18446744073709551616`, shmstore.Float(18446744073709551616)},
		{`true`, shmstore.Bool(true)},
		{`false`, shmstore.Bool(false)},
		{`[1,"a",[true]]`, shmstore.Array(shmstore.Int(1), shmstore.String("a"), shmstore.Array(shmstore.Bool(true)))},
		{` [] `, shmstore.Array()},
	}

	for _, testCase := range testCases {
		got, err := shmstore.ValueFromJSON([]byte(testCase.input))
		require.NoError(t, err, testCase.input)
		require.True(t, testCase.want.Equal(got), "%s: got %s %v, want %s %v",
			testCase.input, got.Kind(), got, testCase.want.Kind(), testCase.want)
	}
}

func Test_ValueFromJSON_Returns_Struct_Object_When_Input_Is_Object(t *testing.T) {
	t.Parallel()

	got, err := shmstore.ValueFromJSON([]byte(`{"name":"shm","n":3,"tags":["a"],"nil":null}`))
	require.NoError(t, err)
	require.Equal(t, shmstore.KindObject, got.Kind())

	var st structpb.Struct
	require.NoError(t, got.ObjectTo(&st))

	fields := st.AsMap()
	require.Equal(t, "shm", fields["name"])
	require.InDelta(t, 3.0, fields["n"], 0)
	require.Equal(t, []any{"a"}, fields["tags"])
	require.Contains(t, fields, "nil")
	require.Nil(t, fields["nil"])
}

func Test_ValueFromJSON_Returns_ErrInvalidInput_When_Input_Unusable(t *testing.T) {
	t.Parallel()

	for _, input := range []string{``, `nul`, `null`, `[1,null]`, `1 2`, `{"a":1} x`, `"open`} {
		_, err := shmstore.ValueFromJSON([]byte(input))
		require.ErrorIs(t, err, shmstore.ErrInvalidInput, "input %q", input)
	}
}

func Test_ValueFromJSON_Keeps_Large_Float_Precision(t *testing.T) {
	t.Parallel()

	got, err := shmstore.ValueFromJSON([]byte(`1.7976931348623157e308`))
	require.NoError(t, err)

	f, ok := got.AsFloat()
	require.True(t, ok)
	require.Equal(t, math.MaxFloat64, f)
}
