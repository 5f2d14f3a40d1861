package cli_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/shmkv/internal/cli"
	"github.com/calvinalkan/shmkv/pkg/shmstore"
)

func Test_Get_Prints_Value_When_Key_Set(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("set", "greeting", "hello world")

	if got, want := c.MustRun("get", "greeting"), "hello world"; got != want {
		t.Errorf("get=%q, want=%q", got, want)
	}
}

func Test_Set_Stores_Typed_Values_When_Type_Given(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		typ   string
		input string
		want  string
	}{
		{"string", "42", "string\t42"},
		{"int", "42", "int\t42"},
		{"int", "-5", "int\t-5"},
		{"float", "2.5", "float\t2.5"},
		{"bool", "true", "bool\ttrue"},
		{"json", `[1,"a",2.5]`, "array\t[1,\"a\",2.5]"},
		{"json", `7`, "int\t7"},
		{"json", `"x"`, "string\tx"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.typ+"_"+testCase.input, func(t *testing.T) {
			t.Parallel()

			c := cli.NewCLI(t)
			c.MustRun("set", "--type", testCase.typ, "k", testCase.input)

			if got := c.MustRun("get", "--kind", "k"); got != testCase.want {
				t.Errorf("get --kind=%q, want=%q", got, testCase.want)
			}
		})
	}
}

func Test_Set_Fails_When_Value_Does_Not_Parse_As_Type(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	cli.AssertContains(t, c.MustFail("set", "--type", "int", "k", "nope"), `invalid int "nope"`)
	cli.AssertContains(t, c.MustFail("set", "--type", "uuid", "k", "v"), "unknown value type")
	cli.AssertContains(t, c.MustFail("set", "--type", "json", "k", "null"), "invalid input")

	stderr := c.MustFail("set", "onlykey")
	cli.AssertContains(t, stderr, "wrong number of arguments: got 1, want at least 2")
	cli.AssertContains(t, stderr, "Usage: shmkv set [flags] <key> <value>")

	if got, want := c.MustRun("has", "k"), "false"; got != want {
		t.Errorf("has=%q, want=%q", got, want)
	}
}

func Test_Get_Stores_Object_When_Json_Object_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("set", "-t", "json", "cfg", `{"name":"shm","n":3}`)

	out := c.MustRun("get", "--kind", "cfg")

	cli.AssertContains(t, out, "object\t")
	cli.AssertContains(t, out, "type.googleapis.com/google.protobuf.Struct")
	cli.AssertContains(t, out, `"name"`)
	cli.AssertContains(t, out, `"shm"`)
}

func Test_Get_Fails_When_Key_Not_Set(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	cli.AssertContains(t, c.MustFail("get", "missing"), "key not set: missing")
	cli.AssertContains(t, c.MustFail("get"), "wrong number of arguments: got 0, want at least 1")
}

func Test_Get_Prints_Default_When_Key_Not_Set(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	if got, want := c.MustRun("get", "--default", "0", "--kind", "missing"), "int\t0"; got != want {
		t.Errorf("get=%q, want=%q", got, want)
	}

	c.MustRun("set", "present", "yes")

	if got, want := c.MustRun("get", "-d", "0", "present"), "yes"; got != want {
		t.Errorf("get=%q, want=%q", got, want)
	}
}

func Test_Get_Prints_Json_When_Json_Flag_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("set", "s", `say "hi"`)

	if got, want := c.MustRun("get", "--json", "s"), `"say \"hi\""`; got != want {
		t.Errorf("get --json=%q, want=%q", got, want)
	}
}

func Test_Keys_Lists_Keys_In_Insertion_Order(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("set", "zeta", "1")
	c.MustRun("set", "-t", "int", "alpha", "2")
	c.MustRun("set", "zeta", "3")

	if diff := cmp.Diff("zeta\nalpha", c.MustRun("keys")); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff("zeta=3\nalpha=2", c.MustRun("keys", "-l")); diff != "" {
		t.Errorf("keys -l mismatch (-want +got):\n%s", diff)
	}
}

func Test_Forget_Removes_Keys_And_Ignores_Missing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("set", "a", "1")
	c.MustRun("set", "b", "2")
	c.MustRun("set", "c", "3")

	c.MustRun("forget", "a", "c", "never-set")

	if got, want := c.MustRun("keys"), "b"; got != want {
		t.Errorf("keys=%q, want=%q", got, want)
	}

	if got, want := c.MustRun("has", "a"), "false"; got != want {
		t.Errorf("has a=%q, want=%q", got, want)
	}

	if got, want := c.MustRun("has", "b"), "true"; got != want {
		t.Errorf("has b=%q, want=%q", got, want)
	}
}

func Test_Destroy_Removes_Segment_And_Next_Command_Starts_Empty(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("set", "a", "1")

	out := c.MustRun("destroy")
	cli.AssertContains(t, out, "destroyed segment")
	cli.AssertContains(t, out, `(key "shmkv")`)

	_, err := os.Stat(filepath.Join(c.SegDir, "shmkv-"+hex8(shmstore.Identifier("shmkv"))))
	if !os.IsNotExist(err) {
		t.Errorf("segment file still exists after destroy: stat err=%v", err)
	}

	if got := c.MustRun("keys"); got != "" {
		t.Errorf("keys after destroy=%q, want empty", got)
	}
}

func Test_Info_Shows_Segment_Details(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("--key", "info-test", "--capacity", "4096", "set", "a", "1")

	out := c.MustRun("--key", "info-test", "--capacity", "4096", "info")

	cli.AssertContains(t, out, "key=info-test")
	cli.AssertContains(t, out, "identifier="+hex8(shmstore.Identifier("info-test")))
	cli.AssertContains(t, out, "provider=file")
	cli.AssertContains(t, out, "capacity=4096 (4 KiB)")
	cli.AssertContains(t, out, "dir="+c.SegDir)
	cli.AssertContains(t, out, "keys=1")
}

func Test_Keys_Are_Separate_When_Store_Keys_Differ(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("-k", "one", "set", "x", "1")

	if got, want := c.MustRun("-k", "two", "has", "x"), "false"; got != want {
		t.Errorf("has=%q, want=%q", got, want)
	}

	if got, want := c.MustRun("-k", "one", "get", "x"), "1"; got != want {
		t.Errorf("get=%q, want=%q", got, want)
	}
}

func Test_Set_Fails_When_Capacity_Exceeded(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stderr := c.MustFail("--capacity", "32", "set", "k", strings.Repeat("x", 64))
	cli.AssertContains(t, stderr, "capacity exceeded")

	if got, want := c.MustRun("--capacity", "32", "keys"), ""; got != want {
		t.Errorf("keys=%q, want=%q", got, want)
	}
}

func Test_Incr_Adds_Delta_And_Starts_From_Zero(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	if got, want := c.MustRun("incr", "n"), "1"; got != want {
		t.Errorf("incr=%q, want=%q", got, want)
	}

	if got, want := c.MustRun("incr", "n", "10"), "11"; got != want {
		t.Errorf("incr=%q, want=%q", got, want)
	}

	if got, want := c.MustRun("incr", "n", "-20"), "-9"; got != want {
		t.Errorf("incr=%q, want=%q", got, want)
	}

	c.MustRun("set", "s", "text")
	cli.AssertContains(t, c.MustFail("incr", "s"), "value is not an int")
}

func Test_Incr_Loses_No_Updates_When_Run_Concurrently(t *testing.T) {
	t.Parallel()

	const (
		workers = 4
		rounds  = 10
	)

	c := cli.NewCLI(t)
	c.MustRun("set", "-t", "int", "n", "0")

	var wg sync.WaitGroup

	failures := make(chan string, workers*rounds)

	for range workers {
		wg.Go(func() {
			for range rounds {
				_, stderr, code := c.Run("incr", "--timeout=-1s", "n")
				if code != 0 {
					failures <- stderr
				}
			}
		})
	}

	wg.Wait()
	close(failures)

	for stderr := range failures {
		t.Errorf("incr failed: %s", stderr)
	}

	if got, want := c.MustRun("get", "n"), "40"; got != want {
		t.Errorf("n=%q, want=%q", got, want)
	}
}

func Test_Commands_Use_Segment_Dir_From_Config_File(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	segDir := filepath.Join(t.TempDir(), "custom")

	c.WriteFile(".shmkv.json", `{
		// JSONC comments are allowed
		"key": "from-config",
		"dir": "`+segDir+`",
	}`)

	var stdout, stderr strings.Builder

	code := cli.Run(nil, &stdout, &stderr,
		[]string{"shmkv", "--cwd", c.Dir, "--provider", "file", "set", "k", "v"}, c.Env, nil)
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}

	_, err := os.Stat(filepath.Join(segDir, "shmkv-"+hex8(shmstore.Identifier("from-config"))))
	if err != nil {
		t.Errorf("segment file not created in configured dir: %v", err)
	}
}

func hex8(id uint32) string {
	return fmt.Sprintf("%08x", id)
}
