package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

var errArgCount = errors.New("wrong number of arguments")

// ArgsFunc checks the positional arguments left after flag parsing.
type ArgsFunc func(args []string) error

func noArgs(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: unexpected %q", errArgCount, args[0])
	}

	return nil
}

func exactArgs(n int) ArgsFunc {
	return rangeArgs(n, n)
}

func minArgs(n int) ArgsFunc {
	return rangeArgs(n, -1)
}

// rangeArgs accepts lo to hi arguments. hi < 0 means no upper bound.
func rangeArgs(lo, hi int) ArgsFunc {
	return func(args []string) error {
		switch {
		case len(args) < lo:
			return fmt.Errorf("%w: got %d, want at least %d", errArgCount, len(args), lo)
		case hi >= 0 && len(args) > hi:
			return fmt.Errorf("%w: got %d, want at most %d", errArgCount, len(args), hi)
		}

		return nil
	}
}

// Command defines a CLI command. It owns flag parsing, argument checks, help
// output and error reporting, so every command and the shell fail the same
// way.
type Command struct {
	// Flags defines command-specific flags.
	// The FlagSet name is not used - command identity comes from Usage.
	Flags *flag.FlagSet

	// Usage is the command name followed by its flags and arguments.
	// Examples: "get [flags] <key>", "forget <key>...", "keys"
	Usage string

	// Short is a one-line description for the command listing.
	Short string

	// Long is the full description shown in command help.
	// If empty, Short is used instead.
	Long string

	// Args checks positional arguments before Exec runs. Nil accepts any.
	Args ArgsFunc

	// Exec runs the command after flags and arguments are checked.
	Exec func(ctx context.Context, o *IO, args []string) error

	// prog prefixes Usage in help output: "shmkv" on the command line,
	// empty inside the shell where commands are typed bare.
	prog string
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

// HelpLine returns the short help line for the command listing.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-30s %s", c.Usage, c.Short)
}

func (c *Command) usageLine() string {
	if c.prog == "" {
		return "Usage: " + c.Usage
	}

	return "Usage: " + c.prog + " " + c.Usage
}

// PrintHelp prints the full help output for "<cmd> --help".
func (c *Command) PrintHelp(o *IO) {
	o.Println(c.usageLine())
	o.Println()

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	o.Println(desc)

	if c.Flags != nil && c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")

		var buf strings.Builder

		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}
}

// Run parses flags, checks arguments and executes the command. Returns exit
// code. Usage errors print the command help to stderr; errors from Exec only
// print the error.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	if c.Flags == nil {
		c.Flags = flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	}

	c.Flags.SetOutput(&strings.Builder{}) // discard pflag output

	err := c.Flags.Parse(args)
	if errors.Is(err, flag.ErrHelp) {
		c.PrintHelp(o)

		return 0
	}

	if err == nil && c.Args != nil {
		err = c.Args(c.Flags.Args())
	}

	if err != nil {
		return c.usageError(o, err)
	}

	err = c.Exec(ctx, o, c.Flags.Args())
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	return o.Finish()
}

func (c *Command) usageError(o *IO, err error) int {
	o.ErrPrintln("error:", err)
	o.ErrPrintln()
	c.PrintHelp(o.Stderr())

	return 1
}
