package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
)

const shellPrompt = "shmkv> "

var errUnterminatedQuote = errors.New("unterminated quote")

func (a *app) shellCmd() *Command {
	flags := flag.NewFlagSet("shell", flag.ContinueOnError)
	noHistory := flags.Bool("no-history", false, "Do not read or write ~/.shmkv_history")

	return &Command{
		Flags: flags,
		Usage: "shell [flags]",
		Short: "Run commands interactively",
		Long: `Start an interactive shell on the configured key.

Every command except shell is available without the "shmkv" prefix. Arguments
may be quoted with single or double quotes. Type "help" for the list and
"exit" to leave.`,
		Args: noArgs,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return a.runShell(ctx, o, !*noHistory)
		},
	}
}

// lineReader yields one input line per call and io.EOF at the end.
type lineReader interface {
	ReadLine() (string, error)
	Close() error
}

func (a *app) runShell(ctx context.Context, o *IO, history bool) error {
	reader := a.newLineReader(history)
	defer reader.Close()

	s, err := a.open()
	if err != nil {
		return err
	}

	o.Printf("shmkv shell - key %q, segment %08x. Type 'help' for commands.\n", s.Key(), s.Identifier())

	a.inShell = true
	defer func() { a.inShell = false }()

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := reader.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		args, err := splitLine(line)
		if err != nil {
			o.ErrPrintln("error:", err)

			continue
		}

		switch args[0] {
		case "exit", "quit", "q":
			return nil
		case "help", "?":
			printCommands(o, a.shellCommands())

			continue
		}

		a.shellDispatch(ctx, o, args)
	}
}

// shellDispatch runs one shell line. Failures are reported and the session
// continues.
func (a *app) shellDispatch(ctx context.Context, o *IO, args []string) {
	for _, cmd := range a.shellCommands() {
		if cmd.Name() != args[0] {
			continue
		}

		code := cmd.Run(ctx, o, args[1:])
		if code != 0 && a.store != nil {
			// A handle destroyed from another process keeps failing; drop
			// it so the next command attaches again.
			_, err := a.store.Len()
			if err != nil {
				a.log.Debug("dropping unusable store handle", "error", err)
				_ = a.store.Close()
				a.forget()
			}
		}

		return
	}

	o.ErrPrintln("error: unknown command:", args[0], "(type 'help' for commands)")
}

func (a *app) shellCommands() []*Command {
	return slices.DeleteFunc(a.commands(), func(c *Command) bool {
		return c.Name() == "shell"
	})
}

func (a *app) newLineReader(history bool) lineReader {
	if f, ok := a.in.(*os.File); ok && f == os.Stdin {
		return newLinerReader(a, history)
	}

	in := a.in
	if in == nil {
		in = strings.NewReader("")
	}

	return &scanReader{scanner: bufio.NewScanner(in)}
}

// scanReader reads plain lines, for input that is not the terminal.
type scanReader struct {
	scanner *bufio.Scanner
}

func (r *scanReader) ReadLine() (string, error) {
	if !r.scanner.Scan() {
		err := r.scanner.Err()
		if err != nil {
			return "", err
		}

		return "", io.EOF
	}

	return r.scanner.Text(), nil
}

func (r *scanReader) Close() error { return nil }

// linerReader reads from the terminal with line editing and history.
type linerReader struct {
	state       *liner.State
	historyPath string
}

func newLinerReader(a *app, history bool) *linerReader {
	r := &linerReader{state: liner.NewLiner()}

	r.state.SetCtrlCAborts(true)
	r.state.SetCompleter(func(line string) []string {
		var out []string

		for _, cmd := range append(a.shellCommands(), &Command{Usage: "help"}, &Command{Usage: "exit"}) {
			if strings.HasPrefix(cmd.Name(), line) {
				out = append(out, cmd.Name())
			}
		}

		return out
	})

	if !history {
		return r
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return r
	}

	r.historyPath = filepath.Join(home, ".shmkv_history")

	f, err := os.Open(r.historyPath)
	if err == nil {
		_, _ = r.state.ReadHistory(f)
		_ = f.Close()
	}

	return r
}

func (r *linerReader) ReadLine() (string, error) {
	line, err := r.state.Prompt(shellPrompt)
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(line) != "" {
		r.state.AppendHistory(line)
	}

	return line, nil
}

func (r *linerReader) Close() error {
	if r.historyPath != "" {
		f, err := os.Create(r.historyPath)
		if err == nil {
			_, _ = r.state.WriteHistory(f)
			_ = f.Close()
		}
	}

	return r.state.Close()
}

// splitLine splits a shell line into words. Single and double quotes group
// words; a backslash escapes the next character outside single quotes.
func splitLine(line string) ([]string, error) {
	var (
		words   []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)

			escaped = false
		case r == '\\' && quote != '\'':
			escaped, inWord = true, true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote, inWord = r, true
		case r == ' ' || r == '\t':
			if inWord {
				words = append(words, cur.String())
				cur.Reset()

				inWord = false
			}
		default:
			cur.WriteRune(r)

			inWord = true
		}
	}

	if quote != 0 || escaped {
		return nil, errUnterminatedQuote
	}

	if inWord {
		words = append(words, cur.String())
	}

	return words, nil
}
