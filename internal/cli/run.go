package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/shmkv/pkg/shmstore"
)

// Run is the main entry point. Returns exit code.
//
// sigCh may be nil. A signal on it cancels the running command.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globalFlags := newGlobalFlags()

	var rest []string
	if len(args) > 1 {
		rest = args[1:]
	}

	err := globalFlags.set.Parse(rest)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(out, globalFlags)

			return 0
		}

		fprintln(errOut, "error:", err)
		fprintln(errOut)
		printUsage(errOut, globalFlags)

		return 1
	}

	remaining := globalFlags.set.Args()
	if len(remaining) == 0 || globalFlags.help {
		printUsage(out, globalFlags)

		return 0
	}

	logger := newLogger(errOut, globalFlags.verbose)

	cfg, err := LoadConfig(LoadConfigInput{
		WorkDirOverride: globalFlags.cwd,
		ConfigPath:      globalFlags.configPath,
		Overrides:       globalFlags.overrides(),
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	logger.Debug("config loaded",
		"key", cfg.Key,
		"provider", cfg.Provider,
		"capacity", cfg.Capacity,
		"dir", cfg.DirAbs,
		"global", cfg.Sources.Global,
		"project", cfg.Sources.Project,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	a := &app{cfg: cfg, log: logger, in: in}
	defer a.close()

	return a.dispatch(ctx, NewIO(out, errOut), remaining)
}

// app carries what commands share within one invocation or shell session.
type app struct {
	cfg     Config
	log     *slog.Logger
	in      io.Reader
	store   *shmstore.Store
	inShell bool
}

// open returns the store, attaching on first use.
func (a *app) open() (*shmstore.Store, error) {
	if a.store != nil {
		return a.store, nil
	}

	s, err := shmstore.Open(a.cfg.StoreOptions())
	if err != nil {
		return nil, err
	}

	a.log.Debug("store opened",
		"key", s.Key(),
		"id", fmt.Sprintf("%08x", s.Identifier()),
		"provider", a.cfg.Provider,
	)

	a.store = s

	return s, nil
}

// forget drops the cached handle after it became unusable.
func (a *app) forget() {
	a.store = nil
}

func (a *app) close() {
	if a.store == nil {
		return
	}

	err := a.store.Close()
	if err != nil {
		a.log.Warn("close store", "error", err)
	}

	a.store = nil
}

// commands returns fresh command instances. Flag sets keep parsed values,
// so every dispatch needs its own.
func (a *app) commands() []*Command {
	cmds := []*Command{
		a.getCmd(),
		a.setCmd(),
		a.forgetCmd(),
		a.hasCmd(),
		a.keysCmd(),
		a.incrCmd(),
		a.destroyCmd(),
		a.infoCmd(),
		a.printConfigCmd(),
		a.shellCmd(),
	}

	prog := "shmkv"
	if a.inShell {
		prog = ""
	}

	for _, cmd := range cmds {
		cmd.prog = prog
	}

	return cmds
}

func (a *app) dispatch(ctx context.Context, o *IO, args []string) int {
	name := args[0]

	for _, cmd := range a.commands() {
		if cmd.Name() != name {
			continue
		}

		a.log.Debug("run command", "command", name, "args", len(args)-1)

		return cmd.Run(ctx, o, args[1:])
	}

	o.ErrPrintln("error: unknown command:", name)
	o.ErrPrintln()
	printCommands(o.Stderr(), a.commands())

	return 1
}

type globalFlags struct {
	set *flag.FlagSet

	cwd        string
	configPath string
	key        string
	capacity   int
	provider   string
	dir        string
	verbose    bool
	help       bool
}

func newGlobalFlags() *globalFlags {
	g := &globalFlags{set: flag.NewFlagSet("shmkv", flag.ContinueOnError)}

	g.set.SetInterspersed(false)
	g.set.SetOutput(io.Discard)
	g.set.StringVarP(&g.cwd, "cwd", "C", "", "Run as if started in `dir`")
	g.set.StringVarP(&g.configPath, "config", "c", "", "Use specified config `file`")
	g.set.StringVarP(&g.key, "key", "k", "", "Segment key (default \""+shmstore.DefaultKey+"\")")
	g.set.IntVar(&g.capacity, "capacity", 0, "Segment capacity in `bytes` when creating it")
	g.set.StringVar(&g.provider, "provider", "", "Shared memory provider: sysv or file")
	g.set.StringVar(&g.dir, "dir", "", "Directory for segment files and lock files")
	g.set.BoolVarP(&g.verbose, "verbose", "v", false, "Log debug output to stderr")
	g.set.BoolVarP(&g.help, "help", "h", false, "Show help")

	return g
}

func (g *globalFlags) overrides() ConfigOverrides {
	o := ConfigOverrides{
		Capacity: g.capacity,
		Provider: g.provider,
		Dir:      g.dir,
	}

	if g.set.Changed("key") {
		key := g.key
		o.Key = &key
	}

	return o
}

// newLogger returns a debug-level text logger on w when verbose, and a
// logger that drops everything otherwise.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	if !verbose {
		return slog.New(slog.DiscardHandler)
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, g *globalFlags) {
	fprintln(w, `shmkv - typed key/value map in shared memory

Usage: shmkv [flags] <command> [args]

Global flags:`)
	fprintln(w, strings.TrimRight(g.set.FlagUsages(), "\n"))
	fprintln(w)

	a := &app{log: newLogger(io.Discard, false)}
	printCommands(NewIO(w, w), a.commands())
}

func printCommands(o *IO, cmds []*Command) {
	o.Println("Commands:")

	for _, cmd := range cmds {
		o.Println(cmd.HelpLine())
	}
}
