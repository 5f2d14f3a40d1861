package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

func (a *app) forgetCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("forget", flag.ContinueOnError),
		Usage: "forget <key>...",
		Short: "Remove keys",
		Long:  "Remove keys from the map. Keys that are not set are ignored.",
		Args:  minArgs(1),
		Exec: func(_ context.Context, _ *IO, args []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}

			for _, key := range args {
				err = s.Forget(key)
				if err != nil {
					return err
				}
			}

			return nil
		},
	}
}

func (a *app) hasCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("has", flag.ContinueOnError),
		Usage: "has <key>",
		Short: "Print whether a key is set",
		Args:  exactArgs(1),
		Exec: func(_ context.Context, o *IO, args []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}

			ok, err := s.Has(args[0])
			if err != nil {
				return err
			}

			o.Println(ok)

			return nil
		},
	}
}
