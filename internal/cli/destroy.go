package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

func (a *app) destroyCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("destroy", flag.ContinueOnError),
		Usage: "destroy",
		Short: "Remove the segment and everything in it",
		Long: `Remove the shared memory segment for the configured key.

All values are lost. The next command on the same key creates a fresh, empty
segment. Other processes attached to the old segment fail on their next access.`,
		Args: noArgs,
		Exec: func(_ context.Context, o *IO, _ []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}

			err = s.Destroy()
			if err != nil {
				return err
			}

			a.forget()

			o.Printf("destroyed segment %08x (key %q)\n", s.Identifier(), s.Key())

			return nil
		},
	}
}
