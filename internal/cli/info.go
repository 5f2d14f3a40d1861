package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

func (a *app) infoCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("info", flag.ContinueOnError),
		Usage: "info",
		Short: "Show segment details",
		Args:  noArgs,
		Exec: func(_ context.Context, o *IO, _ []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}

			n, err := s.Len()
			if err != nil {
				return err
			}

			o.Println("key=" + s.Key())
			o.Printf("identifier=%08x\n", s.Identifier())
			o.Println("provider=" + a.cfg.Provider)
			o.Printf("capacity=%d (%s)\n", s.Capacity(), formatCapacity(s.Capacity()))
			o.Println("dir=" + a.cfg.DirAbs)
			o.Printf("keys=%d\n", n)

			return nil
		},
	}
}
