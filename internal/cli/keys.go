package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/shmkv/pkg/shmstore"
)

func (a *app) keysCmd() *Command {
	flags := flag.NewFlagSet("keys", flag.ContinueOnError)
	values := flags.BoolP("values", "l", false, "Also print each value")

	return &Command{
		Flags: flags,
		Usage: "keys [flags]",
		Short: "List keys in insertion order",
		Args:  noArgs,
		Exec: func(_ context.Context, o *IO, _ []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}

			keys, err := s.Keys()
			if err != nil {
				return err
			}

			for _, key := range keys {
				if !*values {
					o.Println(key)

					continue
				}

				v, err := s.Get(key, shmstore.Value{})
				if err != nil {
					o.Warn(fmt.Sprintf("key %q", key), err.Error())

					continue
				}

				o.Printf("%s=%s\n", key, v)
			}

			return nil
		},
	}
}
