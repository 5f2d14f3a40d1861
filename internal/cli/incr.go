package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/shmkv/pkg/shmstore"
)

var errNotInt = errors.New("value is not an int")

func (a *app) incrCmd() *Command {
	flags := flag.NewFlagSet("incr", flag.ContinueOnError)
	flags.SetInterspersed(false)
	timeout := flags.Duration("timeout", 5*time.Second, "How long to wait for the lock (0 tries once, negative waits forever)")

	return &Command{
		Flags: flags,
		Usage: "incr [flags] <key> [delta]",
		Short: "Add to an int value under the store lock",
		Long: `Add delta (default 1) to the int stored under key and print the result.
A missing key counts as 0.

The read-modify-write runs under the cross-process store lock, so concurrent
incr calls never lose an update. Plain set does not take the lock.`,
		Args: rangeArgs(1, 2),
		Exec: func(ctx context.Context, o *IO, args []string) error {
			delta := int64(1)

			if len(args) == 2 {
				n, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid delta %q: %w", args[1], err)
				}

				delta = n
			}

			if err := ctx.Err(); err != nil {
				return err
			}

			s, err := a.open()
			if err != nil {
				return err
			}

			var result int64

			err = s.WithLock(*timeout, func() error {
				v, err := s.Get(args[0], shmstore.Int(0))
				if err != nil {
					return err
				}

				n, ok := v.AsInt()
				if !ok {
					return fmt.Errorf("%w: %s is %s", errNotInt, args[0], v.Kind())
				}

				result = n + delta

				_, err = s.Set(args[0], shmstore.Int(result))

				return err
			})
			if err != nil {
				return err
			}

			o.Println(result)

			return nil
		},
	}
}
