package cli

import (
	"context"
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/shmkv/pkg/shmstore"
)

var errKeyNotSet = errors.New("key not set")

func (a *app) getCmd() *Command {
	flags := flag.NewFlagSet("get", flag.ContinueOnError)
	def := flags.StringP("default", "d", "", "Print this JSON `value` when the key is not set")
	asJSON := flags.Bool("json", false, "Print the value as JSON")
	withKind := flags.Bool("kind", false, "Prefix the output with the value kind")

	return &Command{
		Flags: flags,
		Usage: "get [flags] <key>",
		Short: "Print the value stored under a key",
		Long: `Print the value stored under a key.

Scalars print in their text form, arrays and objects as JSON. Fails if the key
is not set, unless --default is given.`,
		Args: exactArgs(1),
		Exec: func(_ context.Context, o *IO, args []string) error {
			var fallback *shmstore.Value

			if flags.Changed("default") {
				v, err := shmstore.ValueFromJSON([]byte(*def))
				if err != nil {
					return fmt.Errorf("--default: %w", err)
				}

				fallback = &v
			}

			return a.execGet(o, args[0], fallback, *asJSON, *withKind)
		},
	}
}

func (a *app) execGet(o *IO, key string, fallback *shmstore.Value, asJSON, withKind bool) error {
	s, err := a.open()
	if err != nil {
		return err
	}

	ok, err := s.Has(key)
	if err != nil {
		return err
	}

	var v shmstore.Value

	switch {
	case ok:
		v, err = s.Get(key, shmstore.Value{})
		if err != nil {
			return err
		}
	case fallback != nil:
		v = *fallback
	default:
		return fmt.Errorf("%w: %s", errKeyNotSet, key)
	}

	text := v.String()

	if asJSON {
		data, err := v.MarshalJSON()
		if err != nil {
			return err
		}

		text = string(data)
	}

	if withKind {
		o.Printf("%s\t%s\n", v.Kind(), text)

		return nil
	}

	o.Println(text)

	return nil
}
