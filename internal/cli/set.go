package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/shmkv/pkg/shmstore"
)

var errUnknownType = errors.New("unknown value type")

func (a *app) setCmd() *Command {
	flags := flag.NewFlagSet("set", flag.ContinueOnError)
	flags.SetInterspersed(false) // "set n -5" must not parse -5 as a flag
	typ := flags.StringP("type", "t", "string", "Value `type`: string, int, float, bool or json")

	return &Command{
		Flags: flags,
		Usage: "set [flags] <key> <value>",
		Short: "Store a value under a key",
		Long: `Store a value under a key, replacing any previous value.

The value is a string unless --type says otherwise. With --type json the value
is parsed as JSON: integers become int, other numbers float, and JSON objects
are stored as objects.`,
		Args: exactArgs(2),
		Exec: func(_ context.Context, o *IO, args []string) error {
			v, err := parseValue(*typ, args[1])
			if err != nil {
				return err
			}

			s, err := a.open()
			if err != nil {
				return err
			}

			_, err = s.Set(args[0], v)
			if err != nil {
				return err
			}

			a.log.Debug("value set", "key", args[0], "kind", v.Kind().String())

			return nil
		},
	}
}

// parseValue converts command line text to a Value of the named type.
func parseValue(typ, text string) (shmstore.Value, error) {
	switch typ {
	case "string", "str", "s":
		return shmstore.String(text), nil
	case "int", "i":
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return shmstore.Value{}, fmt.Errorf("invalid int %q: %w", text, err)
		}

		return shmstore.Int(n), nil
	case "float", "double", "d":
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return shmstore.Value{}, fmt.Errorf("invalid float %q: %w", text, err)
		}

		return shmstore.Float(f), nil
	case "bool", "b":
		b, err := strconv.ParseBool(text)
		if err != nil {
			return shmstore.Value{}, fmt.Errorf("invalid bool %q: %w", text, err)
		}

		return shmstore.Bool(b), nil
	case "json":
		return shmstore.ValueFromJSON([]byte(text))
	default:
		return shmstore.Value{}, fmt.Errorf("%w: %q", errUnknownType, typ)
	}
}
