// Package cliflags implements a koanf.Provider backed by the flags of
// a cli.Context, so flag values can participate in config layering.
package cliflags

import (
	"errors"
	"fmt"

	"github.com/knadh/koanf/maps"
	"github.com/urfave/cli/v2"
)

// CLIFlags provides the set flags of a cli.Context as a raw
// map[string]any.
type CLIFlags struct {
	mp map[string]any
}

// Provider reads every flag that is set on the context, either on the
// app itself or on the current command. cb, when non-nil, maps a flag
// name to its config path; with a non-empty delim the resulting flat
// map is unflattened into nested maps.
func Provider(ctx *cli.Context, delim string, cb func(string) string) *CLIFlags {
	flags := make(map[string]cli.Flag)
	for _, flag := range ctx.App.VisibleFlags() {
		flags[flag.Names()[0]] = flag
	}
	for _, flag := range ctx.Command.VisibleFlags() {
		flags[flag.Names()[0]] = flag
	}

	mp := make(map[string]any)

	// ctx.FlagNames returns only flags with a value set
	for _, name := range ctx.FlagNames() {
		flag, ok := flags[name]
		if !ok {
			continue
		}

		value, err := flagValue(ctx, flag)
		if err != nil {
			continue
		}

		key := name
		if cb != nil {
			key = cb(name)
		}
		mp[key] = value
	}

	if delim != "" {
		mp = maps.Unflatten(mp, delim)
	}

	return &CLIFlags{mp: mp}
}

// ReadBytes is not supported by the cliflags provider.
func (p *CLIFlags) ReadBytes() ([]byte, error) {
	return nil, errors.New("cliflags provider does not support this method")
}

// Read returns the loaded map[string]any.
func (p *CLIFlags) Read() (map[string]any, error) {
	return p.mp, nil
}

func flagValue(ctx *cli.Context, flag cli.Flag) (any, error) {
	name := flag.Names()[0]

	switch flag.(type) {
	case *cli.StringFlag:
		return ctx.String(name), nil
	case *cli.StringSliceFlag:
		return ctx.StringSlice(name), nil
	case *cli.PathFlag:
		return ctx.Path(name), nil
	case *cli.IntFlag:
		return ctx.Int(name), nil
	case *cli.IntSliceFlag:
		return ctx.IntSlice(name), nil
	case *cli.Int64Flag:
		return ctx.Int64(name), nil
	case *cli.Int64SliceFlag:
		return ctx.Int64Slice(name), nil
	case *cli.BoolFlag:
		return ctx.Bool(name), nil
	case *cli.Float64Flag:
		return ctx.Float64(name), nil
	case *cli.Float64SliceFlag:
		return ctx.Float64Slice(name), nil
	case *cli.DurationFlag:
		return ctx.Duration(name), nil
	default:
		return nil, fmt.Errorf("unsupported flag type %T", flag)
	}
}
