// Package conf layers application configuration from defaults, an
// optional json file, environment variables and cli flags, in that
// order of precedence (lowest first), and unmarshals the merged result
// into a typed struct via `conf` tags.
package conf

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v2"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/pyscope/pyscope/util/cliflags"
)

// Delim separates segments of a config path, e.g. "run.max_procs".
const Delim = "."

// DefaultConfig is a flat map of default config values, keyed by the
// delimiter-separated config path.
type DefaultConfig = map[string]any

type ParseOptions struct {
	// Cli is the cli.Context to read flag values from.
	Cli *cli.Context

	// CliMap maps flag names to config paths. Flags not in the map
	// fall back to their lowercased name with dashes as underscores.
	CliMap map[string]string

	// Defaults is the lowest-precedence layer.
	Defaults DefaultConfig

	// EnvPrefix is the prefix for environment variables. Segments are
	// separated by double underscores, the prefix included:
	// PREFIX__RUN__MAX_PROCS -> run.max_procs.
	EnvPrefix string

	// File is the path of a json config file to load. Empty means no
	// file layer.
	File string

	// FileSchema, when set, validates the file layer before it is
	// merged. A file that fails validation aborts the parse.
	FileSchema *gojsonschema.Schema

	// Log is the logger to use.
	Log *zap.Logger
}

// Parse builds the merged configuration and unmarshals it into C.
//
// Unlike env vars and flags, a config file was named explicitly by the
// user, so a file that cannot be read, parsed or validated is a hard
// error rather than a skipped layer.
func Parse[C any](opt ParseOptions) (C, error) {
	log := opt.Log
	if log == nil {
		log = zap.NewNop()
	}

	var config C

	k := koanf.New(Delim)

	if opt.Defaults != nil {
		if err := k.Load(confmap.Provider(opt.Defaults, Delim), nil); err != nil {
			log.Error("error loading defaults", zap.Error(err))
			return config, err
		}
	}

	if opt.File != "" {
		if err := loadFile(k, opt); err != nil {
			log.Error("error loading config file",
				zap.Error(err),
				zap.String("file", opt.File),
			)
			return config, err
		}
	}

	if err := loadEnv(k, opt.EnvPrefix); err != nil {
		log.Error("error loading env vars", zap.Error(err))
		return config, err
	}

	if opt.Cli != nil {
		if err := loadFlags(k, opt.Cli, opt.CliMap); err != nil {
			log.Error("error loading cli flags", zap.Error(err))
			return config, err
		}
	}

	if err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "conf"}); err != nil {
		log.Error("error unmarshalling config", zap.Error(err))
		return config, err
	}

	return config, nil
}

func loadFile(k *koanf.Koanf, opt ParseOptions) error {
	provider := file.Provider(opt.File)

	if opt.FileSchema != nil {
		raw, err := provider.ReadBytes()
		if err != nil {
			return err
		}

		result, err := opt.FileSchema.Validate(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return fmt.Errorf("validating %s: %w", opt.File, err)
		}
		if !result.Valid() {
			return newSchemaError(opt.File, result)
		}
	}

	return k.Load(provider, json.Parser())
}

func loadEnv(k *koanf.Koanf, prefix string) error {
	transform := func(s string) string {
		return transformEnv(s, prefix)
	}

	return k.Load(env.Provider(prefix, Delim, transform), nil)
}

func loadFlags(k *koanf.Koanf, ctx *cli.Context, cliMap map[string]string) error {
	transform := func(s string) string {
		if name, ok := cliMap[s]; ok {
			return name
		}

		return strings.ReplaceAll(strings.ToLower(s), "-", "_")
	}

	return k.Load(cliflags.Provider(ctx, Delim, transform), nil)
}

// transformEnv maps an env var name to a config path: the prefix is
// stripped and each double underscore becomes a path delimiter.
func transformEnv(s, prefix string) string {
	normalized := strings.ReplaceAll(strings.ToLower(s), "__", Delim)

	parts := strings.Split(normalized, Delim)
	if prefix != "" {
		parts = parts[1:]
	}

	return strings.Join(parts, Delim)
}
