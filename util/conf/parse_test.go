package conf_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"github.com/xeipuuv/gojsonschema"

	"github.com/pyscope/pyscope/util/conf"
)

type testConfig struct {
	LogLevel string        `conf:"log_level"`
	Run      testRunConfig `conf:"run"`
}

type testRunConfig struct {
	SampleInterval time.Duration `conf:"sample_interval"`
	MaxProcs       int           `conf:"max_procs"`
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := conf.Parse[testConfig](conf.ParseOptions{
		Defaults: conf.DefaultConfig{
			"log_level":           "info",
			"run.sample_interval": 100 * time.Millisecond,
			"run.max_procs":       1,
		},
		EnvPrefix: "PYSCOPECONFA",
	})
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 100*time.Millisecond, cfg.Run.SampleInterval)
	assert.Equal(t, 1, cfg.Run.MaxProcs)
}

func TestParse_FileOverridesDefaults(t *testing.T) {
	file := writeConfigFile(t, `{
		"log_level": "debug",
		"run": {"sample_interval": "250ms"}
	}`)

	cfg, err := conf.Parse[testConfig](conf.ParseOptions{
		Defaults: conf.DefaultConfig{
			"log_level":     "info",
			"run.max_procs": 1,
		},
		EnvPrefix: "PYSCOPECONFB",
		File:      file,
	})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.Run.SampleInterval)

	// keys the file does not mention keep their defaults
	assert.Equal(t, 1, cfg.Run.MaxProcs)
}

func TestParse_EnvOverridesFile(t *testing.T) {
	file := writeConfigFile(t, `{"run": {"max_procs": 2}}`)

	t.Setenv("PYSCOPECONFC__RUN__MAX_PROCS", "7")
	t.Setenv("PYSCOPECONFC__LOG_LEVEL", "warn")

	cfg, err := conf.Parse[testConfig](conf.ParseOptions{
		EnvPrefix: "PYSCOPECONFC",
		File:      file,
	})
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Run.MaxProcs)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestParse_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("PYSCOPECONFD__RUN__MAX_PROCS", "7")

	var (
		cfg      testConfig
		parseErr error
	)

	app := &cli.App{
		Name: "test",
		Commands: []*cli.Command{
			{
				Name: "run",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "max-procs"},
					&cli.DurationFlag{Name: "sample-interval"},
				},
				Action: func(ctx *cli.Context) error {
					cfg, parseErr = conf.Parse[testConfig](conf.ParseOptions{
						Cli: ctx,
						CliMap: map[string]string{
							"max-procs":       "run.max_procs",
							"sample-interval": "run.sample_interval",
						},
						EnvPrefix: "PYSCOPECONFD",
					})
					return nil
				},
			},
		},
	}

	err := app.Run([]string{"test", "run", "--max-procs", "4", "--sample-interval", "50ms"})
	require.NoError(t, err)
	require.NoError(t, parseErr)

	assert.Equal(t, 4, cfg.Run.MaxProcs)
	assert.Equal(t, 50*time.Millisecond, cfg.Run.SampleInterval)
}

func TestParse_FileFailsValidation(t *testing.T) {
	schema := mustTestSchema(t)

	file := writeConfigFile(t, `{"log_level": "loud"}`)

	_, err := conf.Parse[testConfig](conf.ParseOptions{
		EnvPrefix:  "PYSCOPECONFE",
		File:       file,
		FileSchema: schema,
	})

	var schemaErr *conf.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, file, schemaErr.File)
	assert.NotEmpty(t, schemaErr.Result.Errors())
	assert.Contains(t, schemaErr.Error(), file)
}

func TestParse_ValidFileAccepted(t *testing.T) {
	schema := mustTestSchema(t)

	file := writeConfigFile(t, `{"log_level": "debug"}`)

	cfg, err := conf.Parse[testConfig](conf.ParseOptions{
		EnvPrefix:  "PYSCOPECONFF",
		File:       file,
		FileSchema: schema,
	})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestParse_MissingFileFails(t *testing.T) {
	_, err := conf.Parse[testConfig](conf.ParseOptions{
		EnvPrefix: "PYSCOPECONFG",
		File:      filepath.Join(t.TempDir(), "nope.json"),
	})

	assert.Error(t, err)
}

func mustTestSchema(t *testing.T) *gojsonschema.Schema {
	t.Helper()

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(`{
		"type": "object",
		"properties": {
			"log_level": {"type": "string", "enum": ["debug", "info", "warn"]}
		},
		"additionalProperties": false
	}`))
	require.NoError(t, err)

	return schema
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}
