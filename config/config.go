package config

import (
	"time"

	"github.com/pyscope/pyscope/supervisor"
	"github.com/pyscope/pyscope/util/conf"
)

type Config struct {
	// LogLevel is the log level for the application
	LogLevel string `conf:"log_level"`

	// LogFormat is the log format for the application
	LogFormat string `conf:"log_format"`

	// Run is the supervision configuration
	Run RunConfig `conf:"run"`
}

type RunConfig struct {
	// Python is an explicit interpreter path. When set, interpreter
	// resolution is skipped.
	Python string `conf:"python"`

	// SampleInterval is the resource sampling cadence
	SampleInterval time.Duration `conf:"sample_interval"`

	// GracePeriod is the pause between child exit and the leak
	// reconciliation pass
	GracePeriod time.Duration `conf:"grace_period"`

	// MaxProcs is the maximum number of concurrently supervised runs
	MaxProcs int `conf:"max_procs"`
}

// DefaultConfig holds the defaults applied below file, env and flags.
var DefaultConfig = defaults()

func defaults() conf.DefaultConfig {
	d := conf.DefaultConfig{
		"log_level":  "info",
		"log_format": "production",
	}

	runDefaults := conf.MergeDefaults("run", conf.DefaultConfig{
		"sample_interval": supervisor.DefaultSampleInterval,
		"grace_period":    supervisor.DefaultGracePeriod,
		"max_procs":       1,
	})

	for key, value := range runDefaults {
		d[key] = value
	}

	return d
}
