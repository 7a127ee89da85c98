package main

import (
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/pyscope/pyscope/cmd"
	"github.com/pyscope/pyscope/util"
)

// set via ldflags at build time
var (
	Version   string
	Buildtime string
	Commit    string
)

func main() {
	if err := setupSentry(); err != nil {
		log.Fatalf("sentry init failed: %s", err)
	}

	// flush buffered events before the program terminates
	defer sentry.Flush(2 * time.Second)

	version := "local"
	if Version != "" {
		version = Version
	}

	compiled, _ := time.Parse(time.RFC3339, Buildtime)

	cmd.Execute(cmd.ExecuteParams{
		Version:  version,
		Compiled: compiled,
	})
}

// setupSentry enables crash reporting when SENTRY_DSN is set. Without
// a DSN the hook is a no-op and local runs stay offline.
func setupSentry() error {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return nil
	}

	environment := os.Getenv("SENTRY_ENVIRONMENT")
	if environment == "" {
		environment = "local"
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Debug:       util.Truthy(os.Getenv("SENTRY_DEBUG")),
		Environment: environment,
		Release:     Commit,
	})
}
