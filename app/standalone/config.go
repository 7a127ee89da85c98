package standalone

import "time"

type Config struct {
	// Scripts are the paths of the target programs, one run each.
	Scripts []string

	// Workdir is the working directory for the target. Empty means
	// the script's directory.
	Workdir string

	// Python is an explicit interpreter path. When set, resolution
	// is skipped.
	Python string

	// ExtraPaths are additional module path entries for the target.
	ExtraPaths []string

	// Args are the arguments passed to the target.
	Args []string

	// SampleInterval is the resource sampling cadence.
	SampleInterval time.Duration

	// GracePeriod is the pause between target exit and the leak
	// check.
	GracePeriod time.Duration

	// MaxProcs is the maximum number of concurrently supervised runs.
	MaxProcs int

	// CSVPath, when set, is where the collected samples are written.
	CSVPath string
}
