package serve

import (
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/pyscope/pyscope/supervisor"
)

// LaunchParams is the wire form of a launch request.
type LaunchParams struct {
	// Script is the path of the target program, resolved on the
	// server's filesystem.
	Script string `json:"script"`

	// Workdir is the working directory for the target. Empty means
	// the script's directory.
	Workdir string `json:"workdir,omitempty"`

	// Python is an explicit interpreter path. Empty means the
	// server's resolved interpreter.
	Python string `json:"python,omitempty"`

	// ExtraPaths are additional module path entries for the target.
	ExtraPaths []string `json:"extraPaths,omitempty"`

	// Args are the arguments passed to the target.
	Args []string `json:"args,omitempty"`
}

// RunInfo is a point-in-time view of a registered run.
type RunInfo struct {
	ID     rpc.ID `json:"id"`
	PID    int    `json:"pid"`
	State  string `json:"state"`
	Script string `json:"script"`
}

// RunReport is the terminal record of a run as sent to clients.
type RunReport struct {
	ExitCode    int      `json:"exitCode"`
	LaunchError string   `json:"launchError,omitempty"`
	Leaks       []string `json:"leaks,omitempty"`
	Stdout      string   `json:"stdout"`
	Stderr      string   `json:"stderr"`
}

// SampleInfo is the wire form of one resource sample.
type SampleInfo struct {
	Elapsed    float64 `json:"elapsed"`
	RSS        uint64  `json:"rss"`
	CPUPercent float64 `json:"cpuPercent"`
	Threads    int32   `json:"threads"`
	Children   int     `json:"children"`
}

// Event types pushed to an events subscriber.
const (
	EventSample = "sample"
	EventOutput = "output"
	EventDone   = "done"
)

// Event is one notification pushed to an events subscriber. Type
// selects which of the payload fields are set: a sample, an output
// line with its stream tag, or the terminal report.
type Event struct {
	Type   string      `json:"type"`
	Sample *SampleInfo `json:"sample,omitempty"`
	Stream string      `json:"stream,omitempty"`
	Line   string      `json:"line,omitempty"`
	Result *RunReport  `json:"result,omitempty"`
}

func sampleEvent(smp supervisor.Sample) Event {
	return Event{
		Type: EventSample,
		Sample: &SampleInfo{
			Elapsed:    smp.Elapsed,
			RSS:        smp.RSS,
			CPUPercent: smp.CPUPercent,
			Threads:    smp.Threads,
			Children:   smp.Children,
		},
	}
}

func outputEvent(event supervisor.OutputEvent) Event {
	return Event{
		Type:   EventOutput,
		Stream: string(event.Stream),
		Line:   event.Line,
	}
}

func doneEvent(report *RunReport) Event {
	return Event{
		Type:   EventDone,
		Result: report,
	}
}

func runReport(result supervisor.RunResult) *RunReport {
	report := &RunReport{
		ExitCode: result.ExitCode,
		Leaks:    result.Leaks,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	}

	if result.LaunchErr != nil {
		report.LaunchError = result.LaunchErr.Error()
	}

	return report
}
