package supervisor

import (
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// sampleTree is the sampling loop. At every tick it enumerates the
// live descendants of the child, records every discovered PID in the
// tracked set and emits one aggregate Sample. It ends when the child
// exits, when a stop is requested, or when the child itself becomes
// unmeasurable.
func (s *Supervisor) sampleTree(root *process.Process) {
	defer close(s.samplerDone)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.termination:
			return
		case <-ticker.C:
		}

		if s.stop.Load() {
			return
		}

		sample, ok := s.measure(root)
		if !ok {
			// the child itself is gone: not an error, just the end
			// of the sampling window
			return
		}

		if s.events.Samples == nil {
			continue
		}

		select {
		case s.events.Samples <- sample:
		case <-s.termination:
			return
		}
	}
}

// measure aggregates one Sample across the child and its descendants.
// A descendant that vanishes or becomes inaccessible mid-enumeration
// is skipped; only the child's own disappearance ends sampling.
func (s *Supervisor) measure(root *process.Process) (Sample, bool) {
	mem, err := root.MemoryInfo()
	if err != nil {
		return Sample{}, false
	}

	totalRSS := mem.RSS

	totalCPU, err := root.Percent(0)
	if err != nil {
		return Sample{}, false
	}

	var totalThreads int32
	if threads, err := root.NumThreads(); err == nil {
		totalThreads = threads
	}

	var childCount int
	if children, err := root.Children(); err == nil {
		childCount = len(children)

		for _, child := range children {
			s.tracked[child.Pid] = struct{}{}

			// Percent measures against the previous call on the same
			// handle, so each descendant keeps one handle across ticks
			proc, ok := s.procs[child.Pid]
			if !ok {
				proc = child
				s.procs[child.Pid] = child
			}

			childMem, err := proc.MemoryInfo()
			if err != nil {
				continue
			}
			totalRSS += childMem.RSS

			if cpu, err := proc.Percent(0); err == nil {
				totalCPU += cpu
			}
			if threads, err := proc.NumThreads(); err == nil {
				totalThreads += threads
			}
		}
	}

	return Sample{
		Elapsed:    time.Since(s.startedAt).Seconds(),
		RSS:        totalRSS,
		CPUPercent: totalCPU,
		Threads:    totalThreads,
		Children:   childCount,
	}, true
}
