package supervisor

import (
	"fmt"
	"slices"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// reconcile runs once per run, after the child has been reaped and
// the sampler has stopped. It waits the grace period so the OS can
// finish tearing down descendants, then reports every tracked PID
// that is still alive. Reconciliation only reports; it never kills.
func (s *Supervisor) reconcile() []string {
	time.Sleep(s.grace)

	pids := make([]int32, 0, len(s.tracked))
	for pid := range s.tracked {
		pids = append(pids, pid)
	}
	slices.Sort(pids)

	var leaks []string

	for _, pid := range pids {
		exists, err := process.PidExists(pid)
		if err != nil || !exists {
			continue
		}

		proc, err := process.NewProcess(pid)
		if err != nil {
			continue
		}

		// a zombie has already terminated, it just has not been
		// reaped yet; that is not a leak
		if statuses, err := proc.Status(); err == nil {
			if slices.Contains(statuses, process.Zombie) {
				continue
			}
		}

		name, err := proc.Name()
		if err != nil {
			name = "unknown"
		}

		s.log.Warn("leaked process",
			zap.Int32("pid", pid),
			zap.String("name", name),
		)

		leaks = append(leaks, fmt.Sprintf("PID %d  (%s)", pid, name))
	}

	return leaks
}
