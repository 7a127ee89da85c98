package util

import "github.com/shirou/gopsutil/v4/process"

// IsProcessAlive reports whether a process with the given pid
// currently exists.
func IsProcessAlive(pid int) bool {
	exists, err := process.PidExists(int32(pid))
	return err == nil && exists
}
