//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

func configureSysProcAttr(cmd *exec.Cmd) {
	// own process group, so descendants stay enumerable as a tree
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
