//go:build windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// CREATE_NO_WINDOW, keeps console-less hosts from flashing a console
// window for the child.
const createNoWindow = 0x08000000

func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNoWindow}
}
