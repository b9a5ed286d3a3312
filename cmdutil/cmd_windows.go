//go:build windows

package cmdutil

import (
	"os/exec"
	"syscall"
)

const createNoWindow = 0x08000000

// HideWindow keeps child processes from flashing a console window.
func HideWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: createNoWindow,
	}
}
