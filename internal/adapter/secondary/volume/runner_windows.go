//go:build windows

package volume

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

func prepareCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	cmd.Cancel = func() error {
		return cmd.Process.Kill()
	}
}

// processHandle holds the helper's process open so its pid cannot be reused
// while the runner may still terminate it.
type processHandle struct {
	h windows.Handle
}

// track opens the helper while it is unreaped; exec keeps its own handle
// until Wait returns.
func track(cmd *exec.Cmd) leftover {
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE|windows.SYNCHRONIZE, false, uint32(cmd.Process.Pid))
	if err != nil {
		return &processHandle{}
	}
	return &processHandle{h: h}
}

func (p *processHandle) terminate() bool {
	if p.h == 0 {
		return false
	}
	_ = windows.TerminateProcess(p.h, 1)
	ev, err := windows.WaitForSingleObject(p.h, 0)
	return err == nil && ev != windows.WAIT_OBJECT_0
}

func (p *processHandle) release() {
	if p.h != 0 {
		_ = windows.CloseHandle(p.h)
		p.h = 0
	}
}
