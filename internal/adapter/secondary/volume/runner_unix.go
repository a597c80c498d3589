//go:build unix

package volume

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// prepareCommand puts the helper in its own process group so a timeout kills
// the whole tree. Cancel runs before the leader is reaped, so the group id
// still belongs to the helper.
func prepareCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return err
	}
}

// processGroup is the helper's process group after its leader was reaped.
// Members are matched by group id and by having been created before the
// kill: a recycled group only gains members after the original one emptied.
type processGroup struct {
	pgid     int
	killedAt time.Time
}

func track(cmd *exec.Cmd) leftover {
	return &processGroup{pgid: cmd.Process.Pid}
}

func (g *processGroup) terminate() bool {
	if g.killedAt.IsZero() {
		g.killedAt = time.Now()
	}
	procs, err := process.Processes()
	if err != nil {
		return false
	}
	alive := false
	for _, p := range procs {
		if !g.owns(p) {
			continue
		}
		if err := unix.Kill(int(p.Pid), unix.SIGKILL); err == nil {
			alive = true
		}
	}
	return alive
}

func (g *processGroup) owns(p *process.Process) bool {
	pgid, err := unix.Getpgid(int(p.Pid))
	if err != nil || pgid != g.pgid {
		return false
	}
	created, err := p.CreateTime()
	return err == nil && created <= g.killedAt.UnixMilli()
}

func (g *processGroup) release() {}
