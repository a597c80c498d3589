package instance

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// Process is one entry of the host process table.
type Process struct {
	PID  int32
	Name string
	Args []string
}

// ProcessTable lists processes with their arguments and terminates them by pid.
type ProcessTable interface {
	List(ctx context.Context) ([]Process, error)
	Kill(ctx context.Context, pid int32) error
}

// SystemProcesses is the host process table.
type SystemProcesses struct{}

// List skips processes whose details cannot be read (exited or not ours).
func (SystemProcesses) List(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		args, err := p.CmdlineSliceWithContext(ctx)
		if err != nil {
			continue
		}
		out = append(out, Process{PID: p.Pid, Name: name, Args: args})
	}
	return out, nil
}

func (SystemProcesses) Kill(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return err
	}
	return p.KillWithContext(ctx)
}

// isSibling reports whether p runs the same executable with the given subcommand.
func isSibling(p Process, exe, command string) bool {
	name := exeName(p.Name)
	if len(p.Args) > 0 {
		if n := exeName(p.Args[0]); n != "" {
			name = n
		}
	}
	if !strings.EqualFold(name, exe) {
		return false
	}
	for _, a := range p.Args[min(1, len(p.Args)):] {
		if a == command {
			return true
		}
	}
	return false
}

func exeName(s string) string {
	base := filepath.Base(strings.ReplaceAll(s, `\`, "/"))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
