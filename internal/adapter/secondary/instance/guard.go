package instance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"micguard/internal/domain"
	"micguard/internal/logging"
)

// Instance policies.
const (
	PolicyExclusive = "exclusive"
	PolicyTakeover  = "takeover"
)

const (
	takeoverAttempts = 20
	takeoverWait     = 100 * time.Millisecond
)

// Guard makes sure at most one monitor runs per lock.
type Guard struct {
	lockPath string
	policy   string
	exe      string
	command  string
	self     int32
	table    ProcessTable
	log      *logging.Logger
	sleep    func(context.Context, time.Duration) error

	release func() error
}

// NewGuard builds a guard for the lock at lockPath. exe and command identify
// sibling processes for the takeover sweep, such as "micguard" and "run".
func NewGuard(lockPath, policy, exe, command string, table ProcessTable, log *logging.Logger) *Guard {
	if table == nil {
		table = SystemProcesses{}
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Guard{
		lockPath: lockPath,
		policy:   policy,
		exe:      exeName(exe),
		command:  command,
		self:     int32(os.Getpid()),
		table:    table,
		log:      log,
		sleep:    sleepContext,
	}
}

// EnsureSingleInstance acquires the lock. Under the takeover policy running
// siblings are terminated first and acquisition is retried while they exit.
// Every error wraps domain.ErrInstanceGuard.
func (g *Guard) EnsureSingleInstance(ctx context.Context) error {
	release, err := lockFile(g.lockPath)
	if err == nil {
		g.release = release
		return nil
	}
	if !errors.Is(err, domain.ErrAlreadyRunning) {
		return fmt.Errorf("%w: %w", domain.ErrInstanceGuard, err)
	}
	if g.policy != PolicyTakeover {
		return fmt.Errorf("%w: %w (lock %s)", domain.ErrInstanceGuard, err, g.lockPath)
	}

	killed, err := g.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInstanceGuard, err)
	}
	g.log.Warnf("terminated %d running instance(s) to take over %s", killed, g.lockPath)

	for i := 0; i < takeoverAttempts; i++ {
		if err := g.sleep(ctx, takeoverWait); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrInstanceGuard, err)
		}
		release, err = lockFile(g.lockPath)
		if err == nil {
			g.release = release
			return nil
		}
		if !errors.Is(err, domain.ErrAlreadyRunning) {
			return fmt.Errorf("%w: %w", domain.ErrInstanceGuard, err)
		}
	}
	return fmt.Errorf("%w: %w after takeover", domain.ErrInstanceGuard, domain.ErrAlreadyRunning)
}

// Sweep terminates every sibling process except this one and returns how many were killed.
func (g *Guard) Sweep(ctx context.Context) (int, error) {
	procs, err := g.table.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list processes: %w", err)
	}
	killed := 0
	for _, p := range procs {
		if p.PID == g.self || !isSibling(p, g.exe, g.command) {
			continue
		}
		if err := g.table.Kill(ctx, p.PID); err != nil {
			return killed, fmt.Errorf("terminate pid %d: %w", p.PID, err)
		}
		g.log.Infof("terminated instance pid %d", p.PID)
		killed++
	}
	return killed, nil
}

// Release drops the lock. Safe to call more than once.
func (g *Guard) Release() error {
	if g.release == nil {
		return nil
	}
	err := g.release()
	g.release = nil
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
