package daemon

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fediwatch/mentiond/internal/domain"
)

// DefaultStopTimeout is how long Stop waits for a graceful shutdown
// before force-terminating.
const DefaultStopTimeout = 10 * time.Second

// Controller drives the daemon lifecycle from CLI invocations:
// NotRunning -> Starting -> Running -> Stopping -> NotRunning. All
// transitions are serialized through the lease; there is no in-memory
// state shared between invocations.
type Controller struct {
	leases      domain.LeaseStore
	pm          domain.ProcessManager
	spawn       func() (int, error)
	stopTimeout time.Duration
	logger      *zap.Logger
}

// NewController creates a process controller. spawn launches the
// detached daemon process and returns its pid.
func NewController(
	leases domain.LeaseStore,
	pm domain.ProcessManager,
	spawn func() (int, error),
	logger *zap.Logger,
) *Controller {
	return &Controller{
		leases:      leases,
		pm:          pm,
		spawn:       spawn,
		stopTimeout: DefaultStopTimeout,
		logger:      logger,
	}
}

// Status reports the daemon state by checking lease validity. Pure
// read except for reaping a stale lease left by a crashed daemon.
func (c *Controller) Status() (domain.DaemonState, *domain.Lease, error) {
	lease, err := c.leases.Current()
	if err != nil {
		// Corrupt lease record: treat as stale.
		c.logger.Warn("removing unreadable lease", zap.Error(err))
		if clearErr := c.leases.ClearStale(); clearErr != nil {
			return domain.StateNotRunning, nil, clearErr
		}
		return domain.StateNotRunning, nil, nil
	}
	if lease == nil {
		return domain.StateNotRunning, nil, nil
	}
	if !c.pm.IsRunning(lease.PID) {
		c.logger.Warn("removing stale lease for dead process",
			zap.Int("pid", lease.PID))
		_ = c.leases.ClearStale()
		return domain.StateNotRunning, nil, nil
	}
	return domain.StateRunning, lease, nil
}

// Start launches the daemon. Fails with ErrAlreadyRunning if a live
// lease exists; the running instance is unaffected.
func (c *Controller) Start() (*domain.Lease, error) {
	state, lease, err := c.Status()
	if err != nil {
		return nil, err
	}
	if state == domain.StateRunning {
		return lease, domain.ErrAlreadyRunning
	}

	pid, err := c.spawn()
	if err != nil {
		return nil, fmt.Errorf("spawning daemon: %w", err)
	}
	c.logger.Info("daemon spawned", zap.Int("pid", pid))

	// The child acquires the lease itself; wait for it to show up so
	// the CLI can report startup failures instead of lying.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		state, lease, err = c.Status()
		if err == nil && state == domain.StateRunning {
			return lease, nil
		}
		if !c.pm.IsRunning(pid) {
			return nil, fmt.Errorf("daemon process %d exited during startup (check the daemon log)", pid)
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil, fmt.Errorf("daemon process %d did not become ready", pid)
}

// Stop terminates the lease holder. It sends SIGTERM, waits up to the
// stop timeout for the engine to acknowledge shutdown, then SIGKILLs.
// Fails with ErrNotRunning when no live lease exists, leaving no lease
// artifact behind.
func (c *Controller) Stop() error {
	state, lease, err := c.Status()
	if err != nil {
		return err
	}
	if state != domain.StateRunning {
		return domain.ErrNotRunning
	}

	c.logger.Info("stopping daemon", zap.Int("pid", lease.PID))
	if err := c.pm.Terminate(lease.PID); err != nil {
		return fmt.Errorf("signaling daemon %d: %w", lease.PID, err)
	}

	deadline := time.Now().Add(c.stopTimeout)
	for time.Now().Before(deadline) {
		if !c.pm.IsRunning(lease.PID) {
			_ = c.leases.ClearStale()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	c.logger.Warn("daemon did not stop in time, force-terminating",
		zap.Int("pid", lease.PID))
	if err := c.pm.Kill(lease.PID); err != nil {
		return fmt.Errorf("force-terminating daemon %d: %w", lease.PID, err)
	}
	_ = c.leases.ClearStale()
	return nil
}

// SetStopTimeout overrides the graceful shutdown window (tests).
func (c *Controller) SetStopTimeout(d time.Duration) {
	c.stopTimeout = d
}
