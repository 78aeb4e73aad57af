package daemon

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fediwatch/mentiond/internal/domain"
)

// fakeLeaseStore is an in-memory LeaseStore.
type fakeLeaseStore struct {
	lease *domain.Lease
	pm    *fakeProcessManager
}

func (s *fakeLeaseStore) Acquire(pid int) (func(), error) {
	if s.lease != nil && s.pm.IsRunning(s.lease.PID) {
		return nil, domain.ErrAlreadyRunning
	}
	s.lease = &domain.Lease{PID: pid, StartedAt: time.Now()}
	return func() { s.lease = nil }, nil
}

func (s *fakeLeaseStore) Current() (*domain.Lease, error) { return s.lease, nil }

func (s *fakeLeaseStore) ClearStale() error {
	if s.lease != nil && !s.pm.IsRunning(s.lease.PID) {
		s.lease = nil
	}
	return nil
}

// fakeProcessManager tracks pids and signals.
type fakeProcessManager struct {
	running       map[int]bool
	terminated    []int
	killed        []int
	ignoreSigterm bool
}

func newFakeProcessManager() *fakeProcessManager {
	return &fakeProcessManager{running: make(map[int]bool)}
}

func (m *fakeProcessManager) IsRunning(pid int) bool { return m.running[pid] }

func (m *fakeProcessManager) Terminate(pid int) error {
	m.terminated = append(m.terminated, pid)
	if !m.ignoreSigterm {
		delete(m.running, pid)
	}
	return nil
}

func (m *fakeProcessManager) Kill(pid int) error {
	m.killed = append(m.killed, pid)
	delete(m.running, pid)
	return nil
}

func (m *fakeProcessManager) CurrentPID() int { return 1 }

func newTestController(t *testing.T) (*Controller, *fakeLeaseStore, *fakeProcessManager) {
	t.Helper()
	pm := newFakeProcessManager()
	leases := &fakeLeaseStore{pm: pm}
	nextPID := 1000
	spawn := func() (int, error) {
		nextPID++
		pm.running[nextPID] = true
		// The real child acquires its own lease; the fake does it inline.
		if _, err := leases.Acquire(nextPID); err != nil {
			return 0, err
		}
		return nextPID, nil
	}
	c := NewController(leases, pm, spawn, zap.NewNop())
	c.SetStopTimeout(200 * time.Millisecond)
	return c, leases, pm
}

func TestController_StatusNotRunning(t *testing.T) {
	c, _, _ := newTestController(t)

	state, lease, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, domain.StateNotRunning, state)
	assert.Nil(t, lease)
}

func TestController_StartThenStatusRunning(t *testing.T) {
	c, _, _ := newTestController(t)

	lease, err := c.Start()
	require.NoError(t, err)
	require.NotNil(t, lease)

	state, current, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, domain.StateRunning, state)
	assert.Equal(t, lease.PID, current.PID)
}

func TestController_SecondStartFailsFirstUnaffected(t *testing.T) {
	c, leases, pm := newTestController(t)

	first, err := c.Start()
	require.NoError(t, err)

	_, err = c.Start()
	assert.ErrorIs(t, err, domain.ErrAlreadyRunning)

	// The first instance is untouched.
	assert.True(t, pm.IsRunning(first.PID))
	assert.Equal(t, first.PID, leases.lease.PID)
}

func TestController_StopNotRunning(t *testing.T) {
	c, leases, _ := newTestController(t)

	err := c.Stop()
	assert.ErrorIs(t, err, domain.ErrNotRunning)
	assert.Nil(t, leases.lease, "a failed stop must leave no lease artifact")
}

func TestController_StopTerminatesGracefully(t *testing.T) {
	c, leases, pm := newTestController(t)

	lease, err := c.Start()
	require.NoError(t, err)

	require.NoError(t, c.Stop())
	assert.Equal(t, []int{lease.PID}, pm.terminated)
	assert.Empty(t, pm.killed, "graceful shutdown must not force-terminate")
	assert.Nil(t, leases.lease)
}

func TestController_StopForceKillsAfterTimeout(t *testing.T) {
	c, _, pm := newTestController(t)
	pm.ignoreSigterm = true

	lease, err := c.Start()
	require.NoError(t, err)

	require.NoError(t, c.Stop())
	assert.Equal(t, []int{lease.PID}, pm.terminated)
	assert.Equal(t, []int{lease.PID}, pm.killed)
}

func TestController_StatusReapsStaleLease(t *testing.T) {
	c, leases, pm := newTestController(t)

	// Crashed daemon: lease record without a live process.
	leases.lease = &domain.Lease{PID: 4242, StartedAt: time.Now()}
	pm.running[4242] = false

	state, _, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, domain.StateNotRunning, state)
	assert.Nil(t, leases.lease)
}

func TestController_StartFailsWhenDaemonDiesDuringStartup(t *testing.T) {
	pm := newFakeProcessManager()
	leases := &fakeLeaseStore{pm: pm}
	spawn := func() (int, error) {
		// Child exits immediately without ever taking the lease.
		return 777, nil
	}
	c := NewController(leases, pm, spawn, zap.NewNop())

	_, err := c.Start()
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrAlreadyRunning))
}
