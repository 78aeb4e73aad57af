package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/fediwatch/mentiond/internal/domain"
)

// FileLeaseStore implements domain.LeaseStore with a JSON lease record
// guarded by a flock advisory lock. The lock is held for the daemon's
// whole lifetime, so a crashed daemon releases it automatically while
// the stale record stays behind for ClearStale to reap.
type FileLeaseStore struct {
	leasePath      string
	lockPath       string
	processManager domain.ProcessManager
}

// NewFileLeaseStore creates a lease store rooted at leasePath.
func NewFileLeaseStore(leasePath string, pm domain.ProcessManager) *FileLeaseStore {
	return &FileLeaseStore{
		leasePath:      leasePath,
		lockPath:       leasePath + ".lock",
		processManager: pm,
	}
}

// Acquire takes the advisory lock and records pid as the live instance.
func (s *FileLeaseStore) Acquire(pid int) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.leasePath), 0700); err != nil {
		return nil, fmt.Errorf("creating lease directory: %w", err)
	}

	fileLock := flock.New(s.lockPath)
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lease lock: %w", err)
	}
	if !locked {
		return nil, domain.ErrAlreadyRunning
	}

	// Lock held but a record exists: previous holder could still be
	// mid-shutdown under pid reuse. The lock decides ownership; the
	// record is simply overwritten.
	lease := domain.Lease{PID: pid, StartedAt: time.Now()}
	if err := s.writeLease(&lease); err != nil {
		_ = fileLock.Unlock()
		return nil, err
	}

	release := func() {
		_ = os.Remove(s.leasePath)
		_ = fileLock.Unlock()
	}
	return release, nil
}

// Current returns the recorded lease without taking the lock.
func (s *FileLeaseStore) Current() (*domain.Lease, error) {
	data, err := os.ReadFile(s.leasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var lease domain.Lease
	if err := json.Unmarshal(data, &lease); err != nil {
		return nil, fmt.Errorf("corrupt lease file %s: %w", s.leasePath, err)
	}
	return &lease, nil
}

// ClearStale removes a lease record whose process is dead.
func (s *FileLeaseStore) ClearStale() error {
	lease, err := s.Current()
	if err != nil {
		// A corrupt lease is stale by definition.
		return os.Remove(s.leasePath)
	}
	if lease == nil {
		return nil
	}
	if s.processManager.IsRunning(lease.PID) {
		return nil
	}
	return os.Remove(s.leasePath)
}

// writeLease writes the lease record atomically (write + rename).
func (s *FileLeaseStore) writeLease(lease *domain.Lease) error {
	data, err := json.Marshal(lease)
	if err != nil {
		return err
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", s.leasePath, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.leasePath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Ensure FileLeaseStore implements domain.LeaseStore.
var _ domain.LeaseStore = (*FileLeaseStore)(nil)
