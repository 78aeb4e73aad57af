package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fediwatch/mentiond/internal/domain"
)

// persistedState is the on-disk layout of the dedup store.
type persistedState struct {
	Version       int                  `json:"version"`
	WatermarkID   string               `json:"watermark_id"`
	WatermarkTime time.Time            `json:"watermark_time"`
	InitializedAt time.Time            `json:"initialized_at"`
	Seen          map[string]time.Time `json:"seen"`
}

// StateStore implements domain.DedupStore on a small JSON file.
// Every mutation is persisted with an atomic write so a crash never
// leaves a half-written state behind. A missing or corrupt file resets
// the watermark to "now": mentions predating the reset are never
// retroactively processed.
type StateStore struct {
	path    string
	horizon time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	state persistedState
}

// OpenStateStore loads (or initializes) the dedup store at path.
// horizon bounds seen-set retention.
func OpenStateStore(path string, horizon time.Duration, logger *zap.Logger) (*StateStore, error) {
	s := &StateStore{
		path:    path,
		horizon: horizon,
		logger:  logger,
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		logger.Info("no dedup state found, initializing watermark to now",
			zap.String("path", path))
		s.reset()
	case err != nil:
		return nil, fmt.Errorf("reading dedup state: %w", err)
	default:
		if jsonErr := json.Unmarshal(data, &s.state); jsonErr != nil || s.state.Version == 0 {
			logger.Warn("dedup state corrupt, resetting watermark to now",
				zap.String("path", path),
				zap.Error(jsonErr))
			s.reset()
		}
	}

	if s.state.Seen == nil {
		s.state.Seen = make(map[string]time.Time)
	}

	if err := s.save(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *StateStore) reset() {
	s.state = persistedState{
		Version:       1,
		InitializedAt: time.Now(),
		Seen:          make(map[string]time.Time),
	}
}

// IsProcessed reports whether id is in the seen set.
func (s *StateStore) IsProcessed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.state.Seen[id]
	return ok
}

// MarkProcessed records id in the seen set. Marking the same id twice
// is a no-op, not an error.
func (s *StateStore) MarkProcessed(id string, createdAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.Seen[id]; ok {
		return nil
	}
	s.state.Seen[id] = createdAt
	s.pruneLocked()
	return s.save()
}

// Watermark returns the current cursor id, empty until the first
// mention is processed.
func (s *StateStore) Watermark() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.WatermarkID
}

// AdvanceWatermark moves the cursor forward. The watermark only
// advances by source ordering; it is never rolled back.
func (s *StateStore) AdvanceWatermark(id string, createdAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.WatermarkID != "" && domain.CompareID(id, s.state.WatermarkID) <= 0 {
		return nil
	}
	s.state.WatermarkID = id
	s.state.WatermarkTime = createdAt
	return s.save()
}

// InitializedAt is when this store was first created.
func (s *StateStore) InitializedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.InitializedAt
}

// SeenCount is exposed for tests and status display.
func (s *StateStore) SeenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.Seen)
}

// pruneLocked expires seen entries older than the horizon behind the
// watermark. They are already excluded by the watermark bound, so
// dropping them only saves memory. Caller holds s.mu.
func (s *StateStore) pruneLocked() {
	if s.horizon <= 0 || s.state.WatermarkTime.IsZero() {
		return
	}
	cutoff := s.state.WatermarkTime.Add(-s.horizon)
	for id, t := range s.state.Seen {
		if t.Before(cutoff) {
			delete(s.state.Seen, id)
		}
	}
}

// save writes state to disk atomically (temp file + rename).
// Caller holds s.mu.
func (s *StateStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := json.Marshal(&s.state)
	if err != nil {
		return err
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", s.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Ensure StateStore implements domain.DedupStore.
var _ domain.DedupStore = (*StateStore)(nil)
