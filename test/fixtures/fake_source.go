// Package fixtures provides test doubles shared by integration tests.
package fixtures

import (
	"context"
	"sync"

	"github.com/fediwatch/mentiond/internal/domain"
)

// ScriptedSource replays a fixed sequence of fetch results, one per
// poll, and records posted replies.
type ScriptedSource struct {
	mu      sync.Mutex
	batches [][]domain.Mention
	errs    []error
	calls   int
	replies []PostedReply
}

// PostedReply captures one PostReply call.
type PostedReply struct {
	MentionID string
	Text      string
}

// NewScriptedSource creates a source that serves the given batches in
// order, then empty results.
func NewScriptedSource(batches ...[]domain.Mention) *ScriptedSource {
	return &ScriptedSource{batches: batches}
}

// FailNext makes the next len(errs) polls fail with the given errors.
func (s *ScriptedSource) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, errs...)
}

func (s *ScriptedSource) FetchMentions(_ context.Context, _ string) ([]domain.Mention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}

	i := s.calls
	s.calls++
	if i < len(s.batches) {
		return s.batches[i], nil
	}
	return nil, nil
}

func (s *ScriptedSource) PostReply(_ context.Context, m domain.Mention, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, PostedReply{MentionID: m.ID, Text: text})
	return nil
}

// Replies returns a copy of everything posted so far.
func (s *ScriptedSource) Replies() []PostedReply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PostedReply(nil), s.replies...)
}

// Polls returns how many fetches have been served.
func (s *ScriptedSource) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// RecordingSink collects escalated alerts.
type RecordingSink struct {
	mu   sync.Mutex
	msgs []string
}

func (s *RecordingSink) Notify(_ context.Context, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

// Messages returns a copy of delivered alerts.
func (s *RecordingSink) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

// Ensure the doubles satisfy the domain interfaces.
var (
	_ domain.MentionSource = (*ScriptedSource)(nil)
	_ domain.AlertSink     = (*RecordingSink)(nil)
)
