package fixtures

import (
	"context"
	"strings"
	"sync"

	"github.com/fediwatch/mentiond/internal/domain"
)

// KeywordPlugin replies when the mention content contains a keyword.
type KeywordPlugin struct {
	PluginName string
	Keyword    string

	mu        sync.Mutex
	processed []string
}

func (p *KeywordPlugin) Name() string { return p.PluginName }

func (p *KeywordPlugin) ProcessMention(_ context.Context, m domain.Mention) (*domain.Reply, error) {
	p.mu.Lock()
	p.processed = append(p.processed, m.ID)
	p.mu.Unlock()

	if strings.Contains(strings.ToLower(m.Content), p.Keyword) {
		return &domain.Reply{Text: "Hello @" + m.Author + "."}, nil
	}
	return nil, nil
}

// Processed returns the mention ids this plugin has seen.
func (p *KeywordPlugin) Processed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.processed...)
}

// FailingPlugin always errors, for escalation tests.
type FailingPlugin struct {
	PluginName string
	Err        error

	mu        sync.Mutex
	processed []string
}

func (p *FailingPlugin) Name() string { return p.PluginName }

func (p *FailingPlugin) ProcessMention(_ context.Context, m domain.Mention) (*domain.Reply, error) {
	p.mu.Lock()
	p.processed = append(p.processed, m.ID)
	p.mu.Unlock()
	return nil, p.Err
}

// Processed returns the mention ids this plugin has seen.
func (p *FailingPlugin) Processed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.processed...)
}
