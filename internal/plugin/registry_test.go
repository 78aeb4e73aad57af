package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fediwatch/mentiond/internal/domain"
)

// stubPlugin is a minimal in-process Plugin for registry tests.
type stubPlugin struct {
	name string
}

func (s *stubPlugin) Name() string { return s.name }

func (s *stubPlugin) ProcessMention(context.Context, domain.Mention) (*domain.Reply, error) {
	return nil, nil
}

func TestNewRegistry_OrdersLexicographically(t *testing.T) {
	r, err := NewRegistry([]Plugin{
		&stubPlugin{name: "zulu"},
		&stubPlugin{name: "alpha"},
		&stubPlugin{name: "mike"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "mike", "zulu"}, r.Names())
	for i, d := range r.Descriptors() {
		assert.Equal(t, i, d.Position)
	}
}

func TestNewRegistry_EmptyIsFatal(t *testing.T) {
	_, err := NewRegistry(nil)
	assert.ErrorIs(t, err, ErrNoPlugins)
}

func TestNewRegistry_DuplicateNamesKeepFirst(t *testing.T) {
	first := &stubPlugin{name: "echo"}
	second := &stubPlugin{name: "echo"}

	r, err := NewRegistry([]Plugin{first, second})
	require.NoError(t, err)
	require.Equal(t, 1, r.Len())
	assert.Same(t, first, r.Descriptors()[0].Plugin)
}
