package plugin

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fediwatch/mentiond/internal/domain"
)

func TestLoadDir(t *testing.T) {
	r, err := LoadDir(filepath.Join("testdata", "plugins"), zap.NewNop())
	require.NoError(t, err)

	// broken.go (no ProcessMention) is skipped with a warning,
	// _disabled.go is skipped by name.
	require.Equal(t, 1, r.Len())
	assert.Equal(t, []string{"hello"}, r.Names())
}

func TestLoadDir_InterpretedPluginReplies(t *testing.T) {
	r, err := LoadDir(filepath.Join("testdata", "plugins"), zap.NewNop())
	require.NoError(t, err)

	p := r.Descriptors()[0].Plugin
	m := domain.Mention{
		ID:        "42",
		StatusID:  "s42",
		Author:    "alice",
		AuthorID:  "a1",
		Content:   "@bot Hello there",
		CreatedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}

	reply, err := p.ProcessMention(context.Background(), m)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "Hello @alice.", reply.Text)
}

func TestLoadDir_InterpretedPluginNoAction(t *testing.T) {
	r, err := LoadDir(filepath.Join("testdata", "plugins"), zap.NewNop())
	require.NoError(t, err)

	p := r.Descriptors()[0].Plugin
	reply, err := p.ProcessMention(context.Background(), domain.Mention{Content: "unrelated"})
	require.NoError(t, err)
	assert.Nil(t, reply, "no keyword means NoAction, not an error")
}

func TestLoadDir_MissingDirectory(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "nope"), zap.NewNop())
	assert.Error(t, err)
}

func TestLoadDir_EmptyDirectoryIsFatal(t *testing.T) {
	_, err := LoadDir(t.TempDir(), zap.NewNop())
	assert.ErrorIs(t, err, ErrNoPlugins)
}
