// Package plugin defines the mention handler capability and loads
// operator-supplied handlers from a plugin directory at startup.
package plugin

import (
	"context"

	"github.com/fediwatch/mentiond/internal/domain"
)

// Plugin is the single capability every mention handler implements.
// ProcessMention returns a nil *Reply for NoAction; an error is a real
// failure, escalated but never conflated with "nothing to say".
type Plugin interface {
	// Name identifies the plugin in logs and alerts.
	Name() string

	// ProcessMention inspects one mention and optionally produces a reply.
	ProcessMention(ctx context.Context, m domain.Mention) (*domain.Reply, error)
}

// Descriptor is one registered plugin with its dispatch position.
// Immutable after registry initialization.
type Descriptor struct {
	Name     string
	Position int
	Plugin   Plugin
}
