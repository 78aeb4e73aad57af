// Package daemon implements the mention poll engine and the process
// lifecycle around it.
package daemon

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fediwatch/mentiond/internal/domain"
	"github.com/fediwatch/mentiond/internal/plugin"
)

// EngineConfig holds poll engine configuration.
type EngineConfig struct {
	// PollInterval is the sleep between ticks.
	PollInterval time.Duration

	// FetchFailureLimit is how many consecutive transient fetch
	// failures are tolerated before the source is declared persistently
	// unavailable and the loop terminates.
	FetchFailureLimit int

	// SelfAccountID is the bot's own account id; mentions it authors
	// are filtered out, never dispatched.
	SelfAccountID string
}

// Engine is the daemon's heartbeat. Each tick it fetches candidate
// mentions above the watermark, filters already-seen and self-authored
// ones, offers the rest to every plugin in registry order, and records
// progress in the dedup store. One mention, one plugin at a time; the
// only concurrency is the stop signal.
type Engine struct {
	config   EngineConfig
	source   domain.MentionSource
	store    domain.DedupStore
	registry *plugin.Registry
	sink     domain.AlertSink
	logger   *zap.Logger

	fetchFailures int
}

// NewEngine creates a poll engine.
func NewEngine(
	config EngineConfig,
	source domain.MentionSource,
	store domain.DedupStore,
	registry *plugin.Registry,
	sink domain.AlertSink,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		config:   config,
		source:   source,
		store:    store,
		registry: registry,
		sink:     sink,
		logger:   logger,
	}
}

// Run starts the poll loop. It blocks until the context is canceled
// (clean stop, returns nil) or a fatal error terminates the loop
// (escalated first, returned to the caller).
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("mention engine started",
		zap.Duration("poll_interval", e.config.PollInterval),
		zap.Strings("plugins", e.registry.Names()),
		zap.String("watermark", e.store.Watermark()))

	// First tick immediately, then on the interval. The sleep is the
	// ticker select below, interruptible by ctx.
	if err := e.tick(ctx); err != nil {
		return e.fatal(ctx, err)
	}

	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("mention engine stopping")
			return nil

		case <-ticker.C:
			if err := e.tick(ctx); err != nil {
				return e.fatal(ctx, err)
			}
		}
	}
}

// tick runs one poll iteration. A non-nil return terminates the loop.
func (e *Engine) tick(ctx context.Context) error {
	mentions, err := e.source.FetchMentions(ctx, e.store.Watermark())
	if err != nil {
		if ctx.Err() != nil {
			return nil // stop requested mid-fetch
		}
		return e.handleFetchError(ctx, err)
	}
	e.fetchFailures = 0

	for _, m := range mentions {
		if e.store.IsProcessed(m.ID) {
			continue
		}
		if wm := e.store.Watermark(); wm != "" && domain.CompareID(m.ID, wm) <= 0 {
			continue
		}
		// Fresh install: the watermark initialized to "now", so
		// mentions predating the first run are recorded but never
		// dispatched. Avoids a flood of replies on first launch.
		if m.CreatedAt.Before(e.store.InitializedAt()) {
			e.logger.Debug("skipping mention predating first run",
				zap.String("mention_id", m.ID),
				zap.Time("created_at", m.CreatedAt))
			e.record(m)
			continue
		}
		if e.config.SelfAccountID != "" && m.AuthorID == e.config.SelfAccountID {
			e.logger.Debug("skipping self-mention", zap.String("mention_id", m.ID))
			e.record(m)
			continue
		}

		e.dispatch(ctx, m)
		e.record(m)

		// Stop takes effect after the current mention finishes, never
		// mid-dispatch.
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

// handleFetchError applies the failure policy: transient errors are
// retried next tick until the streak limit; fatal and persistent
// errors terminate the loop.
func (e *Engine) handleFetchError(ctx context.Context, err error) error {
	if domain.IsFatalSource(err) {
		return err
	}

	e.fetchFailures++
	if e.config.FetchFailureLimit > 0 && e.fetchFailures >= e.config.FetchFailureLimit {
		return fmt.Errorf("mention source unavailable for %d consecutive polls: %w",
			e.fetchFailures, err)
	}

	e.logger.Warn("transient fetch failure, retrying next tick",
		zap.Int("streak", e.fetchFailures),
		zap.Error(err))
	return nil
}

// dispatch offers the mention to every plugin in registry order. There
// is no "first plugin wins": plugins are not ranked, so each gets its
// chance. A plugin error is escalated and the chain continues.
func (e *Engine) dispatch(ctx context.Context, m domain.Mention) {
	e.logger.Info("new mention",
		zap.String("mention_id", m.ID),
		zap.String("author", m.Author))

	for _, d := range e.registry.Descriptors() {
		reply, err := d.Plugin.ProcessMention(ctx, m)
		if err != nil {
			perr := &domain.PluginError{Plugin: d.Name, MentionID: m.ID, Err: err}
			e.logger.Error("plugin failed",
				zap.String("plugin", d.Name),
				zap.String("mention_id", m.ID),
				zap.Error(err))
			e.escalate(ctx, fmt.Sprintf("%s (at %s)", perr.Error(), time.Now().Format(time.RFC3339)))
			continue
		}
		if reply == nil {
			continue
		}

		if err := e.source.PostReply(ctx, m, reply.Text); err != nil {
			e.logger.Error("posting reply failed",
				zap.String("plugin", d.Name),
				zap.String("mention_id", m.ID),
				zap.Error(err))
			e.escalate(ctx, fmt.Sprintf("posting reply from plugin %s to mention %s failed: %v (at %s)",
				d.Name, m.ID, err, time.Now().Format(time.RFC3339)))
			continue
		}
		e.logger.Info("replied to mention",
			zap.String("plugin", d.Name),
			zap.String("mention_id", m.ID))
	}
}

// record marks the mention processed and advances the watermark. Runs
// after dispatch so a crash before this point re-delivers rather than
// drops.
func (e *Engine) record(m domain.Mention) {
	if err := e.store.MarkProcessed(m.ID, m.CreatedAt); err != nil {
		e.logger.Warn("failed to mark mention processed",
			zap.String("mention_id", m.ID),
			zap.Error(err))
	}
	if err := e.store.AdvanceWatermark(m.ID, m.CreatedAt); err != nil {
		e.logger.Warn("failed to advance watermark",
			zap.String("mention_id", m.ID),
			zap.Error(err))
	}
}

// fatal escalates a loop-terminating error before returning it.
func (e *Engine) fatal(ctx context.Context, err error) error {
	e.logger.Error("mention engine terminating", zap.Error(err))
	e.escalate(ctx, fmt.Sprintf("mention daemon terminating: %v (at %s)",
		err, time.Now().Format(time.RFC3339)))
	return err
}

// escalate sends an alert. The sink failing is the one error that
// cannot be escalated through the sink, so it only gets logged.
func (e *Engine) escalate(ctx context.Context, msg string) {
	// The loop's ctx may already be canceled during shutdown.
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	nctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := e.sink.Notify(nctx, msg); err != nil {
		e.logger.Error("alert delivery failed, keeping local log only",
			zap.String("alert", msg),
			zap.Error(err))
	}
}
