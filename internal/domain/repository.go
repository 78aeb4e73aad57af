package domain

import (
	"context"
	"time"
)

// MentionSource fetches mentions from the remote service and posts
// replies on behalf of the bot account.
// Implementation: Mastodon REST API client.
type MentionSource interface {
	// FetchMentions returns mentions newer than sinceID (exclusive),
	// oldest first. An empty sinceID means no watermark yet.
	FetchMentions(ctx context.Context, sinceID string) ([]Mention, error)

	// PostReply posts text as a direct-visibility reply to the mention.
	PostReply(ctx context.Context, m Mention, text string) error
}

// AlertSink delivers a human-readable notification to the bot
// administrator. A delivery failure cannot be escalated through the
// sink itself; callers fall back to local logging.
type AlertSink interface {
	Notify(ctx context.Context, msg string) error
}

// DedupStore is the durable record of which mentions have been handled
// and of the fetch watermark. Only the lease holder writes it.
type DedupStore interface {
	// IsProcessed reports whether id is in the seen set.
	IsProcessed(id string) bool

	// MarkProcessed records id in the seen set. Idempotent.
	MarkProcessed(id string, createdAt time.Time) error

	// Watermark returns the current cursor id, empty before the first
	// mention is processed.
	Watermark() string

	// AdvanceWatermark moves the cursor forward. Values at or below
	// the current watermark are ignored; the watermark never rolls back.
	AdvanceWatermark(id string, createdAt time.Time) error

	// InitializedAt is when the store was first created. Mentions
	// predating it are never dispatched (fresh installs must not reply
	// to history).
	InitializedAt() time.Time
}

// LeaseStore mediates exclusive ownership between the daemon process
// and separate CLI invocations. The lease is the single shared mutable
// resource.
type LeaseStore interface {
	// Acquire takes the advisory lock and records the caller as the
	// live instance. Returns ErrAlreadyRunning if another holder is live.
	// The returned release func drops the lock and removes the record.
	Acquire(pid int) (release func(), err error)

	// Current returns the recorded lease, or nil when none exists.
	// Read-only; does not take the lock.
	Current() (*Lease, error)

	// ClearStale removes a lease record whose process is no longer
	// alive. No-op when the lease is live or absent.
	ClearStale() error
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// Terminate asks a process to shut down (SIGTERM).
	Terminate(pid int) error

	// Kill force-terminates a process (SIGKILL).
	Kill(pid int) error

	// CurrentPID returns the current process PID.
	CurrentPID() int
}
