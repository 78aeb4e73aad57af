// Package domain contains core business entities and interfaces.
// This is the innermost layer - no external dependencies.
package domain

import (
	"strconv"
	"strings"
	"time"
)

// DaemonState describes the lifecycle of the mention daemon.
type DaemonState string

const (
	StateNotRunning DaemonState = "not_running"
	StateStarting   DaemonState = "starting"
	StateRunning    DaemonState = "running"
	StateStopping   DaemonState = "stopping"
)

// Mention is the unit of work processed by the engine: an inbound
// status that references the bot account. Immutable once fetched.
type Mention struct {
	// ID is the notification identifier, stable across fetches.
	// Also the watermark cursor value.
	ID string

	// StatusID identifies the status a reply should be attached to.
	StatusID string

	// AuthorID is the account id of the author (used for the
	// self-mention guard).
	AuthorID string

	// Author is the author's handle (acct), e.g. "alice@example.social".
	Author string

	// Content is the plain-text body with markup stripped.
	Content string

	CreatedAt time.Time
}

// Reply is what a plugin returns when it wants to respond to a mention.
// A nil *Reply means the plugin had nothing to say (NoAction).
type Reply struct {
	Text string
}

// Account identifies the bot's own account on the remote service.
type Account struct {
	ID   string
	Acct string
}

// Lease records the single live daemon instance. Persisted next to the
// advisory lock so separate CLI invocations can observe it.
type Lease struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// CompareID orders mention identifiers the way the remote service does:
// numerically when both sides are numeric (snowflake ids), otherwise by
// length then lexicographically. Returns -1, 0 or 1.
func CompareID(a, b string) int {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	if errA == nil && errB == nil {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	}
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
