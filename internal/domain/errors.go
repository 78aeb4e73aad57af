package domain

import (
	"errors"
	"fmt"
)

// Lease conflicts are returned to the CLI caller, never escalated to
// the alert sink.
var (
	// ErrAlreadyRunning means start was requested while a live lease exists.
	ErrAlreadyRunning = errors.New("daemon is already running")

	// ErrNotRunning means stop was requested but no live lease exists.
	ErrNotRunning = errors.New("daemon is not running")
)

// ConfigError is fatal at startup, before any lease is acquired.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

// SourceError is a failure talking to the mention source. Transient
// failures (network, timeouts, rate limits, 5xx) are retried at the
// next tick; fatal ones (bad credentials) terminate the loop.
type SourceError struct {
	Op         string
	StatusCode int
	Fatal      bool
	Err        error
}

func (e *SourceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("mention source %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("mention source %s: %v", e.Op, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// IsFatalSource reports whether err is a SourceError the engine must
// not retry.
func IsFatalSource(err error) bool {
	var se *SourceError
	return errors.As(err, &se) && se.Fatal
}

// PluginError is isolated per plugin and mention: it is escalated as a
// notification but never terminates the loop or blocks later plugins.
type PluginError struct {
	Plugin    string
	MentionID string
	Err       error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s failed on mention %s: %v", e.Plugin, e.MentionID, e.Err)
}

func (e *PluginError) Unwrap() error { return e.Err }
