// Package notify is the alerting sink the core reports through: rate
// limit warnings, auth failures, quota evictions. The core never renders
// anything itself; the HTTP layer exposes the ring buffer for UI polling.
package notify

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Severity classifies a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Duration hints tell the UI how long to keep a notification visible.
const (
	DurationShort  = 4 * time.Second
	DurationMedium = 8 * time.Second
	DurationLong   = 15 * time.Second
	// DurationSticky marks a notification that must not auto-dismiss,
	// e.g. an authentication failure requiring reconfiguration.
	DurationSticky time.Duration = 0
)

// Notifier receives user-facing alerts from the core.
type Notifier interface {
	Notify(message string, severity Severity, duration time.Duration)
}

// Notification is one alert as retained by the ring.
type Notification struct {
	Message   string        `json:"message"`
	Severity  Severity      `json:"severity"`
	Duration  time.Duration `json:"-"`
	Sticky    bool          `json:"sticky"`
	CreatedAt time.Time     `json:"created_at"`
}

// MarshalJSON reports the duration hint in milliseconds, matching the
// duration_ms field name on the wire.
func (n Notification) MarshalJSON() ([]byte, error) {
	type wire Notification
	return json.Marshal(struct {
		wire
		DurationMillis int64 `json:"duration_ms"`
	}{
		wire:           wire(n),
		DurationMillis: n.Duration.Milliseconds(),
	})
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(message string, severity Severity, duration time.Duration) {
	fields := []zap.Field{
		zap.String("severity", string(severity)),
		zap.Duration("duration_hint", duration),
	}
	switch severity {
	case SeverityError:
		n.logger.Error(message, fields...)
	case SeverityWarning:
		n.logger.Warn(message, fields...)
	default:
		n.logger.Info(message, fields...)
	}
}

// RingNotifier keeps the most recent notifications in memory and also
// forwards them to an inner notifier (normally the log).
type RingNotifier struct {
	mu    sync.Mutex
	buf   []Notification
	cap   int
	inner Notifier
}

// NewRingNotifier creates a ring of the given capacity. A nil inner
// notifier is allowed.
func NewRingNotifier(capacity int, inner Notifier) *RingNotifier {
	if capacity <= 0 {
		capacity = 50
	}
	return &RingNotifier{cap: capacity, inner: inner}
}

func (n *RingNotifier) Notify(message string, severity Severity, duration time.Duration) {
	n.mu.Lock()
	n.buf = append(n.buf, Notification{
		Message:   message,
		Severity:  severity,
		Duration:  duration,
		Sticky:    duration == DurationSticky,
		CreatedAt: time.Now(),
	})
	if len(n.buf) > n.cap {
		n.buf = n.buf[len(n.buf)-n.cap:]
	}
	n.mu.Unlock()

	if n.inner != nil {
		n.inner.Notify(message, severity, duration)
	}
}

// Recent returns the retained notifications, newest last.
func (n *RingNotifier) Recent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.buf))
	copy(out, n.buf)
	return out
}

// NopNotifier discards everything. Test use.
type NopNotifier struct{}

func (NopNotifier) Notify(string, Severity, time.Duration) {}
