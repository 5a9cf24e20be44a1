package storage

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file next to Path
//   - "sqlite": SQLite database file (build tag sqlite)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Failure kinds.
const (
	KindUnauthorized = "unauthorized"
	KindDelivery     = "delivery"
	KindTransport    = "transport"
	KindFormat       = "format"
	KindFlush        = "flush"
	KindDropped      = "dropped"
)

// FailureEntry is one failed delivery. Webhook is always redacted.
type FailureEntry struct {
	At         time.Time `json:"at"`
	BatchID    string    `json:"batch_id,omitempty"`
	Kind       string    `json:"kind"`
	Webhook    string    `json:"webhook,omitempty"`
	StatusCode int       `json:"status,omitempty"`
	Body       string    `json:"body,omitempty"`
	Error      string    `json:"err,omitempty"`
	Size       int       `json:"size,omitempty"`
}

// Store is the persistence API used by the app.
type Store interface {
	AppendFailure(ctx context.Context, e FailureEntry) error
	// RecentFailures returns up to limit entries, newest first.
	RecentFailures(ctx context.Context, limit int) ([]FailureEntry, error)
	Close() error
}

const maxBodyLen = 2048

func (e FailureEntry) normalized() FailureEntry {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if len(e.Body) > maxBodyLen {
		e.Body = e.Body[:maxBodyLen-3] + "..."
	}
	return e
}
