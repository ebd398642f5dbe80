package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the journal.
//
// Driver values:
//   - "file": JSON lines next to Path
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL reachable via DSN
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// CheckRecord is the outcome of checking one product in one cycle.
type CheckRecord struct {
	At        time.Time `json:"at"`
	Cycle     uint64    `json:"cycle"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	Fragments int       `json:"fragments"`
	Error     string    `json:"error,omitempty"`
	TookMS    int64     `json:"took_ms"`
}

// NotificationRecord is one delivery attempt.
type NotificationRecord struct {
	At       time.Time `json:"at"`
	Cycle    uint64    `json:"cycle"`
	Driver   string    `json:"driver"`
	Products []string  `json:"products"`
	OK       bool      `json:"ok"`
	Error    string    `json:"error,omitempty"`
}
