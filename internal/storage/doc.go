// Package storage provides the optional check journal.
//
// The journal is append-only: check outcomes and notification attempts are
// written for later inspection, never read back. Throttle state deliberately
// starts empty on every restart.
//
// Drivers: "file" (JSON lines), "sqlite" (modernc.org/sqlite), "postgres" (pgx).
package storage
