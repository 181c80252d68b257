package backend

import (
	"context"

	"tally/internal/records"
)

// Backend is the record store the upload pipeline writes to and the records
// listing reads from.
type Backend interface {
	records.Store
}

// Pinger is implemented by backends with a remote dependency to probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	Cleanup CleanupFunc
}

// Ping probes the backend when it supports it.
func (r *BackendResult) Ping(ctx context.Context) error {
	if p, ok := r.Backend.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close runs the cleanup function, if any.
func (r *BackendResult) Close() error {
	if r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	RedisBackend    BackendType = "redis"
	SheetsBackend   BackendType = "sheets"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend, RedisBackend, SheetsBackend:
		return true
	default:
		return false
	}
}
