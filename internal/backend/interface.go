package backend

import (
	"context"

	"personalos/internal/amqp"
	"personalos/internal/ports"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the snapshot history wiring for one process.
type BackendResult struct {
	// Store is where snapshots are persisted and read back from.
	Store ports.SnapshotStore

	// Publisher is where the business service sends new snapshots: the
	// broker when one is reachable, otherwise Store directly.
	Publisher ports.SnapshotPublisher

	// Broker is nil when AMQP is not configured or unreachable.
	Broker *amqp.Client

	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory specific; non-positive means the store default
	MemoryCapacity int

	// AMQP is optional for every backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// OnStored is called after each snapshot written without the broker.
	OnStored func()
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
