package storage

import (
	"errors"
	"time"

	"github.com/ppiankov/codewarden/internal/models"
)

// ErrNotFound is returned by KV.Get for a key that was never written
var ErrNotFound = errors.New("key not found")

// Storage defines the interface for persisting scan reports
type Storage interface {
	// SaveReport stores a complete report
	SaveReport(report *models.Report) error

	// LoadReport loads a report from a specific timestamp
	LoadReport(timestamp time.Time) (*models.Report, error)

	// GetLatestRun retrieves the most recent report
	GetLatestRun() (*models.Report, error)

	// GetLastNRuns retrieves the last N reports
	GetLastNRuns(n int) ([]*models.Report, error)

	// ListRuns returns all available run timestamps
	ListRuns() ([]time.Time, error)
}

// KV is a durable key-value slot store. Values are opaque blobs.
type KV interface {
	// Get returns ErrNotFound when key has no value
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}
