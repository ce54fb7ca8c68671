package interfaces

import (
	"time"

	"device-push/src/models"
)

// -----------------------------------------------------------------------------
// IDatabase defines the contract for the session journal storage.
// -----------------------------------------------------------------------------

type IDatabase interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// RecordEvent appends one session event. Implementations must not block
	// the caller; the journal is best-effort and may drop under pressure.
	RecordEvent(event models.MSessionEvent) error

	// -----------------------------------------------------------------------------

	// RecentEvents returns up to limit events, newest first.
	RecentEvents(limit int) ([]models.MSessionEvent, error)

	// -----------------------------------------------------------------------------

	// CleanupOldEvents removes events older than the given cutoff.
	CleanupOldEvents(before time.Time) error

	// -----------------------------------------------------------------------------

	// Close flushes pending writes and closes the connection.
	Close() error
}
