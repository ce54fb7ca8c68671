package storage

import (
	"time"

	"device-push/src/models"
)

// -----------------------------------------------------------------------------

// NoopDB satisfies interfaces.IDatabase when the journal is disabled
// (storage.db_type: "none") and in tests that do not care about journaling.
type NoopDB struct{}

func NewNoopDB() *NoopDB { return &NoopDB{} }

func (d *NoopDB) Initialize() error                                { return nil }
func (d *NoopDB) RecordEvent(models.MSessionEvent) error           { return nil }
func (d *NoopDB) RecentEvents(int) ([]models.MSessionEvent, error) { return nil, nil }
func (d *NoopDB) CleanupOldEvents(time.Time) error                 { return nil }
func (d *NoopDB) Close() error                                     { return nil }
