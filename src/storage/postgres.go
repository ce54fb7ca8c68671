package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"device-push/src/logger"
	"device-push/src/models"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------
// Postgres Session Journal
//
// Same contract as AsyncSQLiteDB. The schema name is derived from the
// executable so several deployments can share one database instance.
// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger

	queue    chan journalItem
	wg       sync.WaitGroup
	flushers sync.WaitGroup
	mu       sync.Mutex
	closed   bool
	dropped  int64
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable name: %w", err)
	}
	name := filepath.Base(exe)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	return &PostgresDB{
		Config: cfg,
		Schema: name,
		Logger: log,
		queue:  make(chan journalItem, cfg.Storage.JournalQueueSize),
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		return err
	}
	d.DB = db

	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."session_events" (
			id TEXT PRIMARY KEY,
			user_id BIGINT,
			session_id TEXT,
			event TEXT,
			detail TEXT,
			created_at BIGINT
		);
	`, d.Schema)
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create session_events: %w", err)
	}

	d.wg.Add(1)
	go d.writerLoop()

	d.Logger.Info("PostgresDB initialized successfully (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) RecordEvent(event models.MSessionEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("journal is closed")
	}
	select {
	case d.queue <- journalItem{event: event}:
		d.mu.Unlock()
		return nil
	default:
		d.dropped++
		dropped := d.dropped
		d.mu.Unlock()
		if dropped%100 == 1 {
			d.Logger.Warning("Journal queue full, dropped %d events so far", dropped)
		}
		return nil
	}
}

// -----------------------------------------------------------------------------

// Flush blocks until everything queued before the call has been written. The
// sentinel enqueue can wait on a saturated queue, so it happens outside the
// mutex; RecordEvent callers are never stalled behind a flush.
func (d *PostgresDB) Flush() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.flushers.Add(1)
	d.mu.Unlock()

	done := make(chan struct{})
	d.queue <- journalItem{flush: done}
	d.flushers.Done()
	<-done
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) RecentEvents(limit int) ([]models.MSessionEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
		SELECT id, user_id, session_id, event, detail, created_at
		FROM "%s"."session_events" ORDER BY created_at DESC, id LIMIT $1`, d.Schema)
	rows, err := d.DB.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) CleanupOldEvents(before time.Time) error {
	query := fmt.Sprintf(`DELETE FROM "%s"."session_events" WHERE created_at < $1`, d.Schema)
	_, err := d.DB.Exec(query, before.UnixMilli())
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	// Flush sentinels already past the closed check may still be enqueueing;
	// the queue must not close under them.
	d.flushers.Wait()
	close(d.queue)
	d.wg.Wait()
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) writerLoop() {
	defer d.wg.Done()

	insert := fmt.Sprintf(`
		INSERT INTO "%s"."session_events" (id, user_id, session_id, event, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`, d.Schema)

	for item := range d.queue {
		if item.flush != nil {
			close(item.flush)
			continue
		}
		ev := item.event
		if _, err := d.DB.Exec(insert, ev.ID, ev.UserID, ev.SessionID, ev.Event, ev.Detail, ev.CreatedAt.UnixMilli()); err != nil {
			d.Logger.Warning("Failed to write session event %s: %v", ev.Event, err)
		}
	}
}
