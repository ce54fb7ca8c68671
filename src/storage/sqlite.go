package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"device-push/src/logger"
	"device-push/src/models"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------
// Async SQLite Session Journal
//
// Lifecycle events (connect, supersede, disconnect, subscribe, unsubscribe)
// are appended through a buffered queue drained by one writer goroutine, so
// the hot connection paths never wait on disk. The journal is best-effort:
// a full queue drops the event. Pushed payloads are never stored here.
// -----------------------------------------------------------------------------

type journalItem struct {
	event models.MSessionEvent
	flush chan struct{}
}

type AsyncSQLiteDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger

	queue    chan journalItem
	wg       sync.WaitGroup
	flushers sync.WaitGroup
	mu       sync.Mutex
	closed   bool
	dropped  int64
}

// -----------------------------------------------------------------------------

func NewAsyncSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*AsyncSQLiteDB, error) {
	return &AsyncSQLiteDB{
		Config: cfg,
		Logger: log,
		queue:  make(chan journalItem, cfg.Storage.JournalQueueSize),
	}, nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Initialize() error {
	dsn := d.Config.Storage.DBPath

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		return err
	}
	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	// SQLite types: INTEGER for int64, TEXT for string
	query := `
		CREATE TABLE IF NOT EXISTS session_events (
			id TEXT PRIMARY KEY,
			user_id INTEGER,
			session_id TEXT,
			event TEXT,
			detail TEXT,
			created_at INTEGER
		);
	`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create session_events: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_session_events_created_at ON session_events(created_at);"); err != nil {
		return fmt.Errorf("failed to index session_events: %w", err)
	}

	d.wg.Add(1)
	go d.writerLoop()

	d.Logger.Info("AsyncSQLiteDB initialized (path: %s)", dsn)
	return nil
}

// -----------------------------------------------------------------------------

// RecordEvent enqueues one event without blocking. A saturated queue drops
// the event; the journal trades completeness for never stalling delivery.
func (d *AsyncSQLiteDB) RecordEvent(event models.MSessionEvent) error {
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
func (d *AsyncSQLiteDB) Flush() {
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

func (d *AsyncSQLiteDB) RecentEvents(limit int) ([]models.MSessionEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.Query(`
		SELECT id, user_id, session_id, event, detail, created_at
		FROM session_events ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) CleanupOldEvents(before time.Time) error {
	_, err := d.DB.Exec("DELETE FROM session_events WHERE created_at < ?", before.UnixMilli())
	return err
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Close() error {
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

func (d *AsyncSQLiteDB) writerLoop() {
	defer d.wg.Done()

	for item := range d.queue {
		if item.flush != nil {
			close(item.flush)
			continue
		}
		ev := item.event
		_, err := d.DB.Exec(`
			INSERT OR REPLACE INTO session_events (id, user_id, session_id, event, detail, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			ev.ID, ev.UserID, ev.SessionID, ev.Event, ev.Detail, ev.CreatedAt.UnixMilli())
		if err != nil {
			d.Logger.Warning("Failed to write session event %s: %v", ev.Event, err)
		}
	}
}

// -----------------------------------------------------------------------------

func scanEvents(rows *sql.Rows) ([]models.MSessionEvent, error) {
	var events []models.MSessionEvent
	for rows.Next() {
		var ev models.MSessionEvent
		var createdAt int64
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.SessionID, &ev.Event, &ev.Detail, &createdAt); err != nil {
			return nil, err
		}
		ev.CreatedAt = time.UnixMilli(createdAt).UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}
