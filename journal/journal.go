// Package journal keeps a SQLite-backed audit log of tool dispatches.
//
// It uses modernc.org/sqlite, a pure-Go driver, so binaries stay CGO-free.
// Wire it into a registry through AfterDispatch:
//
//	j, err := journal.Open("dispatchy.db")
//	reg := dispatchy.NewRegistry(dispatchy.WithOnAfterDispatch(j.AfterDispatch(logger)))
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/skosovsky/dispatchy"
)

// Entry is one recorded dispatch.
type Entry struct {
	ID        string
	CallID    string
	Tool      string
	Args      string
	Output    string
	Error     string
	Duration  time.Duration
	CreatedAt time.Time
}

// Journal records dispatch outcomes in a dispatch_log table.
type Journal struct {
	db *sql.DB
}

// timeLayout is RFC3339 with a fixed-width fraction. RFC3339Nano trims
// trailing zeros, which breaks lexicographic ordering of the TEXT column.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Open opens (or creates) the journal database at path and ensures its schema.
// WAL mode allows concurrent reads during writes; the busy timeout absorbs
// write bursts. Use ":memory:" in tests; that pool is capped at one connection
// because each new connection would otherwise get its own private database.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal: path must not be empty")
	}

	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=temp_store(MEMORY)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open %q: %w", path, err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: ping %q: %w", path, err)
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: ensure schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS dispatch_log (
			id          TEXT    NOT NULL PRIMARY KEY,
			call_id     TEXT    NOT NULL DEFAULT '',
			tool        TEXT    NOT NULL,
			args        TEXT    NOT NULL,
			output      TEXT    NOT NULL DEFAULT '',
			error       TEXT    NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL,
			created_at  TEXT    NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_dispatch_log_created_at ON dispatch_log (created_at)`)
	return err
}

// Record inserts one dispatch outcome. Row ids are UUIDv7, so they sort by
// insertion time.
func (j *Journal) Record(ctx context.Context, call dispatchy.ToolCall, res dispatchy.ToolResult, elapsed time.Duration) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("journal: new id: %w", err)
	}
	var errText string
	if res.Error != nil {
		errText = res.Error.Error()
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO dispatch_log (id, call_id, tool, args, output, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(),
		call.ID,
		call.Type,
		string(call.Args),
		res.Output,
		errText,
		elapsed.Milliseconds(),
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	return nil
}

// AfterDispatch returns a hook for dispatchy.WithOnAfterDispatch that records
// every dispatch. The write detaches from the call's cancelation so timed-out
// dispatches are still journaled. Recording failures are logged and dropped;
// they never alter dispatch outcomes. A nil log falls back to slog.Default().
func (j *Journal) AfterDispatch(log *slog.Logger) func(context.Context, dispatchy.ToolCall, dispatchy.ToolResult, time.Duration) {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context, call dispatchy.ToolCall, res dispatchy.ToolResult, elapsed time.Duration) {
		ctx = context.WithoutCancel(ctx)
		if err := j.Record(ctx, call, res, elapsed); err != nil {
			log.WarnContext(ctx, "journal record failed",
				slog.String("tool", call.Type),
				slog.Any("error", err),
			)
		}
	}
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("journal: limit must be positive, got %d", limit)
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, call_id, tool, args, output, error, duration_ms, created_at
		FROM dispatch_log
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			durationMS int64
			createdAt  string
		)
		if err := rows.Scan(&e.ID, &e.CallID, &e.Tool, &e.Args, &e.Output, &e.Error, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("journal: parse created_at %q: %w", createdAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: rows: %w", err)
	}
	return entries, nil
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}
