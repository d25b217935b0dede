// Package journal keeps a local history of dispense events and report
// deliveries in SQLite, so outcomes survive restarts and can be inspected
// when the backend was unreachable.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sweeney/dose-dispenser/internal/alert"
)

// Entry kinds.
const (
	KindEvent  = "event"
	KindReport = "report"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id       TEXT PRIMARY KEY,
	kind     TEXT NOT NULL,
	type     TEXT NOT NULL,
	dose_id  TEXT NOT NULL DEFAULT '',
	name     TEXT NOT NULL DEFAULT '',
	dose     TEXT NOT NULL DEFAULT '',
	time     TEXT NOT NULL DEFAULT '',
	slot     INTEGER NOT NULL DEFAULT 0,
	key      TEXT,
	outcome  TEXT,
	at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS entries_at ON entries (at);
`

const recordTimeout = 2 * time.Second

// Entry is one journal row.
type Entry struct {
	ID      string
	Kind    string
	Type    string
	DoseID  string
	Name    string
	Dose    string
	Time    string
	Slot    int
	Key     string
	Outcome string
	At      time.Time
}

// Journal is safe for concurrent use.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the journal database at path. ":memory:" gives a
// throwaway journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// One connection: SQLite has a single writer, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) insert(ctx context.Context, e Entry) error {
	var key, outcome sql.NullString
	if e.Key != "" {
		key = sql.NullString{String: e.Key, Valid: true}
	}
	if e.Outcome != "" {
		outcome = sql.NullString{String: e.Outcome, Valid: true}
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO entries (id, kind, type, dose_id, name, dose, time, slot, key, outcome, at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		e.Kind,
		e.Type,
		e.DoseID,
		e.Name,
		e.Dose,
		e.Time,
		e.Slot,
		key,
		outcome,
		e.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert %s entry: %w", e.Kind, err)
	}
	return nil
}

// RecordEvent stores a dispense event.
func (j *Journal) RecordEvent(ctx context.Context, ev alert.Event) error {
	return j.insert(ctx, Entry{
		Kind:   KindEvent,
		Type:   string(ev.Type),
		DoseID: ev.DoseID,
		Name:   ev.Name,
		Dose:   ev.Dose,
		Time:   ev.Time,
		Slot:   ev.Slot,
		At:     ev.At,
	})
}

// RecordReport stores the outcome of one report delivery. Failures to
// record are logged.
func (j *Journal) RecordReport(doseID string, taken bool, key string, outcome error) {
	typ := "skipped"
	if taken {
		typ = "taken"
	}
	result := "ok"
	if outcome != nil {
		result = outcome.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	err := j.insert(ctx, Entry{
		Kind:    KindReport,
		Type:    typ,
		DoseID:  doseID,
		Key:     key,
		Outcome: result,
		At:      j.now(),
	})
	if err != nil {
		log.Printf("journal: %v", err)
	}
}

// History returns up to limit entries, newest first. A non-positive limit
// returns everything.
func (j *Journal) History(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, kind, type, dose_id, name, dose, time, slot, key, outcome, at FROM entries ORDER BY at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			key     sql.NullString
			outcome sql.NullString
			at      string
		)
		if err := rows.Scan(&e.ID, &e.Kind, &e.Type, &e.DoseID, &e.Name, &e.Dose, &e.Time, &e.Slot, &key, &outcome, &at); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Key = key.String
		e.Outcome = outcome.String
		if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse entry time %q: %w", at, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
