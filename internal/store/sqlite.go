package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"keysense/internal/activity"
)

// Store represents the SQLite activity store.
type Store struct {
	db *sql.DB
}

var _ activity.Store = (*Store)(nil)

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, err
	}

	// Activity timelines are personal data; keep the file owner-only.
	if err := os.Chmod(path, 0600); err != nil && !os.IsNotExist(err) {
		db.Close()
		return nil, fmt.Errorf("restrict database permissions: %w", err)
	}

	return &Store{db: db}, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveSpan implements activity.Store.
func (s *Store) SaveSpan(ctx context.Context, span activity.Span) error {
	_, err := s.InsertSpan(ctx, &Span{
		StartNs:     span.Start.UnixNano(),
		EndNs:       span.End.UnixNano(),
		KeyEvents:   span.KeyEvents,
		MouseEvents: span.MouseEvents,
		Chars:       span.Chars,
	})
	return err
}

// InsertSpan inserts a span and returns its ID.
func (s *Store) InsertSpan(ctx context.Context, sp *Span) (int64, error) {
	if sp.EndNs < sp.StartNs {
		return 0, fmt.Errorf("insert span: end %d before start %d", sp.EndNs, sp.StartNs)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_spans (start_ns, end_ns, key_events, mouse_events, chars)
		VALUES (?, ?, ?, ?, ?)`,
		sp.StartNs, sp.EndNs, sp.KeyEvents, sp.MouseEvents, sp.Chars,
	)
	if err != nil {
		return 0, fmt.Errorf("insert span: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}

	return id, nil
}

// GetSpanRange retrieves spans starting within [from, to), oldest first.
func (s *Store) GetSpanRange(ctx context.Context, from, to time.Time) ([]Span, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, start_ns, end_ns, key_events, mouse_events, chars
		FROM activity_spans
		WHERE start_ns >= ? AND start_ns < ?
		ORDER BY start_ns ASC`, from.UnixNano(), to.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("query spans by range: %w", err)
	}
	defer rows.Close()

	return scanSpans(rows)
}

// GetLastSpan returns the most recent span, or nil when there is none.
func (s *Store) GetLastSpan(ctx context.Context) (*Span, error) {
	var sp Span
	err := s.db.QueryRowContext(ctx, `
		SELECT id, start_ns, end_ns, key_events, mouse_events, chars
		FROM activity_spans
		ORDER BY start_ns DESC
		LIMIT 1`,
	).Scan(&sp.ID, &sp.StartNs, &sp.EndNs, &sp.KeyEvents, &sp.MouseEvents, &sp.Chars)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get last span: %w", err)
	}
	return &sp, nil
}

// Summarize aggregates the spans starting within [from, to).
func (s *Store) Summarize(ctx context.Context, from, to time.Time) (*Summary, error) {
	var (
		sum                       Summary
		active                    int64
		first, last               sql.NullInt64
		keys, mouse, chars, spans int64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(end_ns - start_ns), 0),
		       COALESCE(SUM(key_events), 0),
		       COALESCE(SUM(mouse_events), 0),
		       COALESCE(SUM(chars), 0),
		       MIN(start_ns),
		       MAX(end_ns)
		FROM activity_spans
		WHERE start_ns >= ? AND start_ns < ?`, from.UnixNano(), to.UnixNano(),
	).Scan(&spans, &active, &keys, &mouse, &chars, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("summarize spans: %w", err)
	}

	sum.Spans = int(spans)
	sum.Active = time.Duration(active)
	sum.KeyEvents = uint64(keys)
	sum.MouseEvents = uint64(mouse)
	sum.Chars = uint64(chars)
	if first.Valid {
		t := time.Unix(0, first.Int64)
		sum.First = &t
	}
	if last.Valid {
		t := time.Unix(0, last.Int64)
		sum.Last = &t
	}
	return &sum, nil
}

// DeleteBefore removes spans that ended before cutoff and returns how many
// were removed.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM activity_spans WHERE end_ns < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete spans: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}

// scanSpans is a helper to scan span rows into a slice.
func scanSpans(rows *sql.Rows) ([]Span, error) {
	var spans []Span

	for rows.Next() {
		var sp Span
		if err := rows.Scan(&sp.ID, &sp.StartNs, &sp.EndNs, &sp.KeyEvents, &sp.MouseEvents, &sp.Chars); err != nil {
			return nil, fmt.Errorf("scan span: %w", err)
		}
		spans = append(spans, sp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spans: %w", err)
	}

	return spans, nil
}
