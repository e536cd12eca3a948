package journal

import (
	"fmt"
	"time"
)

// ListEntries returns up to limit persisted entries newest-first. A limit of
// zero returns everything.
func (s *SQLiteSink) ListEntries(limit int) ([]Entry, error) {
	q := `
		SELECT id, timestamp, kind, message
		FROM activity
		ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			kind string
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &kind, &e.Message); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEntriesBetween returns entries with timestamp in [start, end), oldest-first.
func (s *SQLiteSink) ListEntriesBetween(start, end time.Time) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, kind, message
		FROM activity
		WHERE timestamp >= ? AND timestamp < ?
		ORDER BY id ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			kind string
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &kind, &e.Message); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		e.Kind = Kind(kind)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
