package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSink mirrors the activity log into a SQLite table so it survives
// restarts and can be read back by the CLI.
type SQLiteSink struct {
	db *sql.DB
}

var _ Sink = (*SQLiteSink)(nil)

func NewSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Record(e Entry) error {
	_, err := s.db.Exec(`
		INSERT INTO activity
		(id, timestamp, kind, message)
		VALUES (?, ?, ?, ?)`,
		e.ID, e.Timestamp.UTC(), string(e.Kind), e.Message,
	)
	return err
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
