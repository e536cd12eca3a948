package journal

import (
	"encoding/csv"
	"os"
	"sync"
	"time"
)

type CSVSink struct {
	mu sync.Mutex
	w  *csv.Writer
	f  *os.File
}

var _ Sink = (*CSVSink)(nil)

// NewCSV opens path for appending and writes a header when the file is new.
func NewCSV(path string) (*CSVSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	w := csv.NewWriter(f)
	if st.Size() == 0 {
		if err := w.Write([]string{"id", "timestamp", "kind", "message"}); err != nil {
			_ = f.Close()
			return nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	return &CSVSink{w: w, f: f}, nil
}

func (s *CSVSink) Record(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.w.Write([]string{
		e.ID,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		string(e.Kind),
		e.Message,
	})
	if err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.w.Flush()
	if err := s.w.Error(); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}
