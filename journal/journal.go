// Package journal keeps the activity log: an append-only, newest-first record
// of what happened during a session.
package journal

import (
	"sync"
	"time"

	"github.com/rustyeddy/tradedesk/pkg/id"
	"github.com/sirupsen/logrus"
)

type Kind string

const (
	Info    Kind = "INFO"
	Success Kind = "SUCCESS"
	Error   Kind = "ERROR"
)

func (k Kind) Valid() bool {
	return k == Info || k == Success || k == Error
}

type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
}

// Sink receives a copy of every appended entry.
type Sink interface {
	Record(Entry) error
	Close() error
}

type Options struct {
	// MaxEntries caps the log; the oldest entries are dropped first.
	// Zero keeps everything.
	MaxEntries int
	Sink       Sink
	Logger     logrus.FieldLogger
	Now        func() time.Time
}

type Log struct {
	mu sync.RWMutex
	// entries is oldest-first; snapshots reverse it.
	entries []Entry
	max     int
	sink    Sink
	logger  logrus.FieldLogger
	now     func() time.Time
}

func New(opts Options) *Log {
	l := &Log{
		max:    opts.MaxEntries,
		sink:   opts.Sink,
		logger: opts.Logger,
		now:    opts.Now,
	}
	if l.logger == nil {
		l.logger = logrus.StandardLogger()
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Append records a new entry and returns it. It never fails: a sink error is
// reported on the operational logger and otherwise ignored.
func (l *Log) Append(kind Kind, message string) Entry {
	l.mu.Lock()
	e := Entry{
		ID:        id.New(),
		Timestamp: l.now(),
		Kind:      kind,
		Message:   message,
	}
	l.entries = append(l.entries, e)
	if l.max > 0 && len(l.entries) > l.max {
		drop := len(l.entries) - l.max
		l.entries = append(l.entries[:0:0], l.entries[drop:]...)
	}
	sink := l.sink
	l.mu.Unlock()

	l.logger.WithFields(logrus.Fields{
		"entry_id": e.ID,
		"kind":     e.Kind,
	}).Debug(e.Message)

	if sink != nil {
		if err := sink.Record(e); err != nil {
			l.logger.WithError(err).WithField("entry_id", e.ID).Warn("journal sink record failed")
		}
	}
	return e
}

// Snapshot returns the entries newest-first.
func (l *Log) Snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[len(l.entries)-1-i] = e
	}
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Close closes the sink, if any.
func (l *Log) Close() error {
	l.mu.Lock()
	sink := l.sink
	l.sink = nil
	l.mu.Unlock()

	if sink == nil {
		return nil
	}
	return sink.Close()
}
