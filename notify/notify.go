// Package notify delivers transient, user-facing messages. Nothing here is
// persisted.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Severity string

const (
	Default     Severity = "default"
	Success     Severity = "success"
	Destructive Severity = "destructive"
)

type Notification struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	Time        time.Time `json:"time"`
}

// New stamps a notification with an id and the current time.
func New(title, description string, sev Severity) Notification {
	return Notification{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Severity:    sev,
		Time:        time.Now(),
	}
}

type Sink interface {
	Notify(Notification)
}

// Func adapts a plain function to Sink.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Discard drops every notification.
var Discard Sink = Func(func(Notification) {})

// LogSink writes notifications to the operational log.
type LogSink struct {
	Logger logrus.FieldLogger
}

func (s LogSink) Notify(n Notification) {
	entry := s.Logger.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"severity":        n.Severity,
		"description":     n.Description,
	})
	if n.Severity == Destructive {
		entry.Warn(n.Title)
		return
	}
	entry.Info(n.Title)
}

// Multi fans a notification out to several sinks in order.
type Multi []Sink

func (m Multi) Notify(n Notification) {
	for _, s := range m {
		if s != nil {
			s.Notify(n)
		}
	}
}

// Recorder keeps every notification; useful for tests and the CLI demo.
type Recorder struct {
	mu  sync.Mutex
	got []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.got...)
}
