// Package server exposes the desk over HTTP for the dashboard front end.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rustyeddy/tradedesk/broker"
	"github.com/rustyeddy/tradedesk/desk"
	"github.com/rustyeddy/tradedesk/journal"
	"github.com/rustyeddy/tradedesk/notify"
	"github.com/rustyeddy/tradedesk/vault"
	"github.com/sirupsen/logrus"
)

// Desk is the part of desk.Desk the HTTP layer needs.
type Desk interface {
	SetCredentials(ctx context.Context, key, secret string) error
	PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.Order, error)
	Credentials() vault.Masked
	Orders() []broker.Order
	Logs() []journal.Entry
	ExportLogs(w io.Writer) error
}

// Events is a source of notifications for websocket clients.
type Events interface {
	Subscribe() (<-chan notify.Notification, func())
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

type Server struct {
	desk     Desk
	events   Events
	logger   logrus.FieldLogger
	upgrader websocket.Upgrader
	now      func() time.Time

	server *http.Server
}

func New(d Desk, events Events, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		desk:   d,
		events: events,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		now: time.Now,
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Name() string {
	return "http"
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/credentials", s.getCredentials).Methods(http.MethodGet)
	api.HandleFunc("/credentials", s.postCredentials).Methods(http.MethodPost)
	api.HandleFunc("/orders", s.getOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders", s.postOrder).Methods(http.MethodPost)
	api.HandleFunc("/logs", s.getLogs).Methods(http.MethodGet)
	api.HandleFunc("/logs/export", s.exportLogs).Methods(http.MethodGet)
	if s.events != nil {
		api.HandleFunc("/events", s.streamEvents).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}).Methods(http.MethodGet)

	r.Use(s.logRequests)
	return r
}

// Serve accepts connections on l until Shutdown. It returns nil once the
// server has been shut down, including when Shutdown ran first.
func (s *Server) Serve(l net.Listener) error {
	s.logger.WithField("addr", l.Addr().String()).Info("http server listening")
	err := s.server.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("http request")
	})
}

func (s *Server) getCredentials(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.desk.Credentials())
}

func (s *Server) postCredentials(w http.ResponseWriter, r *http.Request) {
	var form credentialsForm
	if err := decode(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if errs := form.validate(); len(errs) > 0 {
		writeError(w, http.StatusUnprocessableEntity, "invalid credentials", errs)
		return
	}

	if err := s.desk.SetCredentials(r.Context(), form.APIKey, form.APISecret); err != nil {
		writeDeskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.desk.Credentials())
}

func (s *Server) getOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.desk.Orders())
}

func (s *Server) postOrder(w http.ResponseWriter, r *http.Request) {
	var form orderForm
	if err := decode(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	req, errs := form.request()
	if len(errs) > 0 {
		writeError(w, http.StatusUnprocessableEntity, "invalid order", errs)
		return
	}

	o, err := s.desk.PlaceOrder(r.Context(), req)
	if err != nil {
		writeDeskError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, o)
}

func (s *Server) getLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.desk.Logs())
}

func (s *Server) exportLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", journal.ExportFilename(s.now())))
	if err := s.desk.ExportLogs(w); err != nil {
		s.logger.WithError(err).Warn("export logs")
	}
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade")
		return
	}
	defer conn.Close()

	events, cancel := s.events.Subscribe()
	defer cancel()

	// Reads only serve to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case n, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(n); err != nil {
				s.logger.WithError(err).Debug("websocket write")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeDeskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, desk.ErrNotConnected):
		writeError(w, http.StatusConflict, "Please connect to the API before placing an order.", nil)
	case errors.Is(err, desk.ErrTooManyInFlight):
		writeError(w, http.StatusTooManyRequests, err.Error(), nil)
	case errors.Is(err, broker.ErrInvalidOrder), errors.Is(err, vault.ErrEmptyCredentials):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, desk.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, fields fieldErrors) {
	writeJSON(w, status, errorBody{Error: msg, Fields: fields})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}
