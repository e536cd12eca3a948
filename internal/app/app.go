// Package app assembles a desk and its collaborators from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rustyeddy/tradedesk/broker/sim"
	"github.com/rustyeddy/tradedesk/config"
	"github.com/rustyeddy/tradedesk/desk"
	"github.com/rustyeddy/tradedesk/internal/logging"
	"github.com/rustyeddy/tradedesk/journal"
	"github.com/rustyeddy/tradedesk/ledger"
	"github.com/rustyeddy/tradedesk/notify"
	"github.com/rustyeddy/tradedesk/vault"
	"github.com/sirupsen/logrus"
)

// App holds a running desk and everything it owns.
type App struct {
	Config *config.Config
	Logger *logrus.Logger
	Desk   *desk.Desk
	Hub    *notify.Hub

	vault   *vault.Vault
	journal *journal.Log
}

// New builds an App from cfg and restores any stored credentials. Logs go
// to logOut (stderr when nil).
func New(ctx context.Context, cfg *config.Config, logOut io.Writer) (*App, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, logOut)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, err
	}
	v := vault.New(store)

	sink, err := openSink(cfg.Journal)
	if err != nil {
		_ = v.Close()
		return nil, err
	}
	j := journal.New(journal.Options{
		MaxEntries: cfg.Journal.MaxEntries,
		Sink:       sink,
		Logger:     logger.WithField("component", "journal"),
	})

	lo, hi, err := cfg.Desk.Latency()
	if err != nil {
		_ = j.Close()
		_ = v.Close()
		return nil, err
	}
	venue, err := sim.NewVenue(lo, hi)
	if err != nil {
		_ = j.Close()
		_ = v.Close()
		return nil, err
	}

	hub := notify.NewHub(16)
	d, err := desk.New(desk.Config{
		Vault:   v,
		Journal: j,
		Ledger:  ledger.New(cfg.Ledger.MaxOrders),
		Venue:   venue,
		Notifier: notify.Multi{
			notify.LogSink{Logger: logger.WithField("component", "notify")},
			hub,
		},
		Logger:      logger.WithField("component", "desk"),
		MaxInFlight: cfg.Desk.MaxInFlight,
	})
	if err != nil {
		hub.Close()
		_ = j.Close()
		_ = v.Close()
		return nil, err
	}

	d.Restore(ctx)

	logger.WithFields(logrus.Fields{
		"storage":      cfg.Storage.Type,
		"journal_sink": cfg.Journal.Sink,
		"min_latency":  venue.MinLatency,
		"max_latency":  venue.MaxLatency,
	}).Info("desk ready")

	return &App{
		Config:  cfg,
		Logger:  logger,
		Desk:    d,
		Hub:     hub,
		vault:   v,
		journal: j,
	}, nil
}

// Close stops pending fulfillments and releases storage.
func (a *App) Close() error {
	err := a.Desk.Close()
	a.Hub.Close()
	return errors.Join(err, a.journal.Close(), a.vault.Close())
}

func openStorage(c config.StorageConfig) (vault.Storage, error) {
	switch c.Type {
	case "memory":
		return vault.NewMemoryStorage(), nil
	case "sqlite":
		s, err := vault.NewSQLiteStorage(c.Path)
		if err != nil {
			return nil, fmt.Errorf("open credential storage: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", c.Type)
	}
}

func openSink(c config.JournalConfig) (journal.Sink, error) {
	switch c.Sink {
	case "", "none":
		return nil, nil
	case "sqlite":
		s, err := journal.NewSQLite(c.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		return s, nil
	case "csv":
		s, err := journal.NewCSV(c.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown journal sink %q", c.Sink)
	}
}
