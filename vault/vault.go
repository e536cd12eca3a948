// Package vault holds the exchange API key/secret pair and persists it.
package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrEmptyCredentials = errors.New("api key and secret are required")

// PersistenceError reports a failed read or write of durable storage. The
// in-memory state is still usable when one is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("credential storage %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type Credentials struct {
	Key       string
	Secret    string
	Connected bool
}

// Masked is the only view of the credentials meant for display.
type Masked struct {
	Key       string `json:"apiKey"`
	Connected bool   `json:"connected"`
}

// MaskKey shows the first and last four characters of a key.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "...."
	}
	return key[:4] + "..." + key[len(key)-4:]
}

type Vault struct {
	mu    sync.RWMutex
	creds Credentials
	store Storage
}

func New(store Storage) *Vault {
	if store == nil {
		store = NewMemoryStorage()
	}
	return &Vault{store: store}
}

// SetCredentials stores the pair and marks the vault connected. The
// in-memory update happens even when persisting fails; in that case a
// *PersistenceError is returned.
func (v *Vault) SetCredentials(ctx context.Context, key, secret string) error {
	if key == "" || secret == "" {
		return ErrEmptyCredentials
	}

	v.mu.Lock()
	v.creds = Credentials{Key: key, Secret: secret, Connected: true}
	v.mu.Unlock()

	if err := v.store.Set(ctx, KeyAPIKey, key); err != nil {
		return &PersistenceError{Op: "write", Err: err}
	}
	if err := v.store.Set(ctx, KeyAPISecret, secret); err != nil {
		return &PersistenceError{Op: "write", Err: err}
	}
	return nil
}

// Restore loads a previously stored pair. It reports whether the vault is
// now connected; a missing or partial pair is not an error.
func (v *Vault) Restore(ctx context.Context) (bool, error) {
	key, okKey, err := v.store.Get(ctx, KeyAPIKey)
	if err != nil {
		return false, &PersistenceError{Op: "read", Err: err}
	}
	secret, okSecret, err := v.store.Get(ctx, KeyAPISecret)
	if err != nil {
		return false, &PersistenceError{Op: "read", Err: err}
	}
	if !okKey || !okSecret || key == "" || secret == "" {
		return false, nil
	}

	v.mu.Lock()
	v.creds = Credentials{Key: key, Secret: secret, Connected: true}
	v.mu.Unlock()
	return true, nil
}

func (v *Vault) Credentials() Credentials {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.creds
}

func (v *Vault) Connected() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.creds.Connected
}

func (v *Vault) Masked() Masked {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return Masked{Key: MaskKey(v.creds.Key), Connected: v.creds.Connected}
}

func (v *Vault) Close() error {
	return v.store.Close()
}
