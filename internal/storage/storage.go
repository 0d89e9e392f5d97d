package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	// ErrCorruptStore means durable state exists but cannot be decoded.
	ErrCorruptStore = errors.New("corrupt store")
	// ErrPersistenceWrite wraps any failure to write durable state.
	ErrPersistenceWrite = errors.New("persistence write failed")
)

// Gateway mirrors the full set of targets to durable storage.
type Gateway interface {
	// Load returns the persisted targets in order. A missing store is
	// not an error and yields no targets.
	Load(ctx context.Context) ([]Target, error)
	// Save replaces the persisted state with targets.
	Save(ctx context.Context, targets []Target) error
	Close() error
}

const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"

	jsonFileName   = "targets.json"
	sqliteFileName = "upquack.db"
)

// Open returns the gateway for driver rooted at dataDir, creating the
// directory if it does not exist yet.
func Open(driver, dataDir string) (Gateway, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	switch driver {
	case "", DriverJSON:
		return NewJSONFile(filepath.Join(dataDir, jsonFileName)), nil
	case DriverSQLite:
		return NewSQLiteStorage(filepath.Join(dataDir, sqliteFileName))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// validate rejects decoded state that could not have been written by Save.
func validate(targets []Target) error {
	ids := make(map[string]struct{}, len(targets))
	urls := make(map[string]struct{}, len(targets))

	for i := range targets {
		t := &targets[i]
		if t.ID == "" {
			return fmt.Errorf("target[%d]: missing id", i)
		}
		if t.URL == "" {
			return fmt.Errorf("target[%d]: missing url", i)
		}
		if !t.Status.Valid() {
			return fmt.Errorf("target[%d]: invalid status %q", i, t.Status)
		}
		if _, dup := ids[t.ID]; dup {
			return fmt.Errorf("target[%d]: duplicate id %s", i, t.ID)
		}
		if _, dup := urls[t.URL]; dup {
			return fmt.Errorf("target[%d]: duplicate url %s", i, t.URL)
		}
		ids[t.ID] = struct{}{}
		urls[t.URL] = struct{}{}

		for j := 0; j < t.History.Len(); j++ {
			rec := t.History.At(j)
			if !rec.Status.Valid() {
				return fmt.Errorf("target[%d]: history[%d]: invalid status", i, j)
			}
			if j > 0 && rec.CheckedAt.Before(t.History.At(j-1).CheckedAt) {
				return fmt.Errorf("target[%d]: history[%d]: timestamp before the previous record", i, j)
			}
		}
	}
	return nil
}
