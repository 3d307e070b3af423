// Package storage provides the durable key-value media the favorites
// store persists to.
package storage

import (
	"context"
	"fmt"

	"cinefav/config"
	"cinefav/database"
)

// KeyValue is a durable, process-independent key-value medium.
// Values are replaced whole; there are no partial writes.
type KeyValue interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set replaces the value for key.
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Open returns the medium selected by driver, rooted at path.
func Open(driver, path string) (KeyValue, error) {
	switch driver {
	case config.DriverSQLite:
		db, err := database.NewDB(path)
		if err != nil {
			return nil, err
		}
		if err := db.InitSchema(); err != nil {
			_ = db.Close()
			return nil, err
		}
		return NewSQLite(db), nil
	case config.DriverBadger:
		return OpenBadger(path)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

// SQLite stores values in the kv table of a SQLite database.
type SQLite struct {
	db *database.DB
}

// NewSQLite wraps an initialized database.
func NewSQLite(db *database.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.db.GetValue(ctx, key)
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	return s.db.PutValue(ctx, key, value)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
