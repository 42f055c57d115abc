// Package kv is the local key/value persistence used for the discovery blob.
package kv

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ppiankov/virasat/internal/model"
)

// Store is a durable string-keyed blob store
type Store interface {
	// Get returns the value for key; found is false when the key is absent
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set durably replaces the value for key
	Set(ctx context.Context, key string, value []byte) error

	Close() error
}

// SQLiteFile is the database file name used inside the storage path
const SQLiteFile = "virasat.db"

// Open creates the configured backend
func Open(cfg model.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "file":
		s, err := NewFileStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		path := cfg.Path
		if !strings.HasSuffix(path, ".db") {
			path = filepath.Join(path, SQLiteFile)
		}
		s, err := NewSQLStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}
