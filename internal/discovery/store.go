// Package discovery persists claimed heritage sites as a single JSON array
// and derives the Guardian Rank score from it.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ppiankov/virasat/internal/kv"
	"github.com/ppiankov/virasat/internal/logging"
	"github.com/ppiankov/virasat/internal/model"
)

// StorageKey is the key holding the discovery array
const StorageKey = "discoveries"

// ErrNotFound is returned by Get for an unknown ID
var ErrNotFound = errors.New("discovery not found")

// PersistenceError reports a failed read or write of the discovery blob
type PersistenceError struct {
	Op  string // load, decode, encode, save
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("discovery store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Store is the single owner of the discovery collection. Appends are
// serialized so concurrent claims in one process never lose a record.
type Store struct {
	kv     kv.Store
	logger *slog.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// NewStore wraps a kv backend
func NewStore(backend kv.Store, logger *slog.Logger) *Store {
	return &Store{
		kv:     backend,
		logger: logging.Module(logger, "discovery"),
		now:    time.Now,
	}
}

// LoadAll returns every stored record in insertion order. A first run yields
// an empty, non-nil collection.
func (s *Store) LoadAll(ctx context.Context) (model.DiscoveryCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Append adds rec at the end of the collection and returns the stored copy.
// A zero or non-increasing ID is replaced so IDs stay unique and ascending.
func (s *Store) Append(ctx context.Context, rec model.DiscoveryRecord) (model.DiscoveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx)
	if err != nil {
		return model.DiscoveryRecord{}, err
	}

	if rec.ID <= 0 {
		rec.ID = model.IDFromTime(s.now())
	}
	if last, ok := all.Last(); ok && rec.ID <= last.ID {
		s.logger.Debug("bumping discovery id", "requested", rec.ID, "last", last.ID)
		rec.ID = last.ID + 1
	}

	all = append(all, rec)
	data, err := json.Marshal(all)
	if err != nil {
		return model.DiscoveryRecord{}, &PersistenceError{Op: "encode", Err: err}
	}
	if err := s.kv.Set(ctx, StorageKey, data); err != nil {
		return model.DiscoveryRecord{}, &PersistenceError{Op: "save", Err: err}
	}

	s.logger.Info("discovery stored", "id", rec.ID, "name", rec.Name, "total", len(all))
	return rec, nil
}

// Score returns 500 points per stored record
func (s *Store) Score(ctx context.Context) (int, error) {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	return all.Score(), nil
}

// Get returns the record with the given ID
func (s *Store) Get(ctx context.Context, id int64) (model.DiscoveryRecord, error) {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return model.DiscoveryRecord{}, err
	}
	rec, ok := all.Find(id)
	if !ok {
		return model.DiscoveryRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *Store) load(ctx context.Context) (model.DiscoveryCollection, error) {
	data, found, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Err: err}
	}
	if !found || len(data) == 0 {
		return model.DiscoveryCollection{}, nil
	}

	var all model.DiscoveryCollection
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, &PersistenceError{Op: "decode", Err: err}
	}
	if all == nil {
		all = model.DiscoveryCollection{}
	}
	return all, nil
}
