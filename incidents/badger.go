package incidents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/baronsmv/navi/risk"
)

const incidentPrefix = "incident:"

func incidentKey(id string) []byte {
	return []byte(incidentPrefix + id)
}

// BadgerOptions configures the local incident store.
type BadgerOptions struct {
	// DataDir is the directory for the database files. Ignored when InMemory is set.
	DataDir string
	// InMemory keeps everything in RAM; data is lost on Close.
	InMemory bool
	// SyncWrites fsyncs every write.
	SyncWrites bool
}

// BadgerStore keeps incidents in an embedded BadgerDB, one JSON record per key.
type BadgerStore struct {
	db *badger.DB
}

var (
	_ Source = (*BadgerStore)(nil)
	_ Writer = (*BadgerStore)(nil)
)

// OpenBadger opens or creates the store described by opts.
func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.
		WithLogger(nil).
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close releases the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Put inserts or replaces incidents in one transaction.
func (s *BadgerStore) Put(ctx context.Context, incidents ...risk.Incident) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, inc := range incidents {
			if inc.ID == "" {
				return fmt.Errorf("incident has empty id")
			}
			data, err := json.Marshal(inc)
			if err != nil {
				return fmt.Errorf("failed to encode incident %s: %w", inc.ID, err)
			}
			if err := txn.Set(incidentKey(inc.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns one incident.
func (s *BadgerStore) Get(ctx context.Context, id string) (risk.Incident, error) {
	var inc risk.Incident
	if err := ctx.Err(); err != nil {
		return inc, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(incidentKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &inc)
		})
	})
	return inc, err
}

// Delete removes an incident. Deleting an unknown id returns ErrNotFound.
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(incidentKey(id)); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		return txn.Delete(incidentKey(id))
	})
}

// List returns every stored incident in key order.
func (s *BadgerStore) List(ctx context.Context) ([]risk.Incident, error) {
	var out []risk.Incident
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(incidentPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(incidentPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var inc risk.Incident
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &inc)
			}); err != nil {
				return fmt.Errorf("failed to decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, inc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
