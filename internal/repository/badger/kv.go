// Package badger provides an embedded repository.Store backed by BadgerDB.
package badger

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// KVStore implements repository.Store on a BadgerDB directory
type KVStore struct {
	db *badger.DB
}

// Open opens (or creates) the database in dirPath
func Open(dirPath string) (*KVStore, error) {
	opts := badger.DefaultOptions(dirPath).
		WithLoggingLevel(badger.ERROR)

	return open(opts)
}

// OpenInMemory opens a store that lives only for the process lifetime
func OpenInMemory() (*KVStore, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLoggingLevel(badger.ERROR)

	return open(opts)
}

func open(opts badger.Options) (*KVStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &KVStore{db: db}, nil
}

// Close closes the database
func (s *KVStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get returns the value stored under key, or nil if absent
func (s *KVStore) Get(key string) ([]byte, error) {
	var value []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}

	return value, nil
}

// Set writes value under key, replacing any previous value
func (s *KVStore) Set(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Remove deletes key; removing a missing key is not an error
func (s *KVStore) Remove(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}
