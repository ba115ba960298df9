package postgres

import (
	"database/sql"
)

// KVStore implements repository.Store on the kv table
type KVStore struct {
	db *sql.DB
}

// NewKVStore creates a new postgres-backed store
func NewKVStore(db *sql.DB) *KVStore {
	return &KVStore{db: db}
}

// Get returns the value stored under key, or nil if absent
func (s *KVStore) Get(key string) ([]byte, error) {
	var value []byte
	query := `SELECT value FROM kv WHERE key = $1`
	err := s.db.QueryRow(query, key).Scan(&value)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return value, nil
}

// Set writes value under key, replacing any previous value
func (s *KVStore) Set(key string, value []byte) error {
	query := `
		INSERT INTO kv (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	_, err := s.db.Exec(query, key, value)
	return err
}

// Remove deletes key; removing a missing key is not an error
func (s *KVStore) Remove(key string) error {
	query := `DELETE FROM kv WHERE key = $1`
	_, err := s.db.Exec(query, key)
	return err
}
