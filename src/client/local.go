package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/username/fintrack/backend/src/models"
)

// Storage keys, mirroring the two persisted client-side slots: the serialized
// transaction array and the serialized session object.
const (
	keyTransactions = "transactions"
	keySession      = "session"
)

// LocalStore is the durable client-side key-value area. One JSON file per key,
// written atomically via rename so a crash mid-write never corrupts a slot.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating local store directory %s: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *LocalStore) get(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (s *LocalStore) set(key string, data []byte) error {
	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(key))
}

func (s *LocalStore) delete(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// LoadTransactions returns the persisted set, reporting whether the slot
// existed at all. An existing empty array still counts as present.
func (s *LocalStore) LoadTransactions() ([]models.Transaction, bool, error) {
	data, ok, err := s.get(keyTransactions)
	if err != nil || !ok {
		return nil, false, err
	}
	var txs []models.Transaction
	if err := json.Unmarshal(data, &txs); err != nil {
		return nil, false, fmt.Errorf("error decoding persisted transactions: %w", err)
	}
	return txs, true, nil
}

func (s *LocalStore) SaveTransactions(txs []models.Transaction) error {
	if txs == nil {
		txs = []models.Transaction{}
	}
	data, err := json.Marshal(txs)
	if err != nil {
		return err
	}
	return s.set(keyTransactions, data)
}

func (s *LocalStore) ClearTransactions() error {
	return s.delete(keyTransactions)
}

func (s *LocalStore) LoadSession() (*Identity, bool, error) {
	data, ok, err := s.get(keySession)
	if err != nil || !ok {
		return nil, false, err
	}
	var identity Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, false, fmt.Errorf("error decoding persisted session: %w", err)
	}
	return &identity, true, nil
}

func (s *LocalStore) SaveSession(identity *Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return err
	}
	return s.set(keySession, data)
}

func (s *LocalStore) ClearSession() error {
	return s.delete(keySession)
}
