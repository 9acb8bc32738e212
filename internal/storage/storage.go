// Package storage is the wallet's persistent local storage: a LevelDB store with a
// handful of fixed keys holding JSON documents. Secrets are only ever stored sealed.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AlexZinkM/oasis-wallet/internal/model"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
)

// Fixed storage keys
const (
	KeyPrimaryWallet  = "wallet/primary"
	KeyGasWallet      = "wallet/gas"
	KeyConnectedSites = "dapp/sites"
	KeySettings       = "settings"
)

// ErrNotFound is returned when a key holds no value
var ErrNotFound = errors.New("not found")

// Store wraps a LevelDB handle
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if needed) the store at path
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenMemory opens a store that lives only as long as the process
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory storage: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// GetJSON decodes the value at key into v
func (s *Store) GetJSON(key string, v any) error {
	data, err := s.db.Get([]byte(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

// PutJSON encodes v and stores it at key with a synced write
func (s *Store) PutJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := s.db.Put([]byte(key), data, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Delete removes key; deleting a missing key is not an error
func (s *Store) Delete(key string) error {
	if err := s.db.Delete([]byte(key), &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Has reports whether key holds a value
func (s *Store) Has(key string) (bool, error) {
	ok, err := s.db.Has([]byte(key), nil)
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", key, err)
	}
	return ok, nil
}

// LoadBlob returns the sealed wallet stored at key, or model.ErrWalletNotFound
func (s *Store) LoadBlob(key string) (*model.EncryptedBlob, error) {
	var blob model.EncryptedBlob
	if err := s.GetJSON(key, &blob); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, model.ErrWalletNotFound
		}
		return nil, err
	}
	return &blob, nil
}

// SaveBlob stores a sealed wallet at key
func (s *Store) SaveBlob(key string, blob *model.EncryptedBlob) error {
	return s.PutJSON(key, blob)
}

// LoadSites returns the connected sites collection, empty when never saved
func (s *Store) LoadSites() ([]model.ConnectedSite, error) {
	var sites []model.ConnectedSite
	if err := s.GetJSON(KeyConnectedSites, &sites); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return sites, nil
}

// SaveSites replaces the connected sites collection
func (s *Store) SaveSites(sites []model.ConnectedSite) error {
	if sites == nil {
		sites = []model.ConnectedSite{}
	}
	return s.PutJSON(KeyConnectedSites, sites)
}

// LoadSettings returns persisted settings, or def when none were saved
func (s *Store) LoadSettings(def model.Settings) (model.Settings, error) {
	settings := def
	if err := s.GetJSON(KeySettings, &settings); err != nil {
		if errors.Is(err, ErrNotFound) {
			return def, nil
		}
		return def, err
	}
	return settings, nil
}

// SaveSettings persists settings
func (s *Store) SaveSettings(settings model.Settings) error {
	return s.PutJSON(KeySettings, settings)
}
