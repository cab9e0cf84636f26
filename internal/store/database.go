package store

import (
	"fmt"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"

	"github.com/merkle-airdrop/airdrop/internal/logging"
)

const (
	// LedgerCacheMB is the LevelDB block cache size in MB. Claims touch one
	// record each, so a small cache is enough.
	LedgerCacheMB = 16

	// LedgerHandles is the maximum number of open file handles for LevelDB.
	LedgerHandles = 16
)

// DatabaseStore keeps records in a go-ethereum key/value database: LevelDB
// on disk, or an in-memory database when no path is given.
type DatabaseStore struct {
	db     ethdb.Database
	mu     sync.RWMutex
	closed bool
}

var _ Store = (*DatabaseStore)(nil)

// NewDatabaseStore opens a LevelDB database at path, or an in-memory
// database if path is empty. Unlike a cache, a ledger must not silently lose
// its contents, so a path that cannot be opened is an error.
func NewDatabaseStore(path string, logger *logging.Logger) (*DatabaseStore, error) {
	if path == "" {
		logger.Info("using in-memory ledger storage")
		return &DatabaseStore{db: rawdb.NewMemoryDatabase()}, nil
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("store: create directory %s: %w", path, err)
	}
	ldb, err := leveldb.New(path, LedgerCacheMB, LedgerHandles, "airdrop/ledger/", false)
	if err != nil {
		return nil, fmt.Errorf("store: open leveldb at %s: %w", path, err)
	}
	logger.Info("opened persistent ledger storage", "engine", EngineLevelDB, "path", path)

	return &DatabaseStore{db: rawdb.NewDatabase(ldb)}, nil
}

// Get retrieves a copy of the value stored under key
func (s *DatabaseStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	ok, err := s.db.Has(key)
	if err != nil {
		return nil, fmt.Errorf("store: has: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	data, err := s.db.Get(key)
	if err != nil {
		return nil, fmt.Errorf("store: get: %w", err)
	}

	result := make([]byte, len(data))
	copy(result, data)
	return result, nil
}

// Has checks if a value exists for key
func (s *DatabaseStore) Has(key []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, ErrClosed
	}
	return s.db.Has(key)
}

// Apply writes all values in a single batch
func (s *DatabaseStore) Apply(writes []Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if len(writes) == 0 {
		return nil
	}

	batch := s.db.NewBatch()
	for _, w := range writes {
		if err := batch.Put(w.Key, w.Value); err != nil {
			return fmt.Errorf("store: batch put: %w", err)
		}
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("store: batch write: %w", err)
	}
	return nil
}

// Close gracefully closes the underlying database
func (s *DatabaseStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
