package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/merkle-airdrop/airdrop/internal/logging"
)

const boltFile = "ledger.db"

var bucketLedger = []byte("ledger")

// BoltStore keeps records in a single bbolt bucket.
type BoltStore struct {
	db *bbolt.DB
}

var _ Store = (*BoltStore)(nil)

// OpenBoltStore opens or creates ledger.db inside dir.
func OpenBoltStore(dir string, logger *logging.Logger) (*BoltStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("store: %s engine requires a directory", EngineBolt)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}

	path := filepath.Join(dir, boltFile)
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLedger)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create bucket %q: %w", bucketLedger, err)
	}
	logger.Info("opened persistent ledger storage", "engine", EngineBolt, "path", path)

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(key []byte) ([]byte, error) {
	var result []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketLedger).Get(key)
		if data == nil {
			return ErrNotFound
		}
		// bbolt values are only valid for the life of the transaction
		result = make([]byte, len(data))
		copy(result, data)
		return nil
	})
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return nil, ErrClosed
	}
	return result, err
}

func (s *BoltStore) Has(key []byte) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketLedger).Get(key) != nil
		return nil
	})
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return false, ErrClosed
	}
	return found, err
}

// Apply writes all values inside one bbolt transaction.
func (s *BoltStore) Apply(writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketLedger)
		for _, w := range writes {
			if err := b.Put(w.Key, w.Value); err != nil {
				return fmt.Errorf("store: bolt put: %w", err)
			}
		}
		return nil
	})
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }
