// Package store persists ledger records and consumed permit markers.
// Every engine applies a set of writes atomically, which is what lets a
// claim update its ledger record and burn its permit in one step.
package store

import (
	"errors"
	"fmt"

	"github.com/merkle-airdrop/airdrop/internal/logging"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrClosed   = errors.New("store: closed")
)

// Write is a single key/value put applied as part of a batch
type Write struct {
	Key   []byte
	Value []byte
}

// Store is a key/value store with atomic batch application
type Store interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Apply(writes []Write) error
	Close() error
}

const (
	EngineLevelDB = "leveldb"
	EngineBolt    = "bolt"
	EngineMemory  = "memory"
)

// Open creates a store for the given engine. dir is ignored for memory.
func Open(engine, dir string, logger *logging.Logger) (Store, error) {
	switch engine {
	case EngineLevelDB:
		if dir == "" {
			return nil, fmt.Errorf("store: %s engine requires a directory", engine)
		}
		return NewDatabaseStore(dir, logger)
	case EngineMemory, "":
		return NewDatabaseStore("", logger)
	case EngineBolt:
		return OpenBoltStore(dir, logger)
	default:
		return nil, fmt.Errorf("store: unknown engine %q", engine)
	}
}
