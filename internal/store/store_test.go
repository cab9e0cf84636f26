package store

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/merkle-airdrop/airdrop/internal/logging"
)

// engines opens a fresh store per engine; persistent engines share dir
// between opens so reopen tests can find their data.
func engines(t *testing.T) map[string]func(dir string) Store {
	t.Helper()
	open := func(engine string) func(dir string) Store {
		return func(dir string) Store {
			s, err := Open(engine, dir, logging.Nop())
			if err != nil {
				t.Fatalf("Failed to open %s store: %v", engine, err)
			}
			return s
		}
	}
	return map[string]func(dir string) Store{
		EngineLevelDB: open(EngineLevelDB),
		EngineBolt:    open(EngineBolt),
	}
}

// TestStore_InMemory verifies the in-memory fallback works
func TestStore_InMemory(t *testing.T) {
	s, err := Open(EngineMemory, "", logging.Nop())
	if err != nil {
		t.Fatalf("Failed to create in-memory store: %v", err)
	}
	defer s.Close()

	key := []byte("claim:round-1/alice")

	ok, err := s.Has(key)
	if err != nil {
		t.Fatalf("Has() failed: %v", err)
	}
	if ok {
		t.Error("Has() should return false before Apply()")
	}

	if _, err := s.Get(key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := s.Apply([]Write{{Key: key, Value: []byte{0x01, 0x02}}}); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !bytes.Equal(got, []byte{0x01, 0x02}) {
		t.Errorf("Value mismatch: got %x, want 0102", got)
	}
}

// TestStore_Persistent verifies data survives a close and reopen
func TestStore_Persistent(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "ledger")
			key := []byte("claim:round-1/bob")
			marker := []byte("permit:round-1/bob/1")

			s := open(dir)
			err := s.Apply([]Write{
				{Key: key, Value: []byte("record")},
				{Key: marker, Value: []byte{1}},
			})
			if err != nil {
				t.Fatalf("Apply() failed: %v", err)
			}
			if err := s.Close(); err != nil {
				t.Fatalf("Close() failed: %v", err)
			}

			s = open(dir)
			defer s.Close()

			got, err := s.Get(key)
			if err != nil {
				t.Fatalf("Get() after reopen failed: %v", err)
			}
			if string(got) != "record" {
				t.Errorf("Value mismatch after reopen: got %q", got)
			}

			ok, err := s.Has(marker)
			if err != nil {
				t.Fatalf("Has() after reopen failed: %v", err)
			}
			if !ok {
				t.Error("Marker should persist after reopening")
			}
		})
	}
}

// TestStore_GetReturnsCopy verifies callers cannot modify stored values
func TestStore_GetReturnsCopy(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t.TempDir())
			defer s.Close()

			key := []byte("k")
			if err := s.Apply([]Write{{Key: key, Value: []byte{1, 2, 3}}}); err != nil {
				t.Fatalf("Apply() failed: %v", err)
			}

			first, err := s.Get(key)
			if err != nil {
				t.Fatalf("Get() failed: %v", err)
			}
			first[0] = 0xFF

			second, err := s.Get(key)
			if err != nil {
				t.Fatalf("Get() failed: %v", err)
			}
			if second[0] != 1 {
				t.Errorf("Modifying a returned value changed the store: got %x", second)
			}
		})
	}
}

// TestStore_ClosedOperationsFail verifies every operation reports ErrClosed
func TestStore_ClosedOperationsFail(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t.TempDir())
			if err := s.Close(); err != nil {
				t.Fatalf("Close() failed: %v", err)
			}

			if _, err := s.Get([]byte("k")); !errors.Is(err, ErrClosed) {
				t.Errorf("Get() after Close(): expected ErrClosed, got %v", err)
			}
			if _, err := s.Has([]byte("k")); !errors.Is(err, ErrClosed) {
				t.Errorf("Has() after Close(): expected ErrClosed, got %v", err)
			}
			if err := s.Apply([]Write{{Key: []byte("k"), Value: []byte("v")}}); !errors.Is(err, ErrClosed) {
				t.Errorf("Apply() after Close(): expected ErrClosed, got %v", err)
			}
		})
	}
}

func TestStore_EmptyApplyIsNoop(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t.TempDir())
			defer s.Close()
			if err := s.Apply(nil); err != nil {
				t.Errorf("Apply(nil) failed: %v", err)
			}
		})
	}
}

// TestBoltStore_FailedApplyWritesNothing verifies a failed batch leaves no
// partial writes
func TestBoltStore_FailedApplyWritesNothing(t *testing.T) {
	s, err := OpenBoltStore(t.TempDir(), logging.Nop())
	if err != nil {
		t.Fatalf("Failed to open bolt store: %v", err)
	}
	defer s.Close()

	// bbolt rejects empty keys, which aborts the whole transaction
	err = s.Apply([]Write{
		{Key: []byte("claim:round-1/carol"), Value: []byte("record")},
		{Key: nil, Value: []byte("marker")},
	})
	if err == nil {
		t.Fatal("Expected Apply() with an empty key to fail")
	}

	ok, err := s.Has([]byte("claim:round-1/carol"))
	if err != nil {
		t.Fatalf("Has() failed: %v", err)
	}
	if ok {
		t.Error("A failed batch must not leave partial writes")
	}
}

func TestOpen_UnknownEngine(t *testing.T) {
	if _, err := Open("redis", t.TempDir(), logging.Nop()); err == nil {
		t.Error("Expected error for unknown engine")
	}
	if _, err := Open(EngineLevelDB, "", logging.Nop()); err == nil {
		t.Error("Expected error for leveldb without a directory")
	}
	if _, err := Open(EngineBolt, "", logging.Nop()); err == nil {
		t.Error("Expected error for bolt without a directory")
	}
}
