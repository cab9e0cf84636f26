// Package registry answers the two questions the claim flow asks of the
// administrative airdrop registry: is this address allowed, and has the
// airdrop expired.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnknownAirdrop = errors.New("registry: unknown airdrop")
	ErrAirdropExists  = errors.New("registry: airdrop already registered")
)

// ReasonUnknownAirdrop is the error reason a registry server sends with a
// 404 for an airdrop it does not know.
const ReasonUnknownAirdrop = "unknown_airdrop"

// Registry is the read side of the administrative registry.
type Registry interface {
	IsAllowed(ctx context.Context, airdropID string, addr common.Address) (bool, error)
	IsExpired(ctx context.Context, airdropID string) (bool, error)
}

type entry struct {
	allowed    map[common.Address]struct{}
	expiration time.Time // zero means never
}

// Memory is an in-process registry. It is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	airdrops map[string]*entry
	now      func() time.Time
}

var _ Registry = (*Memory)(nil)

// NewMemory returns an empty registry. now defaults to time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{airdrops: make(map[string]*entry), now: now}
}

// AddAirdrop registers id. A zero expiration never expires.
func (m *Memory) AddAirdrop(id string, expiration time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.airdrops[id]; ok {
		return fmt.Errorf("%w: %s", ErrAirdropExists, id)
	}
	m.airdrops[id] = &entry{allowed: make(map[common.Address]struct{}), expiration: expiration}
	return nil
}

// Allow adds addrs to the allowlist of id.
func (m *Memory) Allow(id string, addrs ...common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.airdrops[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAirdrop, id)
	}
	for _, a := range addrs {
		e.allowed[a] = struct{}{}
	}
	return nil
}

func (m *Memory) Disallow(id string, addrs ...common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.airdrops[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAirdrop, id)
	}
	for _, a := range addrs {
		delete(e.allowed, a)
	}
	return nil
}

// Airdrops lists registered IDs in sorted order.
func (m *Memory) Airdrops() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.airdrops))
	for id := range m.airdrops {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Expiration returns the expiration of id; zero means never.
func (m *Memory) Expiration(id string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.airdrops[id]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrUnknownAirdrop, id)
	}
	return e.expiration, nil
}

func (m *Memory) IsAllowed(_ context.Context, id string, addr common.Address) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.airdrops[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownAirdrop, id)
	}
	_, allowed := e.allowed[addr]
	return allowed, nil
}

func (m *Memory) IsExpired(_ context.Context, id string) (bool, error) {
	exp, err := m.Expiration(id)
	if err != nil {
		return false, err
	}
	return !exp.IsZero() && m.now().After(exp), nil
}
