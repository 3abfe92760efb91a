package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/atmx/position-engine/internal/model"
)

// MemoryStore implements Store with in-memory slices. Used for testing
// and development. Not suitable for production (no persistence).
//
// FailReads and FailWrites inject ledger and persistence failures.
type MemoryStore struct {
	mu       sync.RWMutex
	buys     []model.BuyLot
	sells    []model.SellEvent
	snapshot *model.Snapshot

	FailReads  error
	FailWrites error
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) InsertBuyLot(_ context.Context, lot *model.BuyLot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return fmt.Errorf("%w: insert buy %s: %v", ErrPersistence, lot.ID, s.FailWrites)
	}
	s.buys = append(s.buys, *lot)
	return nil
}

func (s *MemoryStore) InsertSellEvent(_ context.Context, ev *model.SellEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return fmt.Errorf("%w: insert sell %s: %v", ErrPersistence, ev.ID, s.FailWrites)
	}
	s.sells = append(s.sells, *ev)
	return nil
}

func (s *MemoryStore) Buys(_ context.Context) ([]model.BuyLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailReads != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnreachable, s.FailReads)
	}
	out := make([]model.BuyLot, len(s.buys))
	copy(out, s.buys)
	return out, nil
}

func (s *MemoryStore) Sells(_ context.Context) ([]model.SellEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailReads != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnreachable, s.FailReads)
	}
	out := make([]model.SellEvent, len(s.sells))
	copy(out, s.sells)
	return out, nil
}

// ReplaceOpenPositions swaps the snapshot atomically under the lock.
func (s *MemoryStore) ReplaceOpenPositions(_ context.Context, snap *model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return fmt.Errorf("%w: replace open positions: %v", ErrPersistence, s.FailWrites)
	}
	s.snapshot = copySnapshot(snap)
	return nil
}

func (s *MemoryStore) LatestSnapshot(_ context.Context) (*model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snapshot == nil {
		return nil, ErrNoSnapshot
	}
	return copySnapshot(s.snapshot), nil
}

func (s *MemoryStore) Close() error { return nil }

// copySnapshot avoids sharing the positions slice with callers.
func copySnapshot(snap *model.Snapshot) *model.Snapshot {
	cp := *snap
	cp.Positions = make([]model.ValuedPosition, len(snap.Positions))
	copy(cp.Positions, snap.Positions)
	return &cp
}
