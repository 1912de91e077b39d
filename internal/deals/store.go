package deals

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// SelectionStore persists a customer's in-progress pick set across requests
// and browser tabs. Toggle must be atomic with respect to the quota check:
// two tabs both seeing "3 of 4 used" must not both add.
type SelectionStore interface {
	// Toggle flips listingID in the customer's pending set. existing is the
	// customer's current open-deal membership, loaded by the caller; maxCars
	// is the ceiling. Returns whether the listing ended up selected.
	Toggle(ctx context.Context, customerID, listingID uuid.UUID, existing []uuid.UUID, maxCars int) (added bool, err error)
	// Pending returns the customer's current pick set.
	Pending(ctx context.Context, customerID uuid.UUID) ([]uuid.UUID, error)
	// Clear empties the pick set, e.g. after a successful submission.
	Clear(ctx context.Context, customerID uuid.UUID) error
}

// MemorySelectionStore keeps selections in-process, guarded by one mutex.
// Suitable for tests and single-node deployments without Redis.
type MemorySelectionStore struct {
	mu         sync.Mutex
	selections map[uuid.UUID]*Selection
}

func NewMemorySelectionStore() *MemorySelectionStore {
	return &MemorySelectionStore{selections: make(map[uuid.UUID]*Selection)}
}

func (m *MemorySelectionStore) Toggle(ctx context.Context, customerID, listingID uuid.UUID, existing []uuid.UUID, maxCars int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sel, ok := m.selections[customerID]
	if !ok {
		sel = NewSelection(existing, maxCars)
		m.selections[customerID] = sel
	} else {
		// Existing-deal membership may have changed since the selection was
		// first created (a submission elsewhere); rebuild around the fresh
		// snapshot while keeping the pending set.
		fresh := NewSelection(existing, maxCars)
		for _, id := range sel.Pending() {
			fresh.pending[id] = struct{}{}
		}
		sel = fresh
		m.selections[customerID] = sel
	}

	return sel.Toggle(listingID)
}

func (m *MemorySelectionStore) Pending(ctx context.Context, customerID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sel, ok := m.selections[customerID]; ok {
		return sel.Pending(), nil
	}
	return nil, nil
}

func (m *MemorySelectionStore) Clear(ctx context.Context, customerID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sel, ok := m.selections[customerID]; ok {
		sel.ClearPending()
	}
	return nil
}
