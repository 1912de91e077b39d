package deals

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/uuid"
)

func rejectionReason(t *testing.T, err error) Reason {
	t.Helper()
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("want RejectionError, got %v", err)
	}
	return rej.Reason
}

func TestToggleAddRemove(t *testing.T) {
	sel := NewSelection(nil, DefaultMaxCars)
	id := uuid.New()

	added, err := sel.Toggle(id)
	if err != nil || !added {
		t.Fatalf("first toggle should add: added=%v err=%v", added, err)
	}
	added, err = sel.Toggle(id)
	if err != nil || added {
		t.Fatalf("second toggle should remove: added=%v err=%v", added, err)
	}
	if len(sel.Pending()) != 0 {
		t.Fatal("selection should be empty after add+remove")
	}
}

func TestQuotaCeilingWithExistingDeal(t *testing.T) {
	// Scenario: 3 vehicles already in an open deal. One more fits; the
	// second must be rejected (3+2 would exceed 4).
	existing := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	sel := NewSelection(existing, DefaultMaxCars)

	a, b := uuid.New(), uuid.New()
	if added, err := sel.Toggle(a); err != nil || !added {
		t.Fatalf("toggle(A) should succeed: %v", err)
	}
	_, err := sel.Toggle(b)
	if got := rejectionReason(t, err); got != ReasonQuotaExceeded {
		t.Fatalf("toggle(B) reason = %s, want %s", got, ReasonQuotaExceeded)
	}

	// Removal is always allowed, even at the ceiling.
	if _, err := sel.Toggle(a); err != nil {
		t.Fatalf("removal at the ceiling must succeed: %v", err)
	}
}

func TestAlreadyInDealIsDistinctFromQuota(t *testing.T) {
	inDeal := uuid.New()
	sel := NewSelection([]uuid.UUID{inDeal}, DefaultMaxCars)

	_, err := sel.Toggle(inDeal)
	if got := rejectionReason(t, err); got != ReasonAlreadyInDeal {
		t.Fatalf("reason = %s, want %s", got, ReasonAlreadyInDeal)
	}
	if sel.CanAdd(inDeal) {
		t.Fatal("canAdd must be false for a listing already in the deal")
	}
}

func TestRejectionCarriesCounts(t *testing.T) {
	existing := []uuid.UUID{uuid.New(), uuid.New()}
	sel := NewSelection(existing, DefaultMaxCars)
	sel.Toggle(uuid.New())
	sel.Toggle(uuid.New())

	_, err := sel.Toggle(uuid.New())
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("want RejectionError, got %v", err)
	}
	if rej.Existing != 2 || rej.Pending != 2 || rej.MaxCars != DefaultMaxCars {
		t.Fatalf("counts = %+v, want existing=2 pending=2 max=%d", rej, DefaultMaxCars)
	}
}

func TestQuotaInvariantUnderRandomToggles(t *testing.T) {
	// For any toggle sequence, existing + pending never exceeds the max.
	rng := rand.New(rand.NewSource(1))
	existing := []uuid.UUID{uuid.New()}
	sel := NewSelection(existing, DefaultMaxCars)

	pool := make([]uuid.UUID, 10)
	for i := range pool {
		pool[i] = uuid.New()
	}

	for i := 0; i < 500; i++ {
		sel.Toggle(pool[rng.Intn(len(pool))]) // rejections are expected
		if total := sel.ExistingCount() + len(sel.Pending()); total > DefaultMaxCars {
			t.Fatalf("invariant broken at step %d: %d > %d", i, total, DefaultMaxCars)
		}
	}
}

func TestConfigurableCeiling(t *testing.T) {
	sel := NewSelection(nil, 2)
	sel.Toggle(uuid.New())
	sel.Toggle(uuid.New())
	if _, err := sel.Toggle(uuid.New()); err == nil {
		t.Fatal("ceiling of 2 should reject the third add")
	}
	if sel.Remaining() != 0 {
		t.Fatalf("remaining = %d, want 0", sel.Remaining())
	}
}
