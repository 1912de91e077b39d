package deals

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) *RedisSelectionStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisSelectionStore(client)
}

func TestRedisToggleRoundTrip(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()
	customer, listing := uuid.New(), uuid.New()

	added, err := store.Toggle(ctx, customer, listing, nil, DefaultMaxCars)
	if err != nil || !added {
		t.Fatalf("add failed: added=%v err=%v", added, err)
	}

	pending, err := store.Pending(ctx, customer)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0] != listing {
		t.Fatalf("pending = %v, want [%s]", pending, listing)
	}

	added, err = store.Toggle(ctx, customer, listing, nil, DefaultMaxCars)
	if err != nil || added {
		t.Fatalf("second toggle should remove: added=%v err=%v", added, err)
	}
}

func TestRedisToggleRejections(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()
	customer := uuid.New()
	inDeal := uuid.New()

	_, err := store.Toggle(ctx, customer, inDeal, []uuid.UUID{inDeal}, DefaultMaxCars)
	var rej *RejectionError
	if !errors.As(err, &rej) || rej.Reason != ReasonAlreadyInDeal {
		t.Fatalf("want AlreadyInDeal, got %v", err)
	}

	existing := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	if _, err := store.Toggle(ctx, customer, uuid.New(), existing, DefaultMaxCars); err != nil {
		t.Fatalf("fourth slot should fit: %v", err)
	}
	_, err = store.Toggle(ctx, customer, uuid.New(), existing, DefaultMaxCars)
	if !errors.As(err, &rej) || rej.Reason != ReasonQuotaExceeded {
		t.Fatalf("want QuotaExceeded, got %v", err)
	}
	if rej.Existing != 3 || rej.MaxCars != DefaultMaxCars {
		t.Fatalf("rejection counts = %+v", rej)
	}
}

func TestRedisToggleAtomicAcrossTabs(t *testing.T) {
	// Many concurrent toggles of distinct listings must never push the
	// pending set past the ceiling — the two-tabs race from the field.
	store := newRedisStore(t)
	ctx := context.Background()
	customer := uuid.New()
	existing := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	var wg sync.WaitGroup
	var mu sync.Mutex
	addedCount := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			added, err := store.Toggle(ctx, customer, uuid.New(), existing, DefaultMaxCars)
			if err == nil && added {
				mu.Lock()
				addedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if addedCount != 1 {
		t.Fatalf("exactly one of the racing adds may win, got %d", addedCount)
	}
	pending, err := store.Pending(ctx, customer)
	if err != nil {
		t.Fatal(err)
	}
	if len(existing)+len(pending) > DefaultMaxCars {
		t.Fatalf("invariant broken: %d existing + %d pending", len(existing), len(pending))
	}
}

func TestRedisClear(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()
	customer := uuid.New()

	store.Toggle(ctx, customer, uuid.New(), nil, DefaultMaxCars)
	if err := store.Clear(ctx, customer); err != nil {
		t.Fatal(err)
	}
	pending, err := store.Pending(ctx, customer)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending after clear = %v", pending)
	}
}
