package deals

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// selectionTTL bounds how long an abandoned pick set lingers. Refreshed on
// every toggle, so an active shopper never loses their selection.
const selectionTTL = 7 * 24 * time.Hour

// toggleScript performs check-and-toggle server-side so concurrent tabs
// cannot both observe room and both add. Replies: "removed", "added",
// "already_in_deal", or "quota_exceeded", followed by the pending count.
//
// KEYS[1] pending set; ARGV[1] listing id, ARGV[2] maxCars,
// ARGV[3..] listing ids already in the customer's open deal.
var toggleScript = redis.NewScript(`
local key = KEYS[1]
local id = ARGV[1]
local max = tonumber(ARGV[2])
if redis.call('SISMEMBER', key, id) == 1 then
  redis.call('SREM', key, id)
  return {'removed', redis.call('SCARD', key)}
end
local existing = #ARGV - 2
for i = 3, #ARGV do
  if ARGV[i] == id then
    return {'already_in_deal', redis.call('SCARD', key)}
  end
end
local pending = redis.call('SCARD', key)
if existing + pending >= max then
  return {'quota_exceeded', pending}
end
redis.call('SADD', key, id)
return {'added', pending + 1}
`)

// RedisSelectionStore backs the quota guard with a per-customer Redis set,
// making the check-and-set atomic across server instances.
type RedisSelectionStore struct {
	client *redis.Client
}

func NewRedisSelectionStore(client *redis.Client) *RedisSelectionStore {
	return &RedisSelectionStore{client: client}
}

func selectionKey(customerID uuid.UUID) string {
	return "deal:selection:" + customerID.String()
}

func (r *RedisSelectionStore) Toggle(ctx context.Context, customerID, listingID uuid.UUID, existing []uuid.UUID, maxCars int) (bool, error) {
	if maxCars <= 0 {
		maxCars = DefaultMaxCars
	}
	key := selectionKey(customerID)

	argv := make([]interface{}, 0, len(existing)+2)
	argv = append(argv, listingID.String(), maxCars)
	for _, id := range existing {
		argv = append(argv, id.String())
	}

	raw, err := toggleScript.Run(ctx, r.client, []string{key}, argv...).Result()
	if err != nil {
		return false, fmt.Errorf("selection toggle: %w", err)
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 2 {
		return false, fmt.Errorf("selection toggle: unexpected reply %v", raw)
	}
	outcome, _ := reply[0].(string)
	pending, _ := reply[1].(int64)

	switch outcome {
	case "added":
		r.client.Expire(ctx, key, selectionTTL)
		return true, nil
	case "removed":
		return false, nil
	case "already_in_deal":
		return false, &RejectionError{
			Reason:   ReasonAlreadyInDeal,
			Existing: len(existing),
			Pending:  int(pending),
			MaxCars:  maxCars,
		}
	case "quota_exceeded":
		return false, &RejectionError{
			Reason:   ReasonQuotaExceeded,
			Existing: len(existing),
			Pending:  int(pending),
			MaxCars:  maxCars,
		}
	default:
		return false, fmt.Errorf("selection toggle: unknown outcome %q", outcome)
	}
}

func (r *RedisSelectionStore) Pending(ctx context.Context, customerID uuid.UUID) ([]uuid.UUID, error) {
	members, err := r.client.SMembers(ctx, selectionKey(customerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("selection read: %w", err)
	}
	out := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			continue // skip anything that is not ours
		}
		out = append(out, id)
	}
	return out, nil
}

func (r *RedisSelectionStore) Clear(ctx context.Context, customerID uuid.UUID) error {
	if err := r.client.Del(ctx, selectionKey(customerID)).Err(); err != nil {
		return fmt.Errorf("selection clear: %w", err)
	}
	return nil
}
