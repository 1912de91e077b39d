// Package deals enforces the deal-request quota: a customer bundles at most
// maxCars vehicles across their open deal and in-progress selection.
package deals

import (
	"fmt"

	"github.com/google/uuid"
)

// DefaultMaxCars is the deal-request ceiling. Overridable per deployment
// through Config; never referenced directly by the guard logic.
const DefaultMaxCars = 4

// Reason discriminates the two user-correctable rejections. The UI messages
// them differently ("manage from My Deals" vs "you're full"), so they are
// distinct values rather than one generic failure.
type Reason string

const (
	ReasonQuotaExceeded Reason = "quota_exceeded"
	ReasonAlreadyInDeal Reason = "already_in_deal"
)

// RejectionError is a recoverable, single-operation rejection from the
// guard. It carries the current counts so callers can render a helpful
// message without a second round trip.
type RejectionError struct {
	Reason   Reason
	Existing int
	Pending  int
	MaxCars  int
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %d in deal + %d selected of %d max", e.Reason, e.Existing, e.Pending, e.MaxCars)
}

// Selection is the quota guard over one customer's state: listing ids
// already in an open deal request plus the in-progress pick set. The only
// enforced invariant is existing + pending <= maxCars; the Empty/Partial/
// Full labels the UI shows are derived, not transitions.
type Selection struct {
	existing map[uuid.UUID]struct{}
	pending  map[uuid.UUID]struct{}
	maxCars  int
}

func NewSelection(existing []uuid.UUID, maxCars int) *Selection {
	if maxCars <= 0 {
		maxCars = DefaultMaxCars
	}
	s := &Selection{
		existing: make(map[uuid.UUID]struct{}, len(existing)),
		pending:  make(map[uuid.UUID]struct{}),
		maxCars:  maxCars,
	}
	for _, id := range existing {
		s.existing[id] = struct{}{}
	}
	return s
}

// CanAdd reports whether id could join the pending set right now.
func (s *Selection) CanAdd(id uuid.UUID) bool {
	if _, ok := s.existing[id]; ok {
		return false
	}
	return len(s.existing)+len(s.pending) < s.maxCars
}

// Toggle adds id to the pending set, or removes it if already pending.
// Removal is always allowed; an add that would breach the ceiling fails
// with a RejectionError and leaves the selection untouched. The check and
// the mutation happen in one call so there is no window for a second
// surface to slip a fifth vehicle through.
func (s *Selection) Toggle(id uuid.UUID) (added bool, err error) {
	if _, ok := s.pending[id]; ok {
		delete(s.pending, id)
		return false, nil
	}
	if _, ok := s.existing[id]; ok {
		return false, s.reject(ReasonAlreadyInDeal)
	}
	if len(s.existing)+len(s.pending) >= s.maxCars {
		return false, s.reject(ReasonQuotaExceeded)
	}
	s.pending[id] = struct{}{}
	return true, nil
}

func (s *Selection) reject(reason Reason) error {
	return &RejectionError{
		Reason:   reason,
		Existing: len(s.existing),
		Pending:  len(s.pending),
		MaxCars:  s.maxCars,
	}
}

// Pending returns the in-progress pick set. Order is unspecified.
func (s *Selection) Pending() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s.pending))
	for id := range s.pending {
		out = append(out, id)
	}
	return out
}

func (s *Selection) ExistingCount() int { return len(s.existing) }

// Remaining is how many more vehicles the customer may pick.
func (s *Selection) Remaining() int {
	r := s.maxCars - len(s.existing) - len(s.pending)
	if r < 0 {
		r = 0
	}
	return r
}

// ClearPending drops the pick set. Used after a successful submission and
// by the "start over" path; it can never violate the invariant.
func (s *Selection) ClearPending() {
	s.pending = make(map[uuid.UUID]struct{})
}
