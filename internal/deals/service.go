package deals

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
)

// ErrNothingSelected rejects a submission with an empty pick set.
var ErrNothingSelected = errors.New("no vehicles selected")

// DealStore is the persistence boundary for deal requests.
type DealStore interface {
	// ActiveDealListingIDs returns the listing ids in the customer's open
	// (non-terminal) deal requests.
	ActiveDealListingIDs(ctx context.Context, customerID uuid.UUID) ([]uuid.UUID, error)
	// CreateDealRequest persists a new deal request over listingIDs with a
	// price snapshot per vehicle and returns its id.
	CreateDealRequest(ctx context.Context, customerID uuid.UUID, listingIDs []uuid.UUID) (uuid.UUID, error)
}

// Notifier delivers deal-request notifications to dealers. Delivery failure
// never fails the submission; the deal row is the system of record.
type Notifier interface {
	DealRequested(ctx context.Context, customerID, dealID uuid.UUID, listingIDs []uuid.UUID) error
}

// LogNotifier is the default no-delivery implementation.
type LogNotifier struct{}

func (LogNotifier) DealRequested(ctx context.Context, customerID, dealID uuid.UUID, listingIDs []uuid.UUID) error {
	log.Printf("deal request %s: customer %s selected %d vehicle(s)", dealID, customerID, len(listingIDs))
	return nil
}

// Status is the customer-facing view of their quota.
type Status struct {
	ExistingCount int         `json:"existing_count"`
	PendingIDs    []uuid.UUID `json:"pending_ids"`
	MaxCars       int         `json:"max_cars"`
	Remaining     int         `json:"remaining"`
}

// Config carries the quota tunables.
type Config struct {
	MaxCars int
}

// Service coordinates the quota guard, the pick-set store, and deal
// submission.
type Service struct {
	selections SelectionStore
	deals      DealStore
	notifier   Notifier
	maxCars    int
}

func NewService(selections SelectionStore, deals DealStore, notifier Notifier, cfg Config) *Service {
	if cfg.MaxCars <= 0 {
		cfg.MaxCars = DefaultMaxCars
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Service{
		selections: selections,
		deals:      deals,
		notifier:   notifier,
		maxCars:    cfg.MaxCars,
	}
}

// Toggle flips listingID in the customer's selection and returns the
// resulting status. Rejections come back as *RejectionError with the error
// untouched, so handlers can branch on the reason.
func (s *Service) Toggle(ctx context.Context, customerID, listingID uuid.UUID) (*Status, error) {
	existing, err := s.deals.ActiveDealListingIDs(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("loading deal state: %w", err)
	}

	if _, err := s.selections.Toggle(ctx, customerID, listingID, existing, s.maxCars); err != nil {
		return nil, err
	}
	return s.status(ctx, customerID, existing)
}

// Status reports the customer's current quota usage.
func (s *Service) Status(ctx context.Context, customerID uuid.UUID) (*Status, error) {
	existing, err := s.deals.ActiveDealListingIDs(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("loading deal state: %w", err)
	}
	return s.status(ctx, customerID, existing)
}

func (s *Service) status(ctx context.Context, customerID uuid.UUID, existing []uuid.UUID) (*Status, error) {
	pending, err := s.selections.Pending(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("loading selection: %w", err)
	}
	remaining := s.maxCars - len(existing) - len(pending)
	if remaining < 0 {
		remaining = 0
	}
	return &Status{
		ExistingCount: len(existing),
		PendingIDs:    pending,
		MaxCars:       s.maxCars,
		Remaining:     remaining,
	}, nil
}

// Submit turns the pending selection into a persisted deal request. The
// pick set is cleared only after the deal is stored, so a failed submission
// leaves the customer's selection intact.
func (s *Service) Submit(ctx context.Context, customerID uuid.UUID) (uuid.UUID, error) {
	pending, err := s.selections.Pending(ctx, customerID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("loading selection: %w", err)
	}
	if len(pending) == 0 {
		return uuid.Nil, ErrNothingSelected
	}

	dealID, err := s.deals.CreateDealRequest(ctx, customerID, pending)
	if err != nil {
		return uuid.Nil, fmt.Errorf("creating deal request: %w", err)
	}

	if err := s.selections.Clear(ctx, customerID); err != nil {
		// The deal exists; a stale pick set is recoverable on next toggle.
		log.Printf("clearing selection for %s after deal %s: %v", customerID, dealID, err)
	}

	if err := s.notifier.DealRequested(ctx, customerID, dealID, pending); err != nil {
		log.Printf("notifying dealers for deal %s: %v", dealID, err)
	}

	return dealID, nil
}
