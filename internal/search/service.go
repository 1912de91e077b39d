package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/david/car-finder/internal/models"
)

// ErrUnavailable distinguishes "couldn't search" (a collaborator failed or
// timed out, retryable) from "no matches" (a legitimate empty result).
var ErrUnavailable = errors.New("search unavailable")

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// ListingProvider supplies the inventory snapshot for one search call. It
// may apply storage-level filtering; the core re-applies the full predicate
// over whatever comes back.
type ListingProvider interface {
	Query(ctx context.Context, c FilterCriteria) ([]models.Listing, error)
}

// DistanceResolver reports the distance in miles from a ZIP to a listing.
// nil means "undetermined" — the caller treats that as failing any radius
// filter, never as zero.
type DistanceResolver interface {
	Distance(ctx context.Context, fromZip string, l models.Listing) (*float64, error)
}

// SearchResult is the ordered outcome of one search call before windowing.
type SearchResult struct {
	Listings   []models.ScoredListing `json:"listings"`
	UsedTier   int                    `json:"used_tier"`
	TotalCount int                    `json:"total_count"`
}

// Config carries the tunables deployments may override. Zero fields fall
// back to the package defaults.
type Config struct {
	DefaultPageSize int // page size when the request gives none (24)
	FallbackPreview int // tier-3 "browse anything" cap (8)
}

const (
	DefaultPageSize        = 24
	DefaultFallbackPreview = 8
)

func (c Config) withDefaults() Config {
	if c.DefaultPageSize <= 0 {
		c.DefaultPageSize = DefaultPageSize
	}
	if c.FallbackPreview <= 0 {
		c.FallbackPreview = DefaultFallbackPreview
	}
	return c
}

// Service is the inventory search pipeline: normalizer output in, ranked
// and tier-tagged results out. Pure over its collaborators; safe for
// concurrent use.
type Service struct {
	listings ListingProvider
	distance DistanceResolver
	cfg      Config
}

func NewService(listings ListingProvider, distance DistanceResolver, cfg Config) *Service {
	return &Service{
		listings: listings,
		distance: distance,
		cfg:      cfg.withDefaults(),
	}
}

// Search runs the strict pass and, when it comes back empty for a query
// that had something to relax, walks the fallback tiers.
func (s *Service) Search(ctx context.Context, c FilterCriteria) (*SearchResult, error) {
	listings, err := s.execute(ctx, c, 0)
	if err != nil {
		return nil, err
	}
	if len(listings) > 0 {
		return &SearchResult{Listings: listings, UsedTier: 0, TotalCount: len(listings)}, nil
	}

	if !c.HasRelaxable() {
		return &SearchResult{Listings: []models.ScoredListing{}, UsedTier: NoTier}, nil
	}
	return s.degrade(ctx, c)
}

// SearchPage is Search plus windowing in one call, for callers that think
// in pages.
func (s *Service) SearchPage(ctx context.Context, c FilterCriteria, page, pageSize int) (*PageView, error) {
	res, err := s.Search(ctx, c)
	if err != nil {
		return nil, err
	}
	view := Paginate(res, page, pageSize, s.cfg.DefaultPageSize)
	return &view, nil
}
