package search

import (
	"context"

	"github.com/david/car-finder/internal/models"
)

// NoTier marks a SearchResult that stayed empty through every applicable
// fallback tier.
const NoTier = -1

// fallbackTier describes one step of the degradation sequence: which filter
// subset it retains, whether the original query arms it, and an optional
// result cap. Keeping the policy as data makes the tier order testable in
// isolation and cheap to extend.
type fallbackTier struct {
	id      int
	applies func(FilterCriteria) bool
	relax   func(FilterCriteria) FilterCriteria
	cap     int // 0 = uncapped
}

func (s *Service) fallbackTiers() []fallbackTier {
	return []fallbackTier{
		{
			// Same make, drop model. ZIP/radius are kept so the
			// suggestions stay local.
			id:      1,
			applies: func(c FilterCriteria) bool { return c.Make != "" },
			relax: func(c FilterCriteria) FilterCriteria {
				return FilterCriteria{Make: c.Make, Zip: c.Zip, RadiusMiles: c.RadiusMiles}
			},
		},
		{
			// Same body type, drop make and model.
			id:      2,
			applies: func(c FilterCriteria) bool { return c.BodyType != "" },
			relax: func(c FilterCriteria) FilterCriteria {
				return FilterCriteria{BodyType: c.BodyType}
			},
		},
		{
			// Browse anything: most recent inventory, capped to a preview
			// since this tier suggests alternatives rather than serving
			// the catalog.
			id:      3,
			applies: func(FilterCriteria) bool { return true },
			relax:   func(FilterCriteria) FilterCriteria { return FilterCriteria{} },
			cap:     s.cfg.FallbackPreview,
		},
	}
}

// degrade walks the tier sequence for a query whose strict pass came back
// empty, stopping at the first non-empty tier. Tiers whose criterion was
// never present are skipped, not run with an empty filter. Read-only and
// idempotent; each tier is its own cancellable collaborator call.
func (s *Service) degrade(ctx context.Context, orig FilterCriteria) (*SearchResult, error) {
	for _, tier := range s.fallbackTiers() {
		if !tier.applies(orig) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, unavailable(err)
		}

		listings, err := s.execute(ctx, tier.relax(orig), tier.id)
		if err != nil {
			return nil, err
		}
		if len(listings) == 0 {
			continue
		}
		if tier.cap > 0 && len(listings) > tier.cap {
			listings = listings[:tier.cap]
		}
		return &SearchResult{Listings: listings, UsedTier: tier.id, TotalCount: len(listings)}, nil
	}

	return &SearchResult{Listings: []models.ScoredListing{}, UsedTier: NoTier}, nil
}
