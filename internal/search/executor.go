package search

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/david/car-finder/internal/models"
)

// defaultFuelType stands in for listings synced without a fuel type. Almost
// all un-tagged inventory is gasoline, so equality filters treat an empty
// fuelType as this value.
const defaultFuelType = "Gasoline"

// matchesCriteria applies every present criterion except ZIP/radius, which
// needs the distance resolver and is handled by the executor. Logical AND:
// a listing passes only if all present filters hold.
func matchesCriteria(l models.Listing, c FilterCriteria) bool {
	if c.FreeText != "" && !freeTextMatch(l, c.FreeText) {
		return false
	}
	if c.Make != "" && !containsFold(l.Make, c.Make) {
		return false
	}
	if c.Model != "" && !containsFold(l.Model, c.Model) {
		return false
	}
	if c.State != "" && !strings.EqualFold(l.State, c.State) {
		return false
	}
	if c.Condition != "" && !strings.EqualFold(l.Condition, c.Condition) {
		return false
	}
	if c.BodyType != "" && !strings.EqualFold(l.BodyType, c.BodyType) {
		return false
	}
	if c.FuelType != "" {
		fuel := l.FuelType
		if fuel == "" {
			fuel = defaultFuelType
		}
		if !strings.EqualFold(fuel, c.FuelType) {
			return false
		}
	}
	if c.MinPrice != nil || c.MaxPrice != nil {
		// Price 0 means "call for price": ambiguous, so it never satisfies
		// a bounded price query.
		if l.Price == 0 {
			return false
		}
		if c.MinPrice != nil && l.Price < *c.MinPrice {
			return false
		}
		if c.MaxPrice != nil && l.Price > *c.MaxPrice {
			return false
		}
	}
	return true
}

// freeTextMatch is a case-insensitive "contains" over the searchable text of
// a listing. Every whitespace-separated term must match somewhere.
func freeTextMatch(l models.Listing, query string) bool {
	haystack := strings.ToLower(strings.Join([]string{
		l.Make, l.Model, l.Trim, strconv.Itoa(l.Year),
		l.Color, l.BodyType, l.FuelType, l.VIN,
	}, " "))

	for _, term := range strings.Fields(strings.ToLower(query)) {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// execute runs one pass of the criteria against the listing provider and
// tags survivors with tier. The provider may have pre-filtered at the
// storage layer; the full predicate is re-applied here so ordering and
// matching stay the core's responsibility.
//
// Ordering: with a ZIP, ascending by distance with unresolved distances
// last; without one, the provider's recency order is preserved untouched.
func (s *Service) execute(ctx context.Context, c FilterCriteria, tier int) ([]models.ScoredListing, error) {
	listings, err := s.listings.Query(ctx, c)
	if err != nil {
		return nil, unavailable(err)
	}

	var out []models.ScoredListing
	for _, l := range listings {
		if l.Status != statusActive || !l.DealerVerified {
			continue
		}
		if !matchesCriteria(l, c) {
			continue
		}

		sl := models.ScoredListing{Listing: l, MatchTier: tier}
		if c.Zip != "" {
			d, err := s.distance.Distance(ctx, c.Zip, l)
			if err != nil {
				return nil, unavailable(err)
			}
			sl.DistanceMiles = d
			// An undetermined distance never satisfies a radius filter.
			if c.RadiusMiles > 0 && (d == nil || *d > float64(c.RadiusMiles)) {
				continue
			}
		}
		out = append(out, sl)
	}

	if c.Zip != "" {
		sort.SliceStable(out, func(i, j int) bool {
			di, dj := out[i].DistanceMiles, out[j].DistanceMiles
			if di == nil {
				return false
			}
			if dj == nil {
				return true
			}
			return *di < *dj
		})
	}

	return out, nil
}

const statusActive = "active"
