package search

import (
	"strconv"
	"strings"
)

// FilterCriteria is the canonical query object. The zero value means "no
// filters". Absent string fields are empty; absent price bounds are nil so a
// genuine zero bound stays distinguishable.
type FilterCriteria struct {
	FreeText    string
	Make        string
	Model       string
	State       string
	Condition   string
	BodyType    string
	FuelType    string
	MinPrice    *int
	MaxPrice    *int
	Zip         string
	RadiusMiles int
}

// sentinel used by the UI to mean "no filter" on select fields. Normalized
// away here so the matching logic never sees it.
const sentinelAll = "all"

// ParseCriteria turns raw request key/values into a FilterCriteria.
// Permissive by policy: malformed or negative numerics are dropped, never
// fatal, so a bad field degrades to "no filter on that field".
//
// Recognized keys: q, make, model, state, condition, bodyType, fuelType,
// minPrice, maxPrice, zip, radius.
func ParseCriteria(raw map[string]string) FilterCriteria {
	c := FilterCriteria{
		FreeText: strings.TrimSpace(raw["q"]),
		Make:     strings.TrimSpace(raw["make"]),
		Model:    strings.TrimSpace(raw["model"]),
	}

	c.State = normalizeSelect(raw["state"])
	c.Condition = normalizeSelect(raw["condition"])
	c.BodyType = normalizeSelect(raw["bodyType"])
	c.FuelType = normalizeSelect(raw["fuelType"])

	c.MinPrice = parseBound(raw["minPrice"])
	c.MaxPrice = parseBound(raw["maxPrice"])
	if c.MinPrice != nil && c.MaxPrice != nil && *c.MinPrice > *c.MaxPrice {
		c.MinPrice, c.MaxPrice = c.MaxPrice, c.MinPrice
	}

	c.Zip = NormalizeZip(raw["zip"])
	if c.Zip != "" {
		// Radius is only meaningful alongside a ZIP.
		if r, err := strconv.Atoi(strings.TrimSpace(raw["radius"])); err == nil && r > 0 {
			c.RadiusMiles = r
		}
	}

	return c
}

// NormalizeZip strips non-digit characters and truncates to 5 digits.
// Shorter results are kept as-is; the distance resolver decides validity.
func NormalizeZip(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteByte(byte(r))
		}
		if b.Len() == 5 {
			break
		}
	}
	return b.String()
}

func normalizeSelect(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, sentinelAll) {
		return ""
	}
	return s
}

func parseBound(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

// HasRelaxable reports whether the query carries at least one criterion the
// fallback tiers know how to loosen. A bare browse that returns nothing is
// not retried.
func (c FilterCriteria) HasRelaxable() bool {
	return c.FreeText != "" || c.Make != "" || c.Model != "" ||
		c.BodyType != "" || c.FuelType != "" || c.Condition != "" ||
		c.MinPrice != nil || c.MaxPrice != nil
}

// Fingerprint is a stable identity for the filter set, used to scope page
// state: a changed fingerprint resets pagination to page 1.
func (c FilterCriteria) Fingerprint() string {
	parts := []string{
		c.FreeText, c.Make, c.Model, c.State, c.Condition,
		c.BodyType, c.FuelType, c.Zip, strconv.Itoa(c.RadiusMiles),
	}
	if c.MinPrice != nil {
		parts = append(parts, strconv.Itoa(*c.MinPrice))
	} else {
		parts = append(parts, "-")
	}
	if c.MaxPrice != nil {
		parts = append(parts, strconv.Itoa(*c.MaxPrice))
	} else {
		parts = append(parts, "-")
	}
	return strings.Join(parts, "\x1f")
}
