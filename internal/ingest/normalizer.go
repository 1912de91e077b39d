package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/david/car-finder/internal/models"
	"github.com/david/car-finder/internal/search"
)

// descriptionPolicy keeps benign formatting from dealer-authored HTML and
// strips everything else. Dealer feeds are untrusted input.
var descriptionPolicy = bluemonday.UGCPolicy()

// bodyTypeAliases canonicalizes the many ways DMS exports spell a body
// style, so search equality filters work across dealers.
var bodyTypeAliases = map[string]string{
	"sport utility":    "SUV",
	"4d sport utility": "SUV",
	"suv":              "SUV",
	"crossover":        "SUV",
	"cuv":              "SUV",
	"pickup":           "Truck",
	"pickup truck":     "Truck",
	"crew cab":         "Truck",
	"truck":            "Truck",
	"sedan":            "Sedan",
	"4d sedan":         "Sedan",
	"coupe":            "Coupe",
	"2d coupe":         "Coupe",
	"convertible":      "Convertible",
	"hatchback":        "Hatchback",
	"5d hatchback":     "Hatchback",
	"wagon":            "Wagon",
	"minivan":          "Van",
	"van":              "Van",
	"cargo van":        "Van",
}

var fuelTypeAliases = map[string]string{
	"gas":             "Gasoline",
	"gasoline":        "Gasoline",
	"unleaded":        "Gasoline",
	"regular unleaded": "Gasoline",
	"premium unleaded": "Gasoline",
	"flex fuel":       "Gasoline",
	"diesel":          "Diesel",
	"hybrid":          "Hybrid",
	"gas/electric hybrid": "Hybrid",
	"plug-in hybrid":  "Plug-In Hybrid",
	"phev":            "Plug-In Hybrid",
	"electric":        "Electric",
	"ev":              "Electric",
}

// NormalizeVehicle turns one raw feed record into a Listing owned by
// dealerID. It errors only when the record is unusable (no make/model or
// no year); individually malformed fields degrade to zero values.
func NormalizeVehicle(raw RawVehicle, dealerID uuid.UUID, defaults SourceConfig) (models.Listing, error) {
	make := strings.TrimSpace(raw.Make)
	model := strings.TrimSpace(raw.Model)
	if make == "" || model == "" {
		return models.Listing{}, fmt.Errorf("vehicle %q missing make or model", raw.SourceID)
	}

	year := parseYear(raw.Year)
	if year == 0 {
		return models.Listing{}, fmt.Errorf("vehicle %q has no usable year (%q)", raw.SourceID, raw.Year)
	}

	l := models.Listing{
		VIN:         strings.ToUpper(strings.TrimSpace(raw.VIN)),
		Make:        make,
		Model:       model,
		Trim:        strings.TrimSpace(raw.Trim),
		Year:        year,
		Mileage:     parseNumber(raw.Mileage),
		Color:       strings.TrimSpace(raw.Color),
		BodyType:    CanonicalBodyType(raw.BodyType),
		FuelType:    CanonicalFuelType(raw.FuelType),
		Condition:   canonicalCondition(raw.Condition),
		Price:       parseNumber(raw.Price),
		City:        firstNonEmpty(strings.TrimSpace(raw.City), defaults.City),
		State:       firstNonEmpty(strings.TrimSpace(raw.State), defaults.State),
		Zip:         firstNonEmpty(search.NormalizeZip(raw.Zip), search.NormalizeZip(defaults.Zip)),
		Description: descriptionPolicy.Sanitize(raw.Description),
		Photos:      raw.PhotoURLs,
		DealerID:    dealerID,
		Status:      "active",
		CreatedAt:   time.Now(),
	}
	return l, nil
}

// CanonicalBodyType maps a feed's body style to one of the storefront's
// filter values; unrecognized styles pass through trimmed.
func CanonicalBodyType(s string) string {
	key := strings.ToLower(strings.TrimSpace(s))
	if canonical, ok := bodyTypeAliases[key]; ok {
		return canonical
	}
	return strings.TrimSpace(s)
}

// CanonicalFuelType maps a feed's fuel description to a filter value;
// unrecognized fuels pass through trimmed.
func CanonicalFuelType(s string) string {
	key := strings.ToLower(strings.TrimSpace(s))
	if canonical, ok := fuelTypeAliases[key]; ok {
		return canonical
	}
	return strings.TrimSpace(s)
}

func canonicalCondition(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "n", "new":
		return "new"
	default:
		// Certified pre-owned and everything else sells as used.
		return "used"
	}
}

// parseNumber extracts a non-negative integer from feed text like
// "$24,995" or "45,120 mi". 0 when nothing numeric remains — which for
// price means "call for price".
func parseNumber(s string) int {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteByte(byte(r))
		}
		if r == '.' {
			break // drop cents
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(b.String())
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func parseYear(s string) int {
	for _, field := range strings.Fields(s) {
		if len(field) == 4 {
			if y, err := strconv.Atoi(field); err == nil && y >= 1900 && y <= time.Now().Year()+2 {
				return y
			}
		}
	}
	return 0
}

// parseTitle splits a "2021 Toyota Camry XSE" style heading into its
// parts. Used by the HTML strategy when the page has no per-field markup.
func parseTitle(title string) (year, make, model, trim string) {
	fields := strings.Fields(strings.TrimSpace(title))
	if len(fields) < 3 {
		return "", "", "", ""
	}
	if y := parseYear(fields[0]); y == 0 {
		return "", "", "", ""
	}
	year = fields[0]
	make = fields[1]
	model = fields[2]
	if len(fields) > 3 {
		trim = strings.Join(fields[3:], " ")
	}
	return year, make, model, trim
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
