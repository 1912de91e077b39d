package models

import (
	"time"

	"github.com/google/uuid"
)

// Listing is a single dealer vehicle record eligible for search. It is an
// immutable snapshot for the duration of one search call; write paths live
// in the dealer-facing API and the ingest pipeline.
type Listing struct {
	ID             uuid.UUID `json:"id"`
	VIN            string    `json:"vin"`
	Make           string    `json:"make"`
	Model          string    `json:"model"`
	Trim           string    `json:"trim"`
	Year           int       `json:"year"`
	Mileage        int       `json:"mileage"`
	Color          string    `json:"color"`
	BodyType       string    `json:"body_type"`
	FuelType       string    `json:"fuel_type"`
	Condition      string    `json:"condition"` // "new" or "used"
	Price          int       `json:"price"`     // 0 means "call for price"
	City           string    `json:"city"`
	State          string    `json:"state"`
	Zip            string    `json:"zip"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Description    string    `json:"description"`
	Photos         []string  `json:"photos"`
	DealerID       uuid.UUID `json:"dealer_id"`
	DealerName     string    `json:"dealer_name"`
	DealerVerified bool      `json:"dealer_verified"`
	Status         string    `json:"status"` // "active" or "inactive"
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasCoords reports whether the listing was geocoded. Listings synced
// without coordinates carry 0,0 and are excluded from distance math.
func (l Listing) HasCoords() bool {
	return l.Latitude != 0 || l.Longitude != 0
}

// ScoredListing is a Listing annotated by the search pipeline.
type ScoredListing struct {
	Listing
	// DistanceMiles is nil when the query had no ZIP or the distance could
	// not be determined for this listing.
	DistanceMiles *float64 `json:"distance_miles,omitempty"`
	// MatchTier records which fallback tier produced the listing. 0 is a
	// strict match.
	MatchTier int `json:"match_tier"`
}

// Lead is a customer inquiry about a specific listing ("check availability"
// or "request photos"). Outbound delivery to the dealer is handled by a
// Notifier collaborator; the lead row is the system of record.
type Lead struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"` // "availability" or "photos"
	ListingID uuid.UUID `json:"listing_id"`
	DealerID  uuid.UUID `json:"dealer_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Zip       string    `json:"zip"`
	Comments  string    `json:"comments"`
	CreatedAt time.Time `json:"created_at"`
}
