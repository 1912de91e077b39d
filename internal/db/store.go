package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david/car-finder/internal/models"
	"github.com/david/car-finder/internal/search"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// selectCols is the column list for listing queries, joined with the dealer
// fields the result mapper needs.
const selectCols = `l.id, l.vin, l.make, l.model, l.trim, l.year, l.mileage, l.color,
	l.body_type, l.fuel_type, l.condition, l.price, l.city, l.state, l.zip,
	l.latitude, l.longitude, l.description, l.photos, l.dealer_id,
	d.business_name, d.verification_status = 'approved', l.status, l.created_at, l.updated_at`

func scanListing(scan func(dest ...interface{}) error) (models.Listing, error) {
	var l models.Listing
	err := scan(
		&l.ID, &l.VIN, &l.Make, &l.Model, &l.Trim, &l.Year, &l.Mileage, &l.Color,
		&l.BodyType, &l.FuelType, &l.Condition, &l.Price, &l.City, &l.State, &l.Zip,
		&l.Latitude, &l.Longitude, &l.Description, &l.Photos, &l.DealerID,
		&l.DealerName, &l.DealerVerified, &l.Status, &l.CreatedAt, &l.UpdatedAt,
	)
	return l, err
}

// Query returns the inventory slice for one search call, pre-filtered at
// the storage layer and ordered by recency. The search executor re-applies
// the full predicate in memory, so this filter only needs to be a superset
// of the final result — it exists to keep the working set small.
// Implements search.ListingProvider.
func (s *Store) Query(ctx context.Context, c search.FilterCriteria) ([]models.Listing, error) {
	where := "WHERE l.status = 'active' AND d.verification_status = 'approved'"
	var args []interface{}
	argIdx := 1

	if c.Make != "" {
		where += fmt.Sprintf(" AND l.make ILIKE '%%' || $%d || '%%'", argIdx)
		args = append(args, c.Make)
		argIdx++
	}
	if c.Model != "" {
		where += fmt.Sprintf(" AND l.model ILIKE '%%' || $%d || '%%'", argIdx)
		args = append(args, c.Model)
		argIdx++
	}
	if c.State != "" {
		where += fmt.Sprintf(" AND l.state ILIKE $%d", argIdx)
		args = append(args, c.State)
		argIdx++
	}
	if c.Condition != "" {
		where += fmt.Sprintf(" AND l.condition ILIKE $%d", argIdx)
		args = append(args, c.Condition)
		argIdx++
	}
	if c.BodyType != "" {
		where += fmt.Sprintf(" AND l.body_type ILIKE $%d", argIdx)
		args = append(args, c.BodyType)
		argIdx++
	}
	if c.FuelType != "" {
		// Untagged inventory reads as Gasoline, mirroring the executor.
		where += fmt.Sprintf(" AND COALESCE(NULLIF(l.fuel_type, ''), 'Gasoline') ILIKE $%d", argIdx)
		args = append(args, c.FuelType)
		argIdx++
	}
	if c.MinPrice != nil {
		where += fmt.Sprintf(" AND l.price > 0 AND l.price >= $%d", argIdx)
		args = append(args, *c.MinPrice)
		argIdx++
	}
	if c.MaxPrice != nil {
		where += fmt.Sprintf(" AND l.price > 0 AND l.price <= $%d", argIdx)
		args = append(args, *c.MaxPrice)
		argIdx++
	}
	if c.FreeText != "" {
		// The executor requires every term independently; the prefilter
		// narrows by the first term only, to stay a superset.
		where += fmt.Sprintf(
			" AND concat_ws(' ', l.make, l.model, l.trim, l.year::text, l.color, l.body_type, l.fuel_type, l.vin) ILIKE '%%' || $%d || '%%'",
			argIdx)
		args = append(args, strings.Fields(c.FreeText)[0])
		argIdx++
	}

	sql := fmt.Sprintf(`
		SELECT %s FROM listings l
		JOIN dealers d ON d.id = l.dealer_id
		%s
		ORDER BY l.created_at DESC`, selectCols, where)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		l, err := scanListing(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return listings, nil
}

func (s *Store) GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM listings l
		JOIN dealers d ON d.id = l.dealer_id
		WHERE l.id = $1`, selectCols), id)
	l, err := scanListing(row.Scan)
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return &l, nil
}

// UpsertListing writes a feed-sourced listing keyed by (dealer, source_id),
// so re-running an ingest refreshes rather than duplicates.
func (s *Store) UpsertListing(ctx context.Context, l models.Listing, sourceID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO listings (vin, make, model, trim, year, mileage, color, body_type,
			fuel_type, condition, price, city, state, zip, latitude, longitude,
			description, photos, dealer_id, status, source_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,'active',$20)
		ON CONFLICT (dealer_id, source_id) WHERE source_id <> ''
		DO UPDATE SET
			vin = EXCLUDED.vin, make = EXCLUDED.make, model = EXCLUDED.model,
			trim = EXCLUDED.trim, year = EXCLUDED.year, mileage = EXCLUDED.mileage,
			color = EXCLUDED.color, body_type = EXCLUDED.body_type,
			fuel_type = EXCLUDED.fuel_type, condition = EXCLUDED.condition,
			price = EXCLUDED.price, city = EXCLUDED.city, state = EXCLUDED.state,
			zip = EXCLUDED.zip, latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
			description = EXCLUDED.description, photos = EXCLUDED.photos,
			status = 'active', updated_at = NOW()
		RETURNING id
	`, l.VIN, l.Make, l.Model, l.Trim, l.Year, l.Mileage, l.Color, l.BodyType,
		l.FuelType, l.Condition, l.Price, l.City, l.State, l.Zip, l.Latitude, l.Longitude,
		l.Description, l.Photos, l.DealerID, sourceID).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert listing: %w", err)
	}
	return id, nil
}

// Centroid implements geo.CentroidSource.
func (s *Store) Centroid(ctx context.Context, zip string) (float64, float64, bool, error) {
	var lat, lng float64
	err := s.pool.QueryRow(ctx,
		"SELECT latitude, longitude FROM zip_centroids WHERE zip = $1", zip).Scan(&lat, &lng)
	if err == pgx.ErrNoRows {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("centroid lookup: %w", err)
	}
	return lat, lng, true, nil
}

// ActiveDealListingIDs implements deals.DealStore: the listing ids in the
// customer's open deal lists, cancelled picks excluded.
func (s *Store) ActiveDealListingIDs(ctx context.Context, customerID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sc.listing_id
		FROM selected_cars sc
		JOIN deal_lists dl ON dl.id = sc.deal_list_id
		WHERE dl.customer_id = $1
		  AND dl.status IN ('active', 'accepted')
		  AND sc.status <> 'cancelled'
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("active deal listings: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateDealRequest persists a deal list with a price snapshot per vehicle,
// all in one transaction.
func (s *Store) CreateDealRequest(ctx context.Context, customerID uuid.UUID, listingIDs []uuid.UUID) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var dealID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO deal_lists (customer_id, status) VALUES ($1, 'active') RETURNING id
	`, customerID).Scan(&dealID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create deal list: %w", err)
	}

	for _, listingID := range listingIDs {
		var price int
		if err := tx.QueryRow(ctx,
			"SELECT price FROM listings WHERE id = $1", listingID).Scan(&price); err != nil {
			return uuid.Nil, fmt.Errorf("price snapshot for %s: %w", listingID, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO selected_cars (deal_list_id, listing_id, original_price, current_offer_price)
			VALUES ($1, $2, $3, $3)
		`, dealID, listingID, price); err != nil {
			return uuid.Nil, fmt.Errorf("select car %s: %w", listingID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}
	return dealID, nil
}

func (s *Store) CreateLead(ctx context.Context, lead models.Lead) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO leads (kind, listing_id, dealer_id, first_name, last_name, email, phone, zip, comments)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id
	`, lead.Kind, lead.ListingID, lead.DealerID, lead.FirstName, lead.LastName,
		lead.Email, lead.Phone, lead.Zip, lead.Comments).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create lead: %w", err)
	}
	return id, nil
}

// FacetCount is one value/count pair for the filter UI.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// AggregationResult feeds the storefront filter dropdowns.
type AggregationResult struct {
	Makes     []FacetCount `json:"makes"`
	BodyTypes []FacetCount `json:"body_types"`
	States    []FacetCount `json:"states"`
}

func (s *Store) GetAggregations(ctx context.Context) (*AggregationResult, error) {
	result := &AggregationResult{}
	facets := []struct {
		column string
		dest   *[]FacetCount
	}{
		{"make", &result.Makes},
		{"body_type", &result.BodyTypes},
		{"state", &result.States},
	}

	for _, f := range facets {
		if err := s.facet(ctx, f.column, f.dest); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *Store) facet(ctx context.Context, column string, dest *[]FacetCount) error {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT l.%s, COUNT(*) FROM listings l
		JOIN dealers d ON d.id = l.dealer_id
		WHERE l.status = 'active' AND d.verification_status = 'approved' AND l.%s <> ''
		GROUP BY l.%s ORDER BY COUNT(*) DESC, l.%s ASC
	`, column, column, column, column))
	if err != nil {
		return fmt.Errorf("aggregate %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var fc FacetCount
		if err := rows.Scan(&fc.Value, &fc.Count); err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		*dest = append(*dest, fc)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows iteration failed: %w", err)
	}
	return nil
}

func (s *Store) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{}

	counts := []struct {
		key string
		sql string
	}{
		{"active_listings", "SELECT COUNT(*) FROM listings WHERE status = 'active'"},
		{"approved_dealers", "SELECT COUNT(*) FROM dealers WHERE verification_status = 'approved'"},
		{"open_deal_requests", "SELECT COUNT(*) FROM deal_lists WHERE status = 'active'"},
	}
	for _, c := range counts {
		var n int
		if err := s.pool.QueryRow(ctx, c.sql).Scan(&n); err != nil {
			return nil, fmt.Errorf("stats %s: %w", c.key, err)
		}
		stats[c.key] = n
	}
	return stats, nil
}

// StartIngestRun and FinishIngestRun bracket one feed ingestion for the
// check_runs report.
func (s *Store) StartIngestRun(ctx context.Context, sourceID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO ingest_runs (source_id, status) VALUES ($1, 'running') RETURNING run_id
	`, sourceID).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("start ingest run: %w", err)
	}
	return id, nil
}

func (s *Store) FinishIngestRun(ctx context.Context, runID uuid.UUID, status string, found, saved, errorCount int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE ingest_runs
		SET status = $2, items_found = $3, items_saved = $4, errors = $5, completed_at = $6
		WHERE run_id = $1
	`, runID, status, found, saved, errorCount, time.Now())
	if err != nil {
		return fmt.Errorf("finish ingest run: %w", err)
	}
	return nil
}
