package search

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/david/car-finder/internal/models"
)

// fakeProvider returns its listings in insertion order, mimicking the
// store's created_at DESC ordering. It counts calls so tests can assert
// how many tiers actually hit the collaborator.
type fakeProvider struct {
	listings []models.Listing
	err      error
	calls    int
}

func (p *fakeProvider) Query(ctx context.Context, c FilterCriteria) ([]models.Listing, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.listings, nil
}

// fakeResolver maps listing ZIP to miles; unknown ZIPs resolve to nil.
type fakeResolver struct {
	miles map[string]float64
	err   error
}

func (r *fakeResolver) Distance(ctx context.Context, fromZip string, l models.Listing) (*float64, error) {
	if r.err != nil {
		return nil, r.err
	}
	if d, ok := r.miles[l.Zip]; ok {
		dd := d
		return &dd, nil
	}
	return nil, nil
}

func car(make, model string, opts ...func(*models.Listing)) models.Listing {
	l := models.Listing{
		ID:             uuid.New(),
		Make:           make,
		Model:          model,
		Year:           2021,
		Condition:      "used",
		Price:          25000,
		State:          "GA",
		Status:         "active",
		DealerVerified: true,
	}
	for _, opt := range opts {
		opt(&l)
	}
	return l
}

func withPrice(p int) func(*models.Listing)    { return func(l *models.Listing) { l.Price = p } }
func withBody(b string) func(*models.Listing)  { return func(l *models.Listing) { l.BodyType = b } }
func withZip(z string) func(*models.Listing)   { return func(l *models.Listing) { l.Zip = z } }
func withFuel(f string) func(*models.Listing)  { return func(l *models.Listing) { l.FuelType = f } }
func withColor(c string) func(*models.Listing) { return func(l *models.Listing) { l.Color = c } }

func newTestService(p ListingProvider, r DistanceResolver) *Service {
	if r == nil {
		r = &fakeResolver{}
	}
	return NewService(p, r, Config{})
}

func TestStrictSearchExactMatch(t *testing.T) {
	// Scenario: one exact Toyota Camry among other Toyotas.
	camry := car("Toyota", "Camry")
	provider := &fakeProvider{listings: []models.Listing{
		camry,
		car("Toyota", "Corolla"),
		car("Toyota", "RAV4", withBody("SUV")),
	}}
	svc := newTestService(provider, nil)

	res, err := svc.Search(context.Background(), FilterCriteria{Make: "Toyota", Model: "Camry"})
	if err != nil {
		t.Fatal(err)
	}
	if res.UsedTier != 0 {
		t.Fatalf("usedTier = %d, want 0", res.UsedTier)
	}
	if res.TotalCount != 1 || res.Listings[0].ID != camry.ID {
		t.Fatalf("expected exactly the Camry, got %d results", res.TotalCount)
	}
}

func TestStrictSearchIsIdempotent(t *testing.T) {
	provider := &fakeProvider{listings: []models.Listing{
		car("Honda", "Civic"),
		car("Honda", "Accord"),
		car("Toyota", "Camry"),
	}}
	svc := newTestService(provider, nil)
	c := FilterCriteria{Make: "Honda"}

	first, err := svc.Search(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Search(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical criteria over an unchanged set must yield identical results")
	}
}

func TestFallbackTier1SameMake(t *testing.T) {
	// Scenario: no Supra in inventory, five other Toyotas exist.
	var listings []models.Listing
	for _, m := range []string{"Camry", "Corolla", "RAV4", "Highlander", "Tacoma"} {
		listings = append(listings, car("Toyota", m))
	}
	provider := &fakeProvider{listings: listings}
	svc := newTestService(provider, nil)

	res, err := svc.Search(context.Background(), FilterCriteria{Make: "Toyota", Model: "Supra"})
	if err != nil {
		t.Fatal(err)
	}
	if res.UsedTier != 1 {
		t.Fatalf("usedTier = %d, want 1", res.UsedTier)
	}
	if res.TotalCount != 5 {
		t.Fatalf("tier 1 should return the 5 Toyotas, got %d", res.TotalCount)
	}
	for _, l := range res.Listings {
		if l.MatchTier != 1 {
			t.Fatalf("listing tagged tier %d, want 1", l.MatchTier)
		}
	}
}

func TestFallbackSkipsInapplicableTiers(t *testing.T) {
	// Scenario: bodyType-only query, zero SUVs, three other listings.
	provider := &fakeProvider{listings: []models.Listing{
		car("Honda", "Civic", withBody("Sedan")),
		car("Ford", "F-150", withBody("Truck")),
		car("Mazda", "3", withBody("Hatchback")),
	}}
	svc := newTestService(provider, nil)

	res, err := svc.Search(context.Background(), FilterCriteria{BodyType: "SUV"})
	if err != nil {
		t.Fatal(err)
	}
	if res.UsedTier != 3 {
		t.Fatalf("usedTier = %d, want 3", res.UsedTier)
	}
	if res.TotalCount != 3 {
		t.Fatalf("tier 3 should surface all 3 listings, got %d", res.TotalCount)
	}
	// Strict + tier 2 (bodyType) + tier 3; tier 1 skipped with no make.
	if provider.calls != 3 {
		t.Fatalf("provider called %d times, want 3 (tier 1 must be skipped)", provider.calls)
	}
}

func TestFallbackPreviewCap(t *testing.T) {
	var listings []models.Listing
	for i := 0; i < 12; i++ {
		listings = append(listings, car("Honda", "Civic", withBody("Sedan")))
	}
	provider := &fakeProvider{listings: listings}
	svc := newTestService(provider, nil)

	res, err := svc.Search(context.Background(), FilterCriteria{BodyType: "SUV"})
	if err != nil {
		t.Fatal(err)
	}
	if res.UsedTier != 3 {
		t.Fatalf("usedTier = %d, want 3", res.UsedTier)
	}
	if res.TotalCount != DefaultFallbackPreview {
		t.Fatalf("tier 3 must cap at %d, got %d", DefaultFallbackPreview, res.TotalCount)
	}
}

func TestBareQueryDoesNotDegrade(t *testing.T) {
	provider := &fakeProvider{}
	svc := newTestService(provider, nil)

	res, err := svc.Search(context.Background(), FilterCriteria{})
	if err != nil {
		t.Fatal(err)
	}
	if res.UsedTier != NoTier {
		t.Fatalf("usedTier = %d, want %d", res.UsedTier, NoTier)
	}
	if provider.calls != 1 {
		t.Fatalf("bare empty query must not retry, provider called %d times", provider.calls)
	}
}

func TestAllTiersExhaustedIsEmptyNotError(t *testing.T) {
	provider := &fakeProvider{listings: []models.Listing{
		car("Honda", "Civic", func(l *models.Listing) { l.Status = "inactive" }),
	}}
	svc := newTestService(provider, nil)

	res, err := svc.Search(context.Background(), FilterCriteria{Make: "Toyota"})
	if err != nil {
		t.Fatal(err)
	}
	if res.UsedTier != NoTier || res.TotalCount != 0 {
		t.Fatalf("want empty terminal result, got tier=%d count=%d", res.UsedTier, res.TotalCount)
	}
}

func TestPriceZeroExclusion(t *testing.T) {
	callForPrice := car("Toyota", "Camry", withPrice(0))
	priced := car("Toyota", "Camry", withPrice(20000))
	provider := &fakeProvider{listings: []models.Listing{callForPrice, priced}}
	svc := newTestService(provider, nil)

	max := 30000
	res, err := svc.Search(context.Background(), FilterCriteria{Make: "Toyota", MaxPrice: &max})
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalCount != 1 || res.Listings[0].ID != priced.ID {
		t.Fatalf("call-for-price listing must be excluded under a price bound, got %d results", res.TotalCount)
	}

	// Without bounds it browses normally.
	res, err = svc.Search(context.Background(), FilterCriteria{Make: "Toyota"})
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalCount != 2 {
		t.Fatalf("unbounded query should include call-for-price listings, got %d", res.TotalCount)
	}
}

func TestFuelTypeDefaultsToGasoline(t *testing.T) {
	untagged := car("Toyota", "Camry") // no fuelType on record
	electric := car("Tesla", "Model 3", withFuel("Electric"))
	provider := &fakeProvider{listings: []models.Listing{untagged, electric}}
	svc := newTestService(provider, nil)

	res, err := svc.Search(context.Background(), FilterCriteria{FuelType: "Gasoline"})
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalCount != 1 || res.Listings[0].ID != untagged.ID {
		t.Fatalf("untagged fuel type should match Gasoline, got %d results", res.TotalCount)
	}
}

func TestRadiusFilterAndDistanceOrdering(t *testing.T) {
	far := car("Toyota", "Camry", withZip("98101"))
	near := car("Toyota", "Camry", withZip("30305"))
	unknown := car("Toyota", "Camry", withZip("00000"))
	provider := &fakeProvider{listings: []models.Listing{far, near, unknown}}
	resolver := &fakeResolver{miles: map[string]float64{"98101": 2100, "30305": 6}}
	svc := newTestService(provider, resolver)

	res, err := svc.Search(context.Background(), FilterCriteria{Make: "Toyota", Zip: "30301", RadiusMiles: 50})
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalCount != 1 || res.Listings[0].ID != near.ID {
		t.Fatalf("radius filter should keep only the near listing, got %d results", res.TotalCount)
	}

	// Without a radius, ZIP sorts by distance with unresolved last.
	res, err = svc.Search(context.Background(), FilterCriteria{Make: "Toyota", Zip: "30301"})
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalCount != 3 {
		t.Fatalf("no-radius query should keep all, got %d", res.TotalCount)
	}
	order := []models.ScoredListing{res.Listings[0], res.Listings[1], res.Listings[2]}
	if order[0].ID != near.ID || order[1].ID != far.ID || order[2].ID != unknown.ID {
		t.Fatal("expected distance ascending with nil distance last")
	}
}

func TestCollaboratorFailureIsUnavailableNotEmpty(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection refused")}
	svc := newTestService(provider, nil)

	_, err := svc.Search(context.Background(), FilterCriteria{Make: "Toyota"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}

	resolver := &fakeResolver{err: errors.New("geo service down")}
	svc = newTestService(&fakeProvider{listings: []models.Listing{car("Toyota", "Camry")}}, resolver)
	_, err = svc.Search(context.Background(), FilterCriteria{Make: "Toyota", Zip: "30301"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable from resolver failure, got %v", err)
	}
}

func TestDegradeStopsOnCancelledContext(t *testing.T) {
	provider := &fakeProvider{}
	svc := newTestService(provider, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.degrade(ctx, FilterCriteria{Make: "Toyota"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("cancelled degradation should surface as unavailable, got %v", err)
	}
}
