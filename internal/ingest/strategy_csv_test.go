package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/david/car-finder/internal/models"
)

type memStore struct {
	saved []models.Listing
	keys  []string
}

func (m *memStore) UpsertListing(_ context.Context, l models.Listing, sourceID string) (uuid.UUID, error) {
	m.saved = append(m.saved, l)
	m.keys = append(m.keys, sourceID)
	return uuid.New(), nil
}

func (m *memStore) StartIngestRun(context.Context, string) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (m *memStore) FinishIngestRun(context.Context, uuid.UUID, string, int, int, int) error {
	return nil
}

const testCSV = `StockNumber,VIN,Year,Make,Model,Trim,Miles,Body,FuelType,NewUsed,SellingPrice,PhotoURLs
A100,4T1BZ1HK5KU000001,2021,Toyota,Camry,XSE,"31,250",4D Sedan,Gas,U,"$27,995",https://cdn.example/a.jpg|https://cdn.example/b.jpg
A101,5TDGZRBH3MS000002,2023,Toyota,Highlander,,12,Sport Utility,Gas,N,,
,,,,Civic,,,,,,
`

func csvSource(url string) SourceConfig {
	return SourceConfig{
		ID:       "test_csv",
		DealerID: uuid.NewString(),
		Strategy: "csv_feed",
		URL:      url,
		City:     "Spokane",
		State:    "WA",
		Zip:      "99208",
		Columns: map[string]string{
			"source_id": "StockNumber",
			"vin":       "VIN",
			"year":      "Year",
			"make":      "Make",
			"model":     "Model",
			"trim":      "Trim",
			"mileage":   "Miles",
			"body_type": "Body",
			"fuel_type": "FuelType",
			"condition": "NewUsed",
			"price":     "SellingPrice",
			"photos":    "PhotoURLs",
		},
	}
}

func TestCSVFeedStrategy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testCSV))
	}))
	defer srv.Close()

	store := &memStore{}
	cfg := csvSource(srv.URL)
	p := NewPipeline(store, &Registry{Sources: []SourceConfig{cfg}})

	stats, err := (&CSVFeedStrategy{}).Run(context.Background(), cfg, p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if stats.TotalFound != 3 {
		t.Errorf("TotalFound = %d, want 3", stats.TotalFound)
	}
	// Third row has no year/make, so it is counted but not saved.
	if stats.TotalSaved != 2 || stats.Errors != 1 {
		t.Errorf("saved/errors = %d/%d, want 2/1", stats.TotalSaved, stats.Errors)
	}

	camry := store.saved[0]
	if camry.Make != "Toyota" || camry.Model != "Camry" || camry.Price != 27995 || camry.Mileage != 31250 {
		t.Errorf("camry fields: %+v", camry)
	}
	if camry.BodyType != "Sedan" || camry.Condition != "used" {
		t.Errorf("camry canonical fields: %q %q", camry.BodyType, camry.Condition)
	}
	if len(camry.Photos) != 2 {
		t.Errorf("camry photos = %v", camry.Photos)
	}
	if camry.City != "Spokane" || camry.Zip != "99208" {
		t.Errorf("source location defaults not applied: %q %q", camry.City, camry.Zip)
	}
	if store.keys[0] != "test_csv:A100" {
		t.Errorf("upsert key = %q", store.keys[0])
	}

	highlander := store.saved[1]
	if highlander.Price != 0 {
		t.Errorf("empty price should become call-for-price 0, got %d", highlander.Price)
	}
	if highlander.Condition != "new" {
		t.Errorf("NewUsed=N should normalize to new, got %q", highlander.Condition)
	}
}

func TestCSVFeedStrategyBadMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Foo,Bar\n1,2\n"))
	}))
	defer srv.Close()

	cfg := csvSource(srv.URL)
	p := NewPipeline(&memStore{}, &Registry{Sources: []SourceConfig{cfg}})

	if _, err := (&CSVFeedStrategy{}).Run(context.Background(), cfg, p); err == nil {
		t.Fatal("expected error when the make column is missing from the header")
	}
}

func TestCSVFeedStrategyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := csvSource(srv.URL)
	p := NewPipeline(&memStore{}, &Registry{Sources: []SourceConfig{cfg}})

	if _, err := (&CSVFeedStrategy{}).Run(context.Background(), cfg, p); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

func TestRunSourceUnknown(t *testing.T) {
	p := NewPipeline(&memStore{}, &Registry{})
	if _, err := p.RunSource(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown source id")
	}
}
