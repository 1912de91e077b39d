// Package ingest pulls dealer inventory feeds into the listing store. Each
// feed is described in feeds.yaml and processed by a strategy: a CSV export
// (DealerSocket-style) or a selector-driven crawl of a dealer website.
package ingest

import (
	"context"
	"fmt"
)

// RawVehicle is the untrusted, unnormalized record extracted from a feed.
// Everything is a string; the normalizer coerces and canonicalizes.
type RawVehicle struct {
	SourceID    string // feed-local identity, usually stock number or VIN
	VIN         string
	Year        string
	Make        string
	Model       string
	Trim        string
	Mileage     string
	Color       string
	BodyType    string
	FuelType    string
	Condition   string
	Price       string
	City        string
	State       string
	Zip         string
	Description string // may contain dealer HTML
	PhotoURLs   []string
	DetailURL   string
}

// IngestionStats holds metrics about one run.
type IngestionStats struct {
	TotalFound int
	TotalSaved int
	Errors     int
}

// FeedStrategy fetches and parses one configured source, saving vehicles
// through the pipeline.
type FeedStrategy interface {
	Run(ctx context.Context, config SourceConfig, p *Pipeline) (IngestionStats, error)
}

// StrategyFactory maps strategy ids from feeds.yaml to implementations.
type StrategyFactory struct {
	strategies map[string]FeedStrategy
}

func NewStrategyFactory() *StrategyFactory {
	return &StrategyFactory{strategies: make(map[string]FeedStrategy)}
}

func (f *StrategyFactory) Register(id string, strategy FeedStrategy) {
	f.strategies[id] = strategy
}

func (f *StrategyFactory) Get(id string) (FeedStrategy, error) {
	strategy, ok := f.strategies[id]
	if !ok {
		return nil, fmt.Errorf("strategy not found: %s", id)
	}
	return strategy, nil
}

// GlobalStrategyFactory holds the default strategy registrations.
var GlobalStrategyFactory = NewStrategyFactory()

func init() {
	GlobalStrategyFactory.Register("csv_feed", &CSVFeedStrategy{})
	GlobalStrategyFactory.Register("html_generic", &HTMLGenericStrategy{})
}
