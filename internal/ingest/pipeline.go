package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/david/car-finder/internal/models"
)

// ListingStore is the slice of the database layer the pipeline needs.
type ListingStore interface {
	UpsertListing(ctx context.Context, l models.Listing, sourceID string) (uuid.UUID, error)
	StartIngestRun(ctx context.Context, sourceID string) (uuid.UUID, error)
	FinishIngestRun(ctx context.Context, runID uuid.UUID, status string, found, saved, errorCount int) error
}

// Pipeline wires feed strategies to the listing store.
type Pipeline struct {
	Store    ListingStore
	Registry *Registry
	Factory  *StrategyFactory
}

func NewPipeline(store ListingStore, reg *Registry) *Pipeline {
	return &Pipeline{
		Store:    store,
		Registry: reg,
		Factory:  GlobalStrategyFactory,
	}
}

// SaveVehicle normalizes one raw record and upserts it. Called by
// strategies for every vehicle they extract.
func (p *Pipeline) SaveVehicle(ctx context.Context, raw RawVehicle, cfg SourceConfig) error {
	dealerID, err := uuid.Parse(cfg.DealerID)
	if err != nil {
		return fmt.Errorf("source %s has invalid dealer_id: %w", cfg.ID, err)
	}

	listing, err := NormalizeVehicle(raw, dealerID, cfg)
	if err != nil {
		return err
	}

	sourceID := raw.SourceID
	if sourceID == "" {
		sourceID = listing.VIN
	}
	if sourceID == "" {
		return fmt.Errorf("vehicle from %s has neither stock number nor VIN", cfg.ID)
	}

	if _, err := p.Store.UpsertListing(ctx, listing, cfg.ID+":"+sourceID); err != nil {
		return fmt.Errorf("upsert %s: %w", sourceID, err)
	}
	return nil
}

// RunSource ingests one configured source by id, recording the run.
func (p *Pipeline) RunSource(ctx context.Context, sourceID string) (IngestionStats, error) {
	var cfg SourceConfig
	found := false
	for _, c := range p.Registry.Sources {
		if c.ID == sourceID {
			cfg, found = c, true
			break
		}
	}
	if !found {
		return IngestionStats{}, fmt.Errorf("unknown source: %s", sourceID)
	}

	strategy, err := p.Factory.Get(cfg.Strategy)
	if err != nil {
		return IngestionStats{}, err
	}

	runID, runErr := p.Store.StartIngestRun(ctx, cfg.ID)
	if runErr != nil {
		log.Printf("[warn] could not record ingest run for %s: %v", cfg.ID, runErr)
	}

	start := time.Now()
	log.Printf("Ingesting %s (%s) via %s", cfg.ID, cfg.Name, cfg.Strategy)

	stats, err := strategy.Run(ctx, cfg, p)

	status := "completed"
	if err != nil || (stats.TotalFound > 0 && stats.TotalSaved == 0) {
		status = "failed"
	}
	if runErr == nil {
		if ferr := p.Store.FinishIngestRun(ctx, runID, status, stats.TotalFound, stats.TotalSaved, stats.Errors); ferr != nil {
			log.Printf("[warn] could not finish ingest run for %s: %v", cfg.ID, ferr)
		}
	}

	log.Printf("Ingest %s: %d found, %d saved, %d errors in %s",
		cfg.ID, stats.TotalFound, stats.TotalSaved, stats.Errors, time.Since(start).Round(time.Millisecond))
	return stats, err
}

// RunAll ingests every configured source, continuing past per-source
// failures.
func (p *Pipeline) RunAll(ctx context.Context) IngestionStats {
	var total IngestionStats
	for _, cfg := range p.Registry.Sources {
		stats, err := p.RunSource(ctx, cfg.ID)
		if err != nil {
			log.Printf("[error] source %s failed: %v", cfg.ID, err)
		}
		total.TotalFound += stats.TotalFound
		total.TotalSaved += stats.TotalSaved
		total.Errors += stats.Errors
	}
	return total
}
