package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/david/car-finder/internal/api"
	"github.com/david/car-finder/internal/auth"
	"github.com/david/car-finder/internal/db"
	"github.com/david/car-finder/internal/deals"
	"github.com/david/car-finder/internal/geo"
	"github.com/david/car-finder/internal/ingest"
	"github.com/david/car-finder/internal/search"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	store := db.NewStore(pool)

	searchService := search.NewService(store, geo.NewZipResolver(store), search.Config{
		DefaultPageSize: envInt("SEARCH_PAGE_SIZE"),
		FallbackPreview: envInt("SEARCH_FALLBACK_PREVIEW"),
	})

	dealService := deals.NewService(selectionStore(ctx), store, deals.LogNotifier{}, deals.Config{
		MaxCars: envInt("DEAL_MAX_CARS"),
	})

	registry, err := ingest.LoadRegistry("internal/ingest/config/feeds.yaml")
	if err != nil {
		log.Fatalf("Failed to load feed registry: %v", err)
	}
	pipeline := ingest.NewPipeline(store, registry)

	srv := api.NewServer(store, auth.NewService(pool), searchService, dealService, pipeline)
	log.Printf("Server starting on port %s...", port)
	if err := srv.Start(port); err != nil {
		log.Fatal(err)
	}
}

// envInt reads an integer override; 0 means "use the code default".
func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return 0
	}
	return v
}

// selectionStore returns the Redis-backed selection store when REDIS_URL is
// configured; otherwise selections live in process memory and do not
// survive a restart.
func selectionStore(ctx context.Context) deals.SelectionStore {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		log.Print("REDIS_URL is not set; deal selections are in-memory only")
		return deals.NewMemorySelectionStore()
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Redis unreachable: %v", err)
	}
	return deals.NewRedisSelectionStore(client)
}
