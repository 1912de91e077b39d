package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/car-finder/internal/db"
)

// Prints the most recent feed ingestion runs.
func main() {
	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `
		SELECT source_id, status, items_found, items_saved, errors, started_at, completed_at
		FROM ingest_runs
		ORDER BY started_at DESC
		LIMIT 20`)
	if err != nil {
		log.Fatal(err)
	}
	defer rows.Close()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Feed", "Status", "Found", "Saved", "Errors", "Duration", "Started"})

	for rows.Next() {
		var sourceID, status string
		var found, saved, errs int
		var startedAt time.Time
		var completedAt *time.Time

		if err := rows.Scan(&sourceID, &status, &found, &saved, &errs, &startedAt, &completedAt); err != nil {
			log.Printf("Scan error: %v", err)
			continue
		}

		duration := "running"
		if completedAt != nil {
			duration = completedAt.Sub(startedAt).Round(time.Second).String()
		}

		t.AppendRow(table.Row{sourceID, status, found, saved, errs, duration, startedAt.Format("Jan 02 15:04")})
	}
	t.Render()
}
