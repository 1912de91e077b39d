package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// CSVFeedStrategy ingests a DMS inventory export served over HTTP. The
// source's column map translates its header names into vehicle fields,
// so one strategy covers DealerSocket, vAuto and homegrown exports.
type CSVFeedStrategy struct {
	Client *http.Client // defaults per the source's fetch config
}

func (s *CSVFeedStrategy) Run(ctx context.Context, config SourceConfig, p *Pipeline) (IngestionStats, error) {
	stats := IngestionStats{}

	if len(config.Columns) == 0 {
		return stats, fmt.Errorf("csv_feed source %s has no column mapping", config.ID)
	}

	body, err := s.fetch(ctx, config)
	if err != nil {
		return stats, err
	}
	defer body.Close()

	reader := csv.NewReader(body)
	reader.FieldsPerRecord = -1 // dealer exports are ragged more often than not

	header, err := reader.Read()
	if err != nil {
		return stats, fmt.Errorf("read csv header: %w", err)
	}

	cols := resolveColumns(header, config.Columns)
	if _, ok := cols["make"]; !ok {
		return stats, fmt.Errorf("csv feed %s: mapped column %q not found in header", config.ID, config.Columns["make"])
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("[%s] bad csv row: %v", config.ID, err)
			stats.Errors++
			continue
		}

		raw := vehicleFromRecord(record, cols)
		stats.TotalFound++

		if err := p.SaveVehicle(ctx, raw, config); err != nil {
			log.Printf("[%s] failed to save row: %v", config.ID, err)
			stats.Errors++
		} else {
			stats.TotalSaved++
		}
	}

	return stats, nil
}

func (s *CSVFeedStrategy) fetch(ctx context.Context, config SourceConfig) (io.ReadCloser, error) {
	client := s.Client
	if client == nil {
		timeout := 30 * time.Second
		if config.Fetch.TimeoutSeconds > 0 {
			timeout = time.Duration(config.Fetch.TimeoutSeconds) * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if config.Fetch.UserAgent != "" {
		req.Header.Set("User-Agent", config.Fetch.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", config.URL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %d", config.URL, resp.StatusCode)
	}
	return resp.Body, nil
}

// resolveColumns maps vehicle field names to column indexes. Header
// matching is case-insensitive because exports disagree on casing.
func resolveColumns(header []string, mapping map[string]string) map[string]int {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[strings.ToLower(strings.TrimSpace(h))] = i
	}

	cols := make(map[string]int, len(mapping))
	for field, columnName := range mapping {
		if idx, ok := byName[strings.ToLower(columnName)]; ok {
			cols[field] = idx
		}
	}
	return cols
}

func vehicleFromRecord(record []string, cols map[string]int) RawVehicle {
	get := func(field string) string {
		idx, ok := cols[field]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	raw := RawVehicle{
		SourceID:    get("source_id"),
		VIN:         get("vin"),
		Year:        get("year"),
		Make:        get("make"),
		Model:       get("model"),
		Trim:        get("trim"),
		Mileage:     get("mileage"),
		Color:       get("color"),
		BodyType:    get("body_type"),
		FuelType:    get("fuel_type"),
		Condition:   get("condition"),
		Price:       get("price"),
		City:        get("city"),
		State:       get("state"),
		Zip:         get("zip"),
		Description: get("description"),
	}

	// DMS exports pack photo URLs into one pipe-separated column.
	if photos := get("photos"); photos != "" {
		for _, u := range strings.Split(photos, "|") {
			if u = strings.TrimSpace(u); u != "" {
				raw.PhotoURLs = append(raw.PhotoURLs, u)
			}
		}
	}
	return raw
}
