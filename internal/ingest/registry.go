package ingest

import (
	"embed"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed config/feeds.yaml
var feedsYAML embed.FS

// Registry holds the configuration for all inventory feeds.
type Registry struct {
	Sources []SourceConfig `yaml:"sources"`
}

// FetchConfig tunes HTTP fetching for a source.
type FetchConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"` // default 30
	RateLimitRPS   float64 `yaml:"rate_limit_rps,omitempty"`  // default 1.0
	UserAgent      string  `yaml:"user_agent,omitempty"`
}

// SelectorConfig drives the generic HTML strategy: CSS selectors into a
// dealer inventory page.
type SelectorConfig struct {
	Container string `yaml:"container"` // wrapper of one vehicle card
	Title     string `yaml:"title,omitempty"`
	Price     string `yaml:"price,omitempty"`
	Mileage   string `yaml:"mileage,omitempty"`
	VIN       string `yaml:"vin,omitempty"`
	StockNo   string `yaml:"stock_no,omitempty"`
	Link      string `yaml:"link,omitempty"`
	LinkAttr  string `yaml:"link_attr,omitempty"` // default href
	Photo     string `yaml:"photo,omitempty"`
	NextPage  string `yaml:"next_page,omitempty"`
}

// SourceConfig defines a single dealer inventory feed.
type SourceConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	DealerID string `yaml:"dealer_id"` // uuid of the dealer the feed belongs to
	Strategy string `yaml:"strategy"`  // "csv_feed" or "html_generic"
	URL      string `yaml:"url"`
	City     string `yaml:"city,omitempty"`
	State    string `yaml:"state,omitempty"`
	Zip      string `yaml:"zip,omitempty"`

	Fetch     FetchConfig    `yaml:"fetch,omitempty"`
	Selectors SelectorConfig `yaml:"selectors,omitempty"`
	MaxPages  int            `yaml:"max_pages,omitempty"`

	// Column mapping for csv_feed; keys are RawVehicle field names in
	// snake_case, values are CSV header names.
	Columns map[string]string `yaml:"columns,omitempty"`
}

// LoadRegistry reads the embedded feeds.yaml, falling back to the given
// path for local development. Environment references like ${FEED_TOKEN}
// are expanded before parsing.
func LoadRegistry(path string) (*Registry, error) {
	data, err := feedsYAML.ReadFile("config/feeds.yaml")
	if err != nil {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}
