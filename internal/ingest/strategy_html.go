package ingest

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// HTMLGenericStrategy crawls a dealer's inventory pages using the CSS
// selectors configured for the source. Works for the common "grid of
// vehicle cards plus next-page link" layout without per-dealer code.
type HTMLGenericStrategy struct{}

func (s *HTMLGenericStrategy) Run(ctx context.Context, config SourceConfig, p *Pipeline) (IngestionStats, error) {
	stats := IngestionStats{}

	sel := config.Selectors
	if sel.Container == "" {
		return stats, fmt.Errorf("selector 'container' is required for html_generic strategy")
	}

	parsedURL, err := url.Parse(config.URL)
	if err != nil {
		return stats, fmt.Errorf("invalid source URL: %w", err)
	}

	maxPages := config.MaxPages
	if maxPages == 0 {
		maxPages = 1
	}

	userAgent := config.Fetch.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsedURL.Host),
		colly.UserAgent(userAgent),
		colly.DetectCharset(),
	)

	delay := 1 * time.Second
	if config.Fetch.RateLimitRPS > 0 {
		delay = time.Duration(float64(time.Second) / config.Fetch.RateLimitRPS)
	}
	collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       delay,
	})

	timeout := 30 * time.Second
	if config.Fetch.TimeoutSeconds > 0 {
		timeout = time.Duration(config.Fetch.TimeoutSeconds) * time.Second
	}
	collector.SetRequestTimeout(timeout)

	var nextPageURL string

	collector.OnHTML(sel.Container, func(e *colly.HTMLElement) {
		raw := extractVehicle(e, sel)
		if raw.Make == "" && raw.VIN == "" {
			return
		}
		stats.TotalFound++

		if err := p.SaveVehicle(ctx, raw, config); err != nil {
			log.Printf("[%s] failed to save %s %s: %v", config.ID, raw.Make, raw.Model, err)
			stats.Errors++
		} else {
			stats.TotalSaved++
		}
	})

	if sel.NextPage != "" {
		collector.OnHTML(sel.NextPage, func(e *colly.HTMLElement) {
			nextPageURL = e.Request.AbsoluteURL(e.Attr("href"))
		})
	}

	collector.OnError(func(r *colly.Response, err error) {
		log.Printf("[%s] error fetching %s: %v", config.ID, r.Request.URL, err)
		stats.Errors++
	})

	visited := make(map[string]bool)
	currentURL := config.URL

	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if visited[currentURL] {
			log.Printf("[%s] pagination cycle detected at %s, stopping", config.ID, currentURL)
			break
		}
		visited[currentURL] = true
		nextPageURL = ""

		log.Printf("[%s] fetching page %d: %s", config.ID, page+1, currentURL)
		if err := collector.Visit(currentURL); err != nil {
			if page == 0 {
				return stats, fmt.Errorf("fetch %s: %w", currentURL, err)
			}
			log.Printf("[%s] fetch error on page %d: %v", config.ID, page+1, err)
			break
		}
		collector.Wait()

		if nextPageURL == "" || sel.NextPage == "" {
			break
		}
		currentURL = nextPageURL
	}

	return stats, nil
}

// extractVehicle pulls one RawVehicle out of a card element. The title
// selector carries "2021 Toyota Camry XSE" style headings that fill
// year/make/model/trim when no per-field selectors exist.
func extractVehicle(e *colly.HTMLElement, sel SelectorConfig) RawVehicle {
	raw := RawVehicle{
		VIN:      strings.TrimSpace(e.ChildText(sel.VIN)),
		SourceID: strings.TrimSpace(e.ChildText(sel.StockNo)),
		Price:    strings.TrimSpace(e.ChildText(sel.Price)),
		Mileage:  strings.TrimSpace(e.ChildText(sel.Mileage)),
	}

	if sel.Title != "" {
		raw.Year, raw.Make, raw.Model, raw.Trim = parseTitle(e.ChildText(sel.Title))
	}

	if sel.Link != "" {
		linkAttr := sel.LinkAttr
		if linkAttr == "" {
			linkAttr = "href"
		}
		if link := strings.TrimSpace(e.ChildAttr(sel.Link, linkAttr)); link != "" {
			raw.DetailURL = e.Request.AbsoluteURL(link)
		}
	}

	if sel.Photo != "" {
		e.DOM.Find(sel.Photo).Each(func(_ int, img *goquery.Selection) {
			src, ok := img.Attr("src")
			if !ok {
				src, ok = img.Attr("data-src")
			}
			if ok && src != "" {
				raw.PhotoURLs = append(raw.PhotoURLs, e.Request.AbsoluteURL(src))
			}
		})
	}

	return raw
}
