package scrape

import (
	"context"
	"errors"
	"time"

	"github.com/gocolly/colly/v2"

	"insider-tracker/internal/logger"
	"insider-tracker/internal/store"
	"insider-tracker/internal/types"
)

// Fetcher retrieves category feeds and turns them into normalized trade
// records. The category table is injected configuration, not a global.
type Fetcher struct {
	categories       map[string]store.CategoryConfig
	userAgent        string
	timeout          time.Duration
	incrementalLimit int
	seedLimit        int
}

// NewFetcher creates a fetcher from the scrape section of the config.
func NewFetcher(cfg *store.Config) *Fetcher {
	return &Fetcher{
		categories:       cfg.Scrape.Categories,
		userAgent:        cfg.Scrape.UserAgent,
		timeout:          time.Duration(cfg.Scrape.TimeoutSeconds) * time.Second,
		incrementalLimit: cfg.Scrape.IncrementalLimit,
		seedLimit:        cfg.Scrape.SeedLimit,
	}
}

// FetchCategory fetches one category and returns its normalized records.
// Seed mode uses the bulk screener URL (when the category has one) and the
// larger page limit. Any fetch failure yields an empty slice and a log
// line; it must never abort sibling categories in a fan-out.
func (f *Fetcher) FetchCategory(ctx context.Context, category string, seed bool) []types.TradeRecord {
	cat, ok := f.categories[category]
	if !ok {
		logger.Warn(ctx, "Unknown scrape category", "category", category)
		return nil
	}

	url := cat.FeedURL
	limit := f.incrementalLimit
	if seed {
		limit = f.seedLimit
		if cat.ScreenerURL != "" {
			url = cat.ScreenerURL
		}
	}

	html, err := f.fetchHTML(ctx, url)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to fetch category feed", err, "category", category, "url", url)
		return nil
	}

	defaultType := types.TradeType(cat.DefaultType)
	rows := ExtractRows(html)

	records := make([]types.TradeRecord, 0, len(rows))
	for _, row := range rows {
		rec, ok := NormalizeRow(row, defaultType, category)
		if !ok {
			continue
		}
		records = append(records, rec)
		if len(records) >= limit {
			break
		}
	}

	logger.Scrape(ctx, category, url, len(records), "seed", seed)
	return records
}

// fetchHTML retrieves one page with a browser-like user agent.
func (f *Fetcher) fetchHTML(ctx context.Context, url string) (string, error) {
	c := colly.NewCollector(
		colly.MaxDepth(1),
		colly.Async(false),
	)
	c.SetRequestTimeout(f.timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", f.userAgent)
		r.Headers.Set("Accept", "text/html")
	})

	var (
		body     string
		fetchErr error
	)

	c.OnResponse(func(r *colly.Response) {
		body = string(r.Body)
	})

	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(url); err != nil {
		return "", err
	}
	c.Wait()

	if fetchErr != nil {
		return "", fetchErr
	}
	if body == "" {
		return "", errors.New("empty response body")
	}
	return body, nil
}
