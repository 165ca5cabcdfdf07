package syncer

import (
	"context"
	"sync"
	"time"

	"insider-tracker/internal/insight"
	"insider-tracker/internal/logger"
	"insider-tracker/internal/store"
	"insider-tracker/internal/types"
)

// Fetcher retrieves one category's normalized records. Failures surface
// as an empty slice, never an error, so one category cannot abort a
// fan-out.
type Fetcher interface {
	FetchCategory(ctx context.Context, category string, seed bool) []types.TradeRecord
}

// Persister is the subset of the storage layer the orchestrator needs.
type Persister interface {
	UpsertTrades(ctx context.Context, recs []types.TradeRecord) int
	RecordSyncRun(ctx context.Context, day, source string, scraped, inserted int) error
	SyncRanOn(ctx context.Context, day string) (bool, error)
}

// InsightTrigger regenerates the daily insight after a cron sync.
type InsightTrigger interface {
	GetOrGenerate(ctx context.Context) (*types.InsightSummary, bool, error)
	RecentStats(ctx context.Context) (types.TradeStats, error)
}

// QuoteRefresher refreshes market prices for a symbol list. Implementations
// are expected to serialize their external calls.
type QuoteRefresher interface {
	RefreshSymbols(ctx context.Context, symbols []string) (updated, failed int)
}

// Orchestrator coordinates category fan-out, persistence and the
// post-sync insight and quote refresh triggers.
type Orchestrator struct {
	fetcher    Fetcher
	persister  Persister
	insights   InsightTrigger // optional
	quotes     QuoteRefresher // optional
	categories []string
	now        func() time.Time
}

func New(fetcher Fetcher, persister Persister, insights InsightTrigger, quotes QuoteRefresher, cfg *store.Config) *Orchestrator {
	return &Orchestrator{
		fetcher:    fetcher,
		persister:  persister,
		insights:   insights,
		quotes:     quotes,
		categories: cfg.Scrape.SyncCategories,
		now:        time.Now,
	}
}

// SyncAll fetches every sync category concurrently, concatenates the
// results and upserts them. A category yielding nothing is logged and
// skipped; the pass only counts what the successful categories produced.
// Zero rows across all categories is a no-op result, not an error.
func (o *Orchestrator) SyncAll(ctx context.Context, seed bool, source string) types.SyncResult {
	timer := logger.StartOperation(ctx, "sync-all", "source", source, "seed", seed, "categories", len(o.categories))
	ctx = timer.GetContext()

	results := make([][]types.TradeRecord, len(o.categories))
	var wg sync.WaitGroup
	for i, category := range o.categories {
		wg.Add(1)
		go func(i int, category string) {
			defer wg.Done()
			results[i] = o.fetcher.FetchCategory(ctx, category, seed)
		}(i, category)
	}
	wg.Wait()

	perCategory := make(map[string]int, len(o.categories))
	var all []types.TradeRecord
	for i, category := range o.categories {
		perCategory[category] = len(results[i])
		all = append(all, results[i]...)
	}

	res := types.SyncResult{
		Scraped:     len(all),
		PerCategory: perCategory,
		Timestamp:   o.now().UTC(),
	}

	if len(all) == 0 {
		logger.Warn(ctx, "No categories yielded data", "source", source)
		res.Skipped = true
		timer.End("scraped", 0)
		return res
	}

	res.Inserted = o.persister.UpsertTrades(ctx, all)

	day := res.Timestamp.Format("2006-01-02")
	if err := o.persister.RecordSyncRun(ctx, day, source, res.Scraped, res.Inserted); err != nil {
		logger.ErrorWithErr(ctx, "Failed to record sync run", err, "day", day)
	}

	logger.Sync(ctx, source, res.Scraped, res.Inserted)
	timer.End("scraped", res.Scraped, "inserted", res.Inserted)
	return res
}

// SyncCategory runs a single-category sync (manual or seed path).
func (o *Orchestrator) SyncCategory(ctx context.Context, category string, seed bool, source string) types.SyncResult {
	records := o.fetcher.FetchCategory(ctx, category, seed)

	res := types.SyncResult{
		Scraped:     len(records),
		PerCategory: map[string]int{category: len(records)},
		Timestamp:   o.now().UTC(),
	}
	if len(records) == 0 {
		res.Skipped = true
		return res
	}

	res.Inserted = o.persister.UpsertTrades(ctx, records)
	logger.Sync(ctx, source, res.Scraped, res.Inserted)
	return res
}

// RunCron is the scheduled entry point. It is idempotent per day: when a
// sync already completed today the pass reports a no-op without fetching.
// After a successful sync it triggers insight regeneration and a quote
// refresh for cluster tickers; both are best-effort.
func (o *Orchestrator) RunCron(ctx context.Context) types.SyncResult {
	day := o.now().UTC().Format("2006-01-02")

	ran, err := o.persister.SyncRanOn(ctx, day)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to check sync history, proceeding", err, "day", day)
	}
	if ran {
		logger.Info(ctx, "Sync already ran today, skipping", "day", day)
		return types.SyncResult{Skipped: true, Timestamp: o.now().UTC()}
	}

	res := o.SyncAll(ctx, false, "cron")
	if res.Scraped == 0 {
		return res
	}

	if o.insights != nil {
		if ins, cached, err := o.insights.GetOrGenerate(ctx); err != nil {
			logger.ErrorWithErr(ctx, "Failed to generate daily insight", err)
		} else if ins != nil && !cached {
			logger.Info(ctx, "Daily insight generated", "day", day)
		}
	}

	o.refreshClusterQuotes(ctx)
	return res
}

// refreshClusterQuotes updates cached prices for the tickers currently
// flagged as clusters.
func (o *Orchestrator) refreshClusterQuotes(ctx context.Context) {
	if o.quotes == nil || o.insights == nil {
		return
	}

	stats, err := o.insights.RecentStats(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to compute stats for quote refresh", err)
		return
	}

	symbols := insight.ClusterTickers(stats)
	if len(symbols) == 0 {
		return
	}

	updated, failed := o.quotes.RefreshSymbols(ctx, symbols)
	logger.Info(ctx, "Cluster quote refresh finished", "updated", updated, "failed", failed)
}
