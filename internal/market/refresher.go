package market

import (
	"context"
	"errors"
	"time"

	"github.com/piquette/finance-go/quote"

	"insider-tracker/internal/logger"
	"insider-tracker/internal/store"
	"insider-tracker/internal/types"
)

// QuoteFunc fetches one market quote. Injectable for tests.
type QuoteFunc func(symbol string) (*types.Quote, error)

// QuoteStore is the subset of the storage layer the refresher writes to.
type QuoteStore interface {
	UpsertQuote(ctx context.Context, q types.Quote) error
}

// Refresher updates cached market prices. External calls are strictly
// serialized with an inter-call delay: the free-tier quota does not
// tolerate parallel requests.
type Refresher struct {
	store      QuoteStore
	fetch      QuoteFunc
	delay      time.Duration
	maxSymbols int
	limiter    *RateLimiter
}

func NewRefresher(st QuoteStore, cfg *store.Config) *Refresher {
	delay := time.Duration(cfg.Market.RefreshDelaySecs) * time.Second
	return &Refresher{
		store:      st,
		fetch:      yahooQuote,
		delay:      delay,
		maxSymbols: cfg.Market.MaxSymbolsPerRun,
		limiter:    NewRateLimiter(1, delay),
	}
}

// RefreshSymbols fetches and caches quotes for the given symbols, one at
// a time. Per-symbol failures are counted, never fatal.
func (r *Refresher) RefreshSymbols(ctx context.Context, symbols []string) (updated, failed int) {
	if len(symbols) > r.maxSymbols && r.maxSymbols > 0 {
		symbols = symbols[:r.maxSymbols]
	}

	for i, symbol := range symbols {
		if err := r.limiter.Wait(ctx); err != nil {
			logger.Warn(ctx, "Quote refresh cancelled", "remaining", len(symbols)-i)
			return updated, failed + len(symbols) - i
		}

		q, err := r.fetch(symbol)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to fetch quote", err, "symbol", symbol)
			failed++
		} else if err := r.store.UpsertQuote(ctx, *q); err != nil {
			logger.ErrorWithErr(ctx, "Failed to cache quote", err, "symbol", symbol)
			failed++
		} else {
			updated++
		}

		// Throttle between sequential calls, not after the last one.
		if i < len(symbols)-1 {
			select {
			case <-ctx.Done():
				return updated, failed + len(symbols) - i - 1
			case <-time.After(r.delay):
			}
		}
	}

	logger.Info(ctx, "Quote refresh complete", "updated", updated, "failed", failed)
	return updated, failed
}

// yahooQuote fetches one quote from Yahoo Finance.
func yahooQuote(symbol string) (*types.Quote, error) {
	q, err := quote.Get(symbol)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, errors.New("no quote returned")
	}
	return &types.Quote{
		Symbol:        q.Symbol,
		Price:         q.RegularMarketPrice,
		Change:        q.RegularMarketChange,
		ChangePercent: q.RegularMarketChangePercent,
		Currency:      q.CurrencyID,
		UpdatedAt:     time.Now().UTC(),
	}, nil
}
