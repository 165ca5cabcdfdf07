package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"insider-tracker/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleTrade(ticker string, filing time.Time, tradeType types.TradeType) types.TradeRecord {
	price := 100.0
	return types.TradeRecord{
		FilingDate:     filing,
		TradeDate:      filing.Truncate(24 * time.Hour),
		Ticker:         ticker,
		CompanyName:    ticker + " Corp",
		InsiderName:    "Doe Jane",
		InsiderTitle:   "CFO",
		TradeType:      tradeType,
		Price:          &price,
		Quantity:       1000,
		Value:          100000,
		SourceCategory: "purchases",
	}
}

func TestUpsertTradeIdempotent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	filing := time.Date(2024, 3, 15, 16, 31, 22, 0, time.UTC)
	rec := sampleTrade("AAPL", filing, types.TradePurchase)

	if err := st.UpsertTrade(ctx, rec); err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}

	// Same natural key with revised figures overwrites in place.
	newPrice := 105.5
	rec.Price = &newPrice
	rec.Value = 105500
	if err := st.UpsertTrade(ctx, rec); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	trades, err := st.TradesByCategory(ctx, "purchases", 10)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("Expected 1 row after double upsert, got %d", len(trades))
	}
	if trades[0].Price == nil || *trades[0].Price != 105.5 {
		t.Errorf("Expected revised price 105.5, got %v", trades[0].Price)
	}
	if trades[0].Value != 105500 {
		t.Errorf("Expected revised value, got %f", trades[0].Value)
	}
}

func TestUpsertTradeRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	filing := time.Date(2024, 3, 15, 16, 31, 22, 0, time.UTC)
	rec := sampleTrade("MSFT", filing, types.TradeSale)
	owned := int64(50000)
	perf := -3.2
	rec.SharesOwnedAfter = &owned
	rec.DeltaOwn = "-5%"
	rec.FilingFlag = types.FlagMultiple
	rec.Perf1W = &perf

	if err := st.UpsertTrade(ctx, rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	trades, err := st.TradesByCategory(ctx, "purchases", 10)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(trades))
	}

	got := trades[0]
	if !got.FilingDate.Equal(filing) {
		t.Errorf("Expected filing date %v, got %v", filing, got.FilingDate)
	}
	if got.TradeType != types.TradeSale {
		t.Errorf("Expected trade type S, got %s", got.TradeType)
	}
	if got.SharesOwnedAfter == nil || *got.SharesOwnedAfter != 50000 {
		t.Errorf("Expected owned 50000, got %v", got.SharesOwnedAfter)
	}
	if got.DeltaOwn != "-5%" {
		t.Errorf("Expected delta own preserved, got %q", got.DeltaOwn)
	}
	if got.FilingFlag != types.FlagMultiple {
		t.Errorf("Expected filing flag M, got %q", got.FilingFlag)
	}
	if got.Perf1W == nil || *got.Perf1W != -3.2 {
		t.Errorf("Expected perf 1w -3.2, got %v", got.Perf1W)
	}
	if got.Perf1D != nil {
		t.Errorf("Expected nil perf 1d, got %v", got.Perf1D)
	}
}

func TestTradesByCategoryOrderingAndLimit(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := sampleTrade("T"+string(rune('A'+i)), base.AddDate(0, 0, i), types.TradePurchase)
		if err := st.UpsertTrade(ctx, rec); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	trades, err := st.TradesByCategory(ctx, "purchases", 3)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(trades) != 3 {
		t.Fatalf("Expected limit of 3, got %d", len(trades))
	}
	if trades[0].Ticker != "TE" {
		t.Errorf("Expected newest filing first, got %s", trades[0].Ticker)
	}
	for i := 1; i < len(trades); i++ {
		if trades[i].FilingDate.After(trades[i-1].FilingDate) {
			t.Error("Expected descending filing date order")
		}
	}
}

func TestRecentTradesSpansCategories(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	filing := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	a := sampleTrade("AAA", filing, types.TradePurchase)
	b := sampleTrade("BBB", filing.Add(time.Hour), types.TradeSale)
	b.SourceCategory = "sales"

	if err := st.UpsertTrade(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertTrade(ctx, b); err != nil {
		t.Fatal(err)
	}

	trades, err := st.RecentTrades(ctx, 10)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("Expected 2 rows across categories, got %d", len(trades))
	}
	if trades[0].Ticker != "BBB" {
		t.Errorf("Expected newest filing first, got %s", trades[0].Ticker)
	}
}

func TestInsightDailyUniqueness(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	ins := types.InsightSummary{
		Day:       "2024-03-15",
		Headline:  "Buying outweighs selling",
		Summary:   "Summary text.",
		Sentiment: "bullish",
		NotableBuys: []types.NotableTrade{
			{Ticker: "AAPL", Company: "consumer tech", Activity: "CEO bought $100k"},
		},
	}

	if err := st.InsertInsight(ctx, ins); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if err := st.InsertInsight(ctx, ins); err == nil {
		t.Fatal("Expected UNIQUE(day) violation on second insert")
	}

	got, err := st.InsightForDay(ctx, "2024-03-15")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected stored insight")
	}
	if got.Headline != ins.Headline {
		t.Errorf("Expected headline %q, got %q", ins.Headline, got.Headline)
	}
	if len(got.NotableBuys) != 1 || got.NotableBuys[0].Ticker != "AAPL" {
		t.Errorf("Expected notable buys to round-trip, got %+v", got.NotableBuys)
	}

	if missing, err := st.InsightForDay(ctx, "2024-03-16"); err != nil || missing != nil {
		t.Errorf("Expected nil for missing day, got %v, %v", missing, err)
	}

	latest, err := st.LatestInsight(ctx)
	if err != nil || latest == nil {
		t.Fatalf("Expected latest insight, got %v, %v", latest, err)
	}
	if latest.Day != "2024-03-15" {
		t.Errorf("Expected latest day 2024-03-15, got %s", latest.Day)
	}
}

func TestInsightCorruptNotableListsSurface(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, err := st.db.ExecContext(ctx, `
INSERT INTO insider_insights (day, headline, summary, notable_buys, notable_sells, sentiment)
VALUES ('2024-03-15', 'H', 'S', 'not json', '[]', 'neutral')`)
	if err != nil {
		t.Fatalf("Raw insert failed: %v", err)
	}

	if _, err := st.InsightForDay(ctx, "2024-03-15"); err == nil {
		t.Error("Expected decode error for corrupted notable_buys")
	}
	if _, err := st.LatestInsight(ctx); err == nil {
		t.Error("Expected decode error from latest read as well")
	}
}

func TestSyncRunGate(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	ran, err := st.SyncRanOn(ctx, "2024-03-15")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if ran {
		t.Error("Expected no sync recorded yet")
	}

	if err := st.RecordSyncRun(ctx, "2024-03-15", "cron", 120, 30); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	ran, err = st.SyncRanOn(ctx, "2024-03-15")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !ran {
		t.Error("Expected sync to be recorded for the day")
	}
}

func TestQuoteUpsertAndRead(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	q := types.Quote{
		Symbol:        "AAPL",
		Price:         190.5,
		Change:        1.2,
		ChangePercent: 0.63,
		Currency:      "USD",
		UpdatedAt:     time.Date(2024, 3, 15, 20, 0, 0, 0, time.UTC),
	}
	if err := st.UpsertQuote(ctx, q); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	q.Price = 191.0
	if err := st.UpsertQuote(ctx, q); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	got, err := st.QuoteFor(ctx, "AAPL")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected cached quote")
	}
	if got.Price != 191.0 {
		t.Errorf("Expected updated price 191.0, got %f", got.Price)
	}
	if got.Currency != "USD" {
		t.Errorf("Expected currency USD, got %s", got.Currency)
	}

	if missing, err := st.QuoteFor(ctx, "ZZZZ"); err != nil || missing != nil {
		t.Errorf("Expected nil for unknown symbol, got %v, %v", missing, err)
	}
}
