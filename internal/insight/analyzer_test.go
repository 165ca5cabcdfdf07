package insight

import (
	"testing"
	"time"

	"insider-tracker/internal/store"
	"insider-tracker/internal/types"
)

func testAnalyzer() *Analyzer {
	cfg := store.DefaultConfig()
	cfg.Insight.TopTrades = 3
	cfg.Insight.ClusterMin = 2
	cfg.Insight.ClusterTop = 5
	return NewAnalyzer(cfg)
}

func trade(ticker string, tradeType types.TradeType, value float64) types.TradeRecord {
	return types.TradeRecord{
		FilingDate:  time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
		Ticker:      ticker,
		CompanyName: ticker + " Corp",
		InsiderName: "Doe Jane",
		TradeType:   tradeType,
		Value:       value,
	}
}

func TestAggregateCounts(t *testing.T) {
	a := testAnalyzer()

	stats := a.Aggregate([]types.TradeRecord{
		trade("AAA", types.TradePurchase, 100000),
		trade("BBB", types.TradePurchase, 50000),
		trade("CCC", types.TradeSale, 200000),
	})

	if stats.TradeCount != 3 {
		t.Errorf("Expected 3 trades, got %d", stats.TradeCount)
	}
	if stats.BuyCount != 2 || stats.SellCount != 1 {
		t.Errorf("Expected 2 buys and 1 sell, got %d/%d", stats.BuyCount, stats.SellCount)
	}
	if stats.BuyValue != 150000 {
		t.Errorf("Expected buy value 150000, got %f", stats.BuyValue)
	}
	if stats.SellValue != 200000 {
		t.Errorf("Expected sell value 200000, got %f", stats.SellValue)
	}
}

func TestAggregateTopTradesRankedAndCapped(t *testing.T) {
	a := testAnalyzer()

	stats := a.Aggregate([]types.TradeRecord{
		trade("AAA", types.TradePurchase, 10),
		trade("BBB", types.TradePurchase, 40),
		trade("CCC", types.TradePurchase, 30),
		trade("DDD", types.TradePurchase, 20),
	})

	if len(stats.TopBuys) != 3 {
		t.Fatalf("Expected top buys capped at 3, got %d", len(stats.TopBuys))
	}
	if stats.TopBuys[0].Ticker != "BBB" || stats.TopBuys[1].Ticker != "CCC" || stats.TopBuys[2].Ticker != "DDD" {
		t.Errorf("Expected value-ranked order, got %s %s %s",
			stats.TopBuys[0].Ticker, stats.TopBuys[1].Ticker, stats.TopBuys[2].Ticker)
	}
}

func TestAggregateClusterDetection(t *testing.T) {
	a := testAnalyzer()

	// Three buys of X, one sell of X, one buy of Y: only X clusters,
	// and only because of its same-direction buy count.
	stats := a.Aggregate([]types.TradeRecord{
		trade("X", types.TradePurchase, 100),
		trade("X", types.TradePurchase, 200),
		trade("X", types.TradePurchase, 300),
		trade("X", types.TradeSale, 50),
		trade("Y", types.TradePurchase, 999),
	})

	if len(stats.Clusters) != 1 {
		t.Fatalf("Expected 1 cluster, got %d", len(stats.Clusters))
	}
	c := stats.Clusters[0]
	if c.Ticker != "X" {
		t.Errorf("Expected cluster on X, got %s", c.Ticker)
	}
	if c.Buys != 3 || c.Sells != 1 {
		t.Errorf("Expected 3 buys and 1 sell in cluster, got %d/%d", c.Buys, c.Sells)
	}
	if c.TotalValue != 650 {
		t.Errorf("Expected total value 650, got %f", c.TotalValue)
	}
}

func TestAggregateClustersRankedByValueAndCapped(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.Insight.ClusterMin = 2
	cfg.Insight.ClusterTop = 2
	a := NewAnalyzer(cfg)

	var trades []types.TradeRecord
	for _, tc := range []struct {
		ticker string
		value  float64
	}{
		{"LOW", 10},
		{"MID", 100},
		{"HIGH", 1000},
	} {
		trades = append(trades,
			trade(tc.ticker, types.TradePurchase, tc.value),
			trade(tc.ticker, types.TradePurchase, tc.value),
		)
	}

	stats := a.Aggregate(trades)
	if len(stats.Clusters) != 2 {
		t.Fatalf("Expected clusters capped at 2, got %d", len(stats.Clusters))
	}
	if stats.Clusters[0].Ticker != "HIGH" || stats.Clusters[1].Ticker != "MID" {
		t.Errorf("Expected value-ranked clusters, got %s then %s",
			stats.Clusters[0].Ticker, stats.Clusters[1].Ticker)
	}

	symbols := ClusterTickers(stats)
	if len(symbols) != 2 || symbols[0] != "HIGH" {
		t.Errorf("Expected cluster tickers in rank order, got %v", symbols)
	}
}

func TestAggregateEmptyWindow(t *testing.T) {
	a := testAnalyzer()
	stats := a.Aggregate(nil)

	if stats.TradeCount != 0 || stats.BuyCount != 0 || stats.SellCount != 0 {
		t.Errorf("Expected zeroed stats, got %+v", stats)
	}
	if len(stats.Clusters) != 0 {
		t.Errorf("Expected no clusters, got %d", len(stats.Clusters))
	}
}
