package insight

import (
	"sort"

	"insider-tracker/internal/store"
	"insider-tracker/internal/types"
)

// Analyzer computes clustering and aggregate statistics over a recent
// window of trade records. It is pure computation; storage and narrative
// generation live elsewhere.
type Analyzer struct {
	topTrades  int
	clusterMin int
	clusterTop int
}

func NewAnalyzer(cfg *store.Config) *Analyzer {
	return &Analyzer{
		topTrades:  cfg.Insight.TopTrades,
		clusterMin: cfg.Insight.ClusterMin,
		clusterTop: cfg.Insight.ClusterTop,
	}
}

// Aggregate computes buy/sell totals, the top trades by value in each
// direction, and cluster activity (tickers with clusterMin or more
// filings in the same direction, ranked by aggregate value).
func (a *Analyzer) Aggregate(trades []types.TradeRecord) types.TradeStats {
	stats := types.TradeStats{TradeCount: len(trades)}

	var buys, sells []types.TradeRecord
	byTicker := map[string]*types.ClusterStat{}

	for _, t := range trades {
		cs, ok := byTicker[t.Ticker]
		if !ok {
			cs = &types.ClusterStat{Ticker: t.Ticker, Company: t.CompanyName}
			byTicker[t.Ticker] = cs
		}
		cs.TotalValue += t.Value

		if t.TradeType == types.TradePurchase {
			buys = append(buys, t)
			stats.BuyValue += t.Value
			cs.Buys++
		} else {
			sells = append(sells, t)
			stats.SellValue += t.Value
			cs.Sells++
		}
	}

	stats.BuyCount = len(buys)
	stats.SellCount = len(sells)
	stats.TopBuys = topByValue(buys, a.topTrades)
	stats.TopSells = topByValue(sells, a.topTrades)

	for _, cs := range byTicker {
		if cs.Buys >= a.clusterMin || cs.Sells >= a.clusterMin {
			stats.Clusters = append(stats.Clusters, *cs)
		}
	}
	sort.Slice(stats.Clusters, func(i, j int) bool {
		return stats.Clusters[i].TotalValue > stats.Clusters[j].TotalValue
	})
	if len(stats.Clusters) > a.clusterTop {
		stats.Clusters = stats.Clusters[:a.clusterTop]
	}

	return stats
}

func topByValue(trades []types.TradeRecord, n int) []types.TradeRecord {
	sorted := make([]types.TradeRecord, len(trades))
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Value > sorted[j].Value
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// ClusterTickers returns the symbols flagged as clusters, in rank order.
func ClusterTickers(stats types.TradeStats) []string {
	symbols := make([]string, 0, len(stats.Clusters))
	for _, c := range stats.Clusters {
		symbols = append(symbols, c.Ticker)
	}
	return symbols
}
