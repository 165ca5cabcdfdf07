package types

import "time"

// TradeType is the direction of an insider transaction.
type TradeType string

const (
	TradePurchase TradeType = "P"
	TradeSale     TradeType = "S"
)

// FilingFlag marks special filing conditions from the source's X column.
type FilingFlag string

const (
	FlagAmended    FilingFlag = "A"
	FlagDerivative FilingFlag = "D"
	FlagMultiple   FilingFlag = "M"
)

// TradeRecord is one normalized insider trade disclosure.
// Quantity and Value are absolute magnitudes; direction lives in TradeType.
// Nil pointer fields mean "unknown", never zero.
type TradeRecord struct {
	FilingDate       time.Time  `json:"filing_date"`
	TradeDate        time.Time  `json:"trade_date"`
	Ticker           string     `json:"ticker"`
	CompanyName      string     `json:"company_name"`
	InsiderName      string     `json:"insider_name"`
	InsiderTitle     string     `json:"insider_title,omitempty"`
	TradeType        TradeType  `json:"trade_type"`
	Price            *float64   `json:"price"`
	Quantity         int64      `json:"quantity"`
	SharesOwnedAfter *int64     `json:"owned"`
	DeltaOwn         string     `json:"delta_own,omitempty"`
	Value            float64    `json:"value"`
	FilingFlag       FilingFlag `json:"filing_flag,omitempty"`
	Perf1D           *float64   `json:"perf_1d"`
	Perf1W           *float64   `json:"perf_1w"`
	Perf1M           *float64   `json:"perf_1m"`
	Perf6M           *float64   `json:"perf_6m"`
	SourceCategory   string     `json:"source_category"`
}

// NotableTrade is one entry in an insight's buy/sell highlight lists.
type NotableTrade struct {
	Ticker   string `json:"ticker"`
	Company  string `json:"company"`
	Activity string `json:"activity"`
}

// InsightSummary is the daily AI-generated narrative. One per calendar day.
type InsightSummary struct {
	ID           int64          `json:"id,omitempty"`
	Day          string         `json:"day"`
	Headline     string         `json:"headline"`
	Summary      string         `json:"summary"`
	NotableBuys  []NotableTrade `json:"notable_buys"`
	NotableSells []NotableTrade `json:"notable_sells"`
	Sentiment    string         `json:"sentiment"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ClusterStat aggregates same-ticker filings within the analysis window.
type ClusterStat struct {
	Ticker     string  `json:"ticker"`
	Company    string  `json:"company"`
	Buys       int     `json:"buys"`
	Sells      int     `json:"sells"`
	TotalValue float64 `json:"total_value"`
}

// TradeStats is the structured aggregation handed to the insight generator.
type TradeStats struct {
	BuyCount   int           `json:"buy_count"`
	SellCount  int           `json:"sell_count"`
	BuyValue   float64       `json:"buy_value"`
	SellValue  float64       `json:"sell_value"`
	TopBuys    []TradeRecord `json:"top_buys"`
	TopSells   []TradeRecord `json:"top_sells"`
	Clusters   []ClusterStat `json:"clusters"`
	TradeCount int           `json:"trade_count"`
}

// SyncResult reports the outcome of a sync pass. Scraped vs Inserted
// discrepancy is the operational signal for partial persistence failure.
type SyncResult struct {
	Scraped     int            `json:"scraped"`
	Inserted    int            `json:"inserted"`
	PerCategory map[string]int `json:"per_category,omitempty"`
	Skipped     bool           `json:"skipped,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Quote is a cached market price for one symbol.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Currency      string    `json:"currency"`
	UpdatedAt     time.Time `json:"updated_at"`
}
