package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"insider-tracker/internal/logger"
	"insider-tracker/internal/types"
)

const (
	filingDateLayout = "2006-01-02T15:04:05"
	dayLayout        = "2006-01-02"
)

// Store persists trade records, daily insights, sync runs and cached
// market quotes in a single sqlite database.
type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS insider_trades (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    filing_date TEXT NOT NULL,
    trade_date TEXT NOT NULL,
    ticker TEXT NOT NULL,
    company_name TEXT NOT NULL,
    insider_name TEXT NOT NULL,
    insider_title TEXT,
    trade_type TEXT NOT NULL,
    price REAL,
    quantity INTEGER NOT NULL DEFAULT 0,
    owned INTEGER,
    delta_own TEXT,
    value REAL NOT NULL DEFAULT 0,
    filing_flag TEXT,
    perf_1d REAL,
    perf_1w REAL,
    perf_1m REAL,
    perf_6m REAL,
    source_category TEXT NOT NULL,
    scraped_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(filing_date, ticker, insider_name, trade_type, quantity, source_category)
);

CREATE INDEX IF NOT EXISTS idx_trades_category_filing
    ON insider_trades(source_category, filing_date DESC);

CREATE TABLE IF NOT EXISTS insider_insights (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    day TEXT NOT NULL UNIQUE,
    headline TEXT NOT NULL,
    summary TEXT NOT NULL,
    notable_buys TEXT NOT NULL DEFAULT '[]',
    notable_sells TEXT NOT NULL DEFAULT '[]',
    sentiment TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sync_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    day TEXT NOT NULL,
    source TEXT NOT NULL,
    scraped INTEGER NOT NULL,
    inserted INTEGER NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_day ON sync_runs(day);

CREATE TABLE IF NOT EXISTS market_prices (
    symbol TEXT PRIMARY KEY,
    price REAL NOT NULL,
    change REAL NOT NULL DEFAULT 0,
    change_percent REAL NOT NULL DEFAULT 0,
    currency TEXT,
    updated_at DATETIME NOT NULL
);
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// UpsertTrade writes one record with conflict resolution on the natural
// key (filing_date, ticker, insider_name, trade_type, quantity,
// source_category). A repeated scrape overwrites in place: the source may
// revise figures between passes.
func (s *Store) UpsertTrade(ctx context.Context, rec types.TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO insider_trades (
    filing_date, trade_date, ticker, company_name, insider_name,
    insider_title, trade_type, price, quantity, owned, delta_own, value,
    filing_flag, perf_1d, perf_1w, perf_1m, perf_6m, source_category
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(filing_date, ticker, insider_name, trade_type, quantity, source_category) DO UPDATE SET
    trade_date=excluded.trade_date,
    company_name=excluded.company_name,
    insider_title=excluded.insider_title,
    price=excluded.price,
    owned=excluded.owned,
    delta_own=excluded.delta_own,
    value=excluded.value,
    filing_flag=excluded.filing_flag,
    perf_1d=excluded.perf_1d,
    perf_1w=excluded.perf_1w,
    perf_1m=excluded.perf_1m,
    perf_6m=excluded.perf_6m,
    scraped_at=CURRENT_TIMESTAMP
`,
		rec.FilingDate.Format(filingDateLayout),
		rec.TradeDate.Format(dayLayout),
		rec.Ticker,
		rec.CompanyName,
		rec.InsiderName,
		nullString(rec.InsiderTitle),
		string(rec.TradeType),
		nullFloat(rec.Price),
		rec.Quantity,
		nullInt(rec.SharesOwnedAfter),
		nullString(rec.DeltaOwn),
		rec.Value,
		nullString(string(rec.FilingFlag)),
		nullFloat(rec.Perf1D),
		nullFloat(rec.Perf1W),
		nullFloat(rec.Perf1M),
		nullFloat(rec.Perf6M),
		rec.SourceCategory,
	)
	return err
}

// UpsertTrades writes a batch. A failure for one record is counted, not
// fatal; the returned count is the number successfully written.
func (s *Store) UpsertTrades(ctx context.Context, recs []types.TradeRecord) int {
	inserted := 0
	failed := 0
	for _, rec := range recs {
		if err := s.UpsertTrade(ctx, rec); err != nil {
			failed++
			continue
		}
		inserted++
	}
	if failed > 0 {
		logger.Warn(ctx, "Some trade upserts failed", "failed", failed, "inserted", inserted)
	}
	return inserted
}

const tradeColumns = `
    filing_date, trade_date, ticker, company_name, insider_name,
    insider_title, trade_type, price, quantity, owned, delta_own, value,
    filing_flag, perf_1d, perf_1w, perf_1m, perf_6m, source_category`

// TradesByCategory returns stored trades for one category, newest filing
// first.
func (s *Store) TradesByCategory(ctx context.Context, category string, limit int) ([]types.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT`+tradeColumns+`
FROM insider_trades
WHERE source_category = ?
ORDER BY filing_date DESC
LIMIT ?`, category, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// RecentTrades returns the most recent filings across all categories.
func (s *Store) RecentTrades(ctx context.Context, limit int) ([]types.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT`+tradeColumns+`
FROM insider_trades
ORDER BY filing_date DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

func scanTrades(rows *sql.Rows) ([]types.TradeRecord, error) {
	var trades []types.TradeRecord
	for rows.Next() {
		var (
			rec        types.TradeRecord
			filingDate string
			tradeDate  string
			title      sql.NullString
			price      sql.NullFloat64
			owned      sql.NullInt64
			deltaOwn   sql.NullString
			flag       sql.NullString
			p1d        sql.NullFloat64
			p1w        sql.NullFloat64
			p1m        sql.NullFloat64
			p6m        sql.NullFloat64
		)
		if err := rows.Scan(
			&filingDate, &tradeDate, &rec.Ticker, &rec.CompanyName, &rec.InsiderName,
			&title, &rec.TradeType, &price, &rec.Quantity, &owned, &deltaOwn, &rec.Value,
			&flag, &p1d, &p1w, &p1m, &p6m, &rec.SourceCategory,
		); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}

		rec.FilingDate, _ = time.Parse(filingDateLayout, filingDate)
		rec.TradeDate, _ = time.Parse(dayLayout, tradeDate)
		rec.InsiderTitle = title.String
		rec.DeltaOwn = deltaOwn.String
		rec.FilingFlag = types.FilingFlag(flag.String)
		rec.Price = fromNullFloat(price)
		rec.SharesOwnedAfter = fromNullInt(owned)
		rec.Perf1D = fromNullFloat(p1d)
		rec.Perf1W = fromNullFloat(p1w)
		rec.Perf1M = fromNullFloat(p1m)
		rec.Perf6M = fromNullFloat(p6m)

		trades = append(trades, rec)
	}
	return trades, rows.Err()
}

// InsertInsight stores a daily insight. The UNIQUE(day) constraint makes
// the once-per-day policy safe against concurrent generation; callers
// losing the race should re-read the winner's row.
func (s *Store) InsertInsight(ctx context.Context, ins types.InsightSummary) error {
	buys, err := json.Marshal(ins.NotableBuys)
	if err != nil {
		return fmt.Errorf("marshal notable buys: %w", err)
	}
	sells, err := json.Marshal(ins.NotableSells)
	if err != nil {
		return fmt.Errorf("marshal notable sells: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO insider_insights (day, headline, summary, notable_buys, notable_sells, sentiment)
VALUES (?, ?, ?, ?, ?, ?)`,
		ins.Day, ins.Headline, ins.Summary, string(buys), string(sells), ins.Sentiment)
	return err
}

// InsightForDay returns the stored insight for a calendar day, or nil.
func (s *Store) InsightForDay(ctx context.Context, day string) (*types.InsightSummary, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, day, headline, summary, notable_buys, notable_sells, sentiment, created_at
FROM insider_insights
WHERE day = ?`, day)
	return scanInsight(row)
}

// LatestInsight returns the most recently created insight, or nil.
func (s *Store) LatestInsight(ctx context.Context) (*types.InsightSummary, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, day, headline, summary, notable_buys, notable_sells, sentiment, created_at
FROM insider_insights
ORDER BY created_at DESC
LIMIT 1`)
	return scanInsight(row)
}

func scanInsight(row *sql.Row) (*types.InsightSummary, error) {
	var (
		ins       types.InsightSummary
		buys      string
		sells     string
		createdAt time.Time
	)
	err := row.Scan(&ins.ID, &ins.Day, &ins.Headline, &ins.Summary, &buys, &sells, &ins.Sentiment, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan insight: %w", err)
	}

	if err := json.Unmarshal([]byte(buys), &ins.NotableBuys); err != nil {
		return nil, fmt.Errorf("decode notable buys: %w", err)
	}
	if err := json.Unmarshal([]byte(sells), &ins.NotableSells); err != nil {
		return nil, fmt.Errorf("decode notable sells: %w", err)
	}
	ins.CreatedAt = createdAt
	return &ins, nil
}

// RecordSyncRun logs one completed sync pass for the staleness gate.
func (s *Store) RecordSyncRun(ctx context.Context, day, source string, scraped, inserted int) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sync_runs (day, source, scraped, inserted)
VALUES (?, ?, ?, ?)`, day, source, scraped, inserted)
	return err
}

// SyncRanOn reports whether a sync already completed on the given day.
func (s *Store) SyncRanOn(ctx context.Context, day string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sync_runs WHERE day = ?`, day).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query sync runs: %w", err)
	}
	return n > 0, nil
}

// UpsertQuote caches one market price, keyed by symbol.
func (s *Store) UpsertQuote(ctx context.Context, q types.Quote) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO market_prices (symbol, price, change, change_percent, currency, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(symbol) DO UPDATE SET
    price=excluded.price,
    change=excluded.change,
    change_percent=excluded.change_percent,
    currency=excluded.currency,
    updated_at=excluded.updated_at`,
		q.Symbol, q.Price, q.Change, q.ChangePercent, q.Currency, q.UpdatedAt.UTC())
	return err
}

// QuoteFor returns the cached quote for a symbol, or nil.
func (s *Store) QuoteFor(ctx context.Context, symbol string) (*types.Quote, error) {
	var q types.Quote
	var currency sql.NullString
	err := s.db.QueryRowContext(ctx, `
SELECT symbol, price, change, change_percent, currency, updated_at
FROM market_prices
WHERE symbol = ?`, symbol).Scan(&q.Symbol, &q.Price, &q.Change, &q.ChangePercent, &currency, &q.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query quote: %w", err)
	}
	q.Currency = currency.String
	return &q, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

func fromNullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func fromNullInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
