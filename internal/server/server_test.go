package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"insider-tracker/internal/insight"
	"insider-tracker/internal/scrape"
	"insider-tracker/internal/storage"
	"insider-tracker/internal/store"
	"insider-tracker/internal/syncer"
	"insider-tracker/internal/types"
)

const feedDoc = `
<table>
<tr style="background:#eeffee">
  <td></td>
  <td><a href="/f">2024-03-15 16:31:22</a></td>
  <td>2024-03-14</td>
  <td><b><a href="/AAPL">AAPL</a></b></td>
  <td><a href="/AAPL">Apple Inc.</a></td>
  <td><a href="/i">Cook Timothy</a></td>
  <td>CEO</td>
  <td>P - Purchase</td>
  <td>$150.25</td>
  <td>+1,000</td>
  <td>50,000</td>
  <td>+2%</td>
  <td>$150,250</td>
</tr>
</table>`

type staticGenerator struct{}

func (staticGenerator) Generate(ctx context.Context, stats types.TradeStats) (types.InsightSummary, error) {
	return types.InsightSummary{
		Headline:  "Test headline",
		Summary:   "Test summary.",
		Sentiment: "neutral",
	}, nil
}

type serverFixture struct {
	srv     *Server
	store   *storage.Store
	handler http.Handler
}

func newFixture(t *testing.T, feedURL, cronSecret string) *serverFixture {
	t.Helper()

	st, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := store.DefaultConfig()
	cfg.Scrape.Categories = map[string]store.CategoryConfig{
		"purchases": {FeedURL: feedURL, DefaultType: "P"},
	}
	cfg.Scrape.SyncCategories = []string{"purchases"}

	fetcher := scrape.NewFetcher(cfg)
	insights := insight.NewService(st, insight.NewAnalyzer(cfg), staticGenerator{}, cfg)
	orch := syncer.New(fetcher, st, insights, nil, cfg)
	srv := New(st, fetcher, orch, insights, cronSecret)

	return &serverFixture{srv: srv, store: st, handler: srv.Handler()}
}

func seedTrade(t *testing.T, st *storage.Store, ticker string) {
	t.Helper()
	err := st.UpsertTrade(context.Background(), types.TradeRecord{
		FilingDate:     time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
		TradeDate:      time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC),
		Ticker:         ticker,
		CompanyName:    ticker + " Corp",
		InsiderName:    "Doe Jane",
		TradeType:      types.TradePurchase,
		Quantity:       100,
		Value:          10000,
		SourceCategory: "purchases",
	})
	if err != nil {
		t.Fatalf("Failed to seed trade: %v", err)
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return body
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:0", "")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "ok" {
		t.Errorf("Expected ok status, got %v", body)
	}
}

func TestTradesFromDatabase(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:0", "")
	seedTrade(t, f.store, "AAPL")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/trades?category=purchases", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["source"] != "database" {
		t.Errorf("Expected database source, got %v", body["source"])
	}
	trades, ok := body["trades"].([]any)
	if !ok || len(trades) != 1 {
		t.Fatalf("Expected 1 trade, got %v", body["trades"])
	}
}

func TestTradesEmptyIsArrayNotNull(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:0", "")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/trades", nil))

	body := decodeBody(t, rec)
	if trades, ok := body["trades"].([]any); !ok || len(trades) != 0 {
		t.Errorf("Expected empty array, got %v", body["trades"])
	}
}

func TestTradesLive(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedDoc))
	}))
	defer feed.Close()

	f := newFixture(t, feed.URL, "")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/trades?live=true", nil))

	body := decodeBody(t, rec)
	if body["source"] != "live" {
		t.Errorf("Expected live source, got %v", body["source"])
	}
	if trades, ok := body["trades"].([]any); !ok || len(trades) != 1 {
		t.Fatalf("Expected 1 live trade, got %v", body["trades"])
	}
}

func TestCronAuth(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedDoc))
	}))
	defer feed.Close()

	f := newFixture(t, feed.URL, "s3cret")

	t.Run("missing token rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/trades?cron=true", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rec.Code)
		}
	})

	t.Run("wrong token rejected", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/sync", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rec.Code)
		}
	})

	t.Run("bearer token accepted", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/trades?cron=true", nil)
		req.Header.Set("Authorization", "Bearer s3cret")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("scheduler header accepted", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/sync?category=purchases", nil)
		req.Header.Set("X-Cron-Trigger", "scheduler")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})
}

func TestCronIdempotentPerDay(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedDoc))
	}))
	defer feed.Close()

	f := newFixture(t, feed.URL, "")

	first := httptest.NewRecorder()
	f.handler.ServeHTTP(first, httptest.NewRequest("GET", "/api/trades?cron=true", nil))
	if body := decodeBody(t, first); body["skipped"] != false {
		t.Errorf("Expected first cron pass to run, got %v", body)
	}

	second := httptest.NewRecorder()
	f.handler.ServeHTTP(second, httptest.NewRequest("GET", "/api/trades?cron=true", nil))
	if body := decodeBody(t, second); body["skipped"] != true {
		t.Errorf("Expected second cron pass to skip, got %v", body)
	}
}

func TestManualSync(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedDoc))
	}))
	defer feed.Close()

	f := newFixture(t, feed.URL, "")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/sync?category=purchases", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["scraped"] != float64(1) {
		t.Errorf("Expected 1 scraped, got %v", body["scraped"])
	}

	trades, err := f.store.TradesByCategory(context.Background(), "purchases", 10)
	if err != nil || len(trades) != 1 {
		t.Errorf("Expected synced trade persisted, got %d, %v", len(trades), err)
	}
}

func TestSyncRequiresPost(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:0", "")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/sync", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestInsightsLifecycle(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:0", "")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/insights", nil))
	if body := decodeBody(t, rec); body["insight"] != nil {
		t.Errorf("Expected nil insight before generation, got %v", body["insight"])
	}

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/insights", nil))
	if body := decodeBody(t, rec); body["skipped"] != true {
		t.Errorf("Expected skip with no trades, got %v", body)
	}

	seedTrade(t, f.store, "AAPL")

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/insights", nil))
	body := decodeBody(t, rec)
	if body["cached"] != false {
		t.Errorf("Expected fresh generation, got %v", body)
	}

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/insights", nil))
	if body := decodeBody(t, rec); body["cached"] != true {
		t.Errorf("Expected cached insight on second request, got %v", body)
	}

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/insights", nil))
	body = decodeBody(t, rec)
	ins, ok := body["insight"].(map[string]any)
	if !ok || ins["headline"] != "Test headline" {
		t.Errorf("Expected stored insight, got %v", body["insight"])
	}
}
