package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"insider-tracker/internal/insight"
	"insider-tracker/internal/logger"
	"insider-tracker/internal/scrape"
	"insider-tracker/internal/storage"
	"insider-tracker/internal/syncer"
	"insider-tracker/internal/types"
)

// Server exposes the read contracts the rest of the application needs:
// trades by category, live previews, the daily insight, and the
// authenticated sync triggers.
type Server struct {
	store      *storage.Store
	fetcher    *scrape.Fetcher
	orch       *syncer.Orchestrator
	insights   *insight.Service
	cronSecret string
}

func New(store *storage.Store, fetcher *scrape.Fetcher, orch *syncer.Orchestrator, insights *insight.Service, cronSecret string) *Server {
	return &Server{
		store:      store,
		fetcher:    fetcher,
		orch:       orch,
		insights:   insights,
		cronSecret: cronSecret,
	}
}

// Handler returns the HTTP routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/trades", s.handleTrades)
	mux.HandleFunc("/api/sync", s.requireCronAuth(s.handleSync))
	mux.HandleFunc("/api/insights", s.handleInsights)
	mux.HandleFunc("/api/health", s.handleHealth)
	return mux
}

// handleTrades serves stored trades, live previews and the cron sync
// path. Failures yield empty structured results, never a crash.
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	category := q.Get("category")
	if category == "" {
		category = "purchases"
	}
	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	ctx := r.Context()

	if q.Get("cron") == "true" {
		if !s.authorized(r) {
			jsonError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		res := s.orch.RunCron(ctx)
		jsonResponse(w, map[string]any{
			"message":   cronMessage(res),
			"scraped":   res.Scraped,
			"inserted":  res.Inserted,
			"skipped":   res.Skipped,
			"timestamp": res.Timestamp,
		})
		return
	}

	if q.Get("live") == "true" {
		trades := s.fetcher.FetchCategory(ctx, category, false)
		jsonResponse(w, map[string]any{"trades": emptyNotNil(trades), "source": "live"})
		return
	}

	trades, err := s.store.TradesByCategory(ctx, category, limit)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to read trades", err, "category", category)
		jsonResponse(w, map[string]any{"trades": []types.TradeRecord{}, "source": "database"})
		return
	}
	jsonResponse(w, map[string]any{"trades": emptyNotNil(trades), "source": "database"})
}

// handleSync runs a manual sync for one category or all of them.
// ?seed=true uses the bulk screener URLs for initial backfill.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	category := q.Get("category")
	if category == "" {
		category = "all"
	}
	seed := q.Get("seed") == "true"

	ctx := r.Context()

	var res types.SyncResult
	if category == "all" {
		res = s.orch.SyncAll(ctx, seed, "manual")
	} else {
		res = s.orch.SyncCategory(ctx, category, seed, "manual")
	}

	if res.Scraped == 0 {
		jsonResponse(w, map[string]any{"message": "No trades scraped", "scraped": 0})
		return
	}

	jsonResponse(w, map[string]any{
		"message":  "Scraping complete",
		"scraped":  res.Scraped,
		"inserted": res.Inserted,
	})
}

// handleInsights serves the latest insight (GET) and the get-or-generate
// path for today's insight (POST).
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		ins, err := s.insights.Latest(ctx)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to read latest insight", err)
			jsonResponse(w, map[string]any{"insight": nil})
			return
		}
		jsonResponse(w, map[string]any{"insight": ins})

	case http.MethodPost:
		ins, cached, err := s.insights.GetOrGenerate(ctx)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to generate insight", err)
			jsonError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if ins == nil {
			jsonResponse(w, map[string]any{"message": "No trades to analyze", "skipped": true})
			return
		}
		jsonResponse(w, map[string]any{"insight": ins, "cached": cached})

	default:
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]string{"status": "ok"})
}

// RunCron executes the scheduled sync outside of an HTTP request.
func (s *Server) RunCron(ctx context.Context) types.SyncResult {
	return s.orch.RunCron(ctx)
}

func cronMessage(res types.SyncResult) string {
	if res.Skipped {
		return "Sync skipped"
	}
	return "Cron sync complete"
}

func emptyNotNil(trades []types.TradeRecord) []types.TradeRecord {
	if trades == nil {
		return []types.TradeRecord{}
	}
	return trades
}

func jsonResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
