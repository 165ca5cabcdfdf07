package insight

import (
	"context"
	"time"

	"insider-tracker/internal/logger"
	"insider-tracker/internal/store"
	"insider-tracker/internal/storage"
	"insider-tracker/internal/types"
)

// NarrativeGenerator is the external text-generation collaborator. Its
// only contract is: structured stats in, validated summary out.
type NarrativeGenerator interface {
	Generate(ctx context.Context, stats types.TradeStats) (types.InsightSummary, error)
}

// Service enforces the daily insight policy: at most one generated
// summary per calendar day, cached thereafter.
type Service struct {
	store      *storage.Store
	analyzer   *Analyzer
	generator  NarrativeGenerator
	enabled    bool
	windowSize int
	now        func() time.Time
}

func NewService(st *storage.Store, analyzer *Analyzer, generator NarrativeGenerator, cfg *store.Config) *Service {
	return &Service{
		store:      st,
		analyzer:   analyzer,
		generator:  generator,
		enabled:    cfg.Insight.Enabled,
		windowSize: cfg.Insight.WindowSize,
		now:        time.Now,
	}
}

// Latest returns the most recent stored insight, or nil when none exists.
func (s *Service) Latest(ctx context.Context) (*types.InsightSummary, error) {
	return s.store.LatestInsight(ctx)
}

// RecentStats aggregates the current analysis window without generating
// a narrative.
func (s *Service) RecentStats(ctx context.Context) (types.TradeStats, error) {
	trades, err := s.store.RecentTrades(ctx, s.windowSize)
	if err != nil {
		return types.TradeStats{}, err
	}
	return s.analyzer.Aggregate(trades), nil
}

// GetOrGenerate returns today's insight, generating it on first request.
// The second return value reports whether the summary came from the
// daily cache. A window with zero trades is a no-op: (nil, false, nil).
func (s *Service) GetOrGenerate(ctx context.Context) (*types.InsightSummary, bool, error) {
	if !s.enabled {
		return nil, false, nil
	}

	day := s.now().UTC().Format("2006-01-02")

	existing, err := s.store.InsightForDay(ctx, day)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		logger.Info(ctx, "Returning cached daily insight", "day", day)
		return existing, true, nil
	}

	trades, err := s.store.RecentTrades(ctx, s.windowSize)
	if err != nil {
		return nil, false, err
	}
	if len(trades) == 0 {
		logger.Info(ctx, "No trades to analyze, skipping insight generation", "day", day)
		return nil, false, nil
	}

	stats := s.analyzer.Aggregate(trades)

	summary, err := s.generator.Generate(ctx, stats)
	if err != nil {
		return nil, false, err
	}
	summary.Day = day

	if err := s.store.InsertInsight(ctx, summary); err != nil {
		// Lost the once-per-day race: the UNIQUE(day) constraint fired
		// and another trigger generated first. Return the winner's row.
		if winner, readErr := s.store.InsightForDay(ctx, day); readErr == nil && winner != nil {
			return winner, true, nil
		}
		return nil, false, err
	}

	stored, err := s.store.InsightForDay(ctx, day)
	if err != nil || stored == nil {
		return &summary, false, nil
	}
	return stored, false, nil
}
