package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"insider-tracker/internal/insight"
	"insider-tracker/internal/logger"
	"insider-tracker/internal/market"
	"insider-tracker/internal/scrape"
	"insider-tracker/internal/server"
	"insider-tracker/internal/store"
	"insider-tracker/internal/storage"
	"insider-tracker/internal/syncer"
	"insider-tracker/internal/trace"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	_ = godotenv.Load()
	cfg, err := store.LoadConfig("config.yaml")
	must(err)

	must(logger.Init())
	defer func() { _ = logger.Shutdown(context.Background()) }()
	must(trace.Init())
	defer func() { _ = trace.Shutdown(context.Background()) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := storage.Open(cfg.Storage.Path)
	must(err)
	defer st.Close()

	fetcher := scrape.NewFetcher(cfg)
	insights := insight.NewService(st, insight.NewAnalyzer(cfg), insight.NewGenerator(cfg), cfg)

	var quotes syncer.QuoteRefresher
	if cfg.Market.Enabled {
		quotes = market.NewRefresher(st, cfg)
	}

	orch := syncer.New(fetcher, st, insights, quotes, cfg)
	srv := server.New(st, fetcher, orch, insights, os.Getenv(cfg.Server.CronSecretEnv))

	sched := cron.New()
	if cfg.Server.CronSpec != "" {
		_, err := sched.AddFunc(cfg.Server.CronSpec, func() {
			srv.RunCron(ctx)
		})
		must(err)
		sched.Start()
		defer sched.Stop()
	}

	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info(ctx, "Server started", "addr", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-sigc
	log.Println("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
