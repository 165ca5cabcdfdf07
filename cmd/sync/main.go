package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"insider-tracker/internal/logger"
	"insider-tracker/internal/scrape"
	"insider-tracker/internal/store"
	"insider-tracker/internal/storage"
	"insider-tracker/internal/syncer"
	"insider-tracker/internal/types"

	"github.com/joho/godotenv"
)

func main() {
	// Command-line flags
	configPath := flag.String("config", "config.yaml", "path to config file")
	category := flag.String("category", "all", "category to sync, or 'all'")
	seed := flag.Bool("seed", false, "use bulk screener URLs for initial backfill")
	flag.Parse()

	_ = godotenv.Load()

	// Load configuration
	cfg, err := store.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(); err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		os.Exit(1)
	}

	st, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		fmt.Printf("Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	fetcher := scrape.NewFetcher(cfg)
	orch := syncer.New(fetcher, st, nil, nil, cfg)

	ctx := context.Background()

	var res types.SyncResult
	if *category == "all" {
		res = orch.SyncAll(ctx, *seed, "cli")
	} else {
		res = orch.SyncCategory(ctx, *category, *seed, "cli")
	}

	b, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(b))

	if res.Skipped {
		os.Exit(1)
	}
}
