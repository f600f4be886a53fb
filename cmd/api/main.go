package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"filinglens/pkg/api"
	"filinglens/pkg/core/company"
	"filinglens/pkg/core/ingest"
	"filinglens/pkg/core/market"
	"filinglens/pkg/core/pipeline"
	"filinglens/pkg/core/store"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	dataDir := flag.String("data", "data", "data directory for caches, indexes, and reports")
	companiesPath := flag.String("companies", "", "company config YAML (default <data>/companies.yaml)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	godotenv.Load()
	setupLogging(*verbose)

	if *companiesPath == "" {
		*companiesPath = *dataDir + "/companies.yaml"
	}
	dir, err := company.LoadDirectory(*companiesPath)
	if err != nil {
		slog.Error("failed to load company config", "path", *companiesPath, "error", err)
		os.Exit(1)
	}

	cache, err := ingest.NewFilingCache(*dataDir + "/raw_filings")
	if err != nil {
		slog.Error("failed to create filing cache", "error", err)
		os.Exit(1)
	}
	client := ingest.NewClient(cache, os.Getenv("SEC_USER_AGENT"))

	var markets market.Provider = market.NewQuoteProvider()
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		markets = market.NewQuoteCache(rdb, markets)
		slog.Info("quote caching enabled", "redis", redisAddr)
	}

	pipeCfg := pipeline.DefaultConfig()
	pipeCfg.DataDir = *dataDir
	orch, err := pipeline.New(client, markets, pipeCfg)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	if store.Enabled() {
		if err := store.InitDB(context.Background()); err != nil {
			slog.Warn("database unavailable, results will not be persisted", "error", err)
		} else {
			defer store.Close()
			orch.SetRepository(store.NewAnalysisRepo())
			slog.Info("analysis persistence enabled")
		}
	}

	apiCfg := api.DefaultConfig()
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		apiCfg.CORSOrigins = strings.Split(origins, ",")
	}
	srv := api.NewServer(dir, client, orch, apiCfg)
	srv.SetFeedSource(ingest.NewFeedReader(os.Getenv("SEC_USER_AGENT")))

	slog.Info("API server starting", "addr", *addr)
	if err := srv.ListenAndServe(*addr); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
