// One-shot filing comparison from the command line: fetches the latest
// two filings for a ticker, extracts KPIs, and prints the report.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"filinglens/pkg/core/company"
	"filinglens/pkg/core/ingest"
	"filinglens/pkg/core/market"
	"filinglens/pkg/core/pipeline"
	"filinglens/pkg/core/store"
)

func main() {
	ticker := flag.String("ticker", "", "company ticker, e.g. AAPL (required)")
	filingType := flag.String("type", "10-Q", "filing type: 10-Q or 10-K")
	period := flag.String("period", "", "period label, e.g. 'Mar 2025' (default latest)")
	dataDir := flag.String("data", "data", "data directory for caches, indexes, and reports")
	companiesPath := flag.String("companies", "", "company config YAML (default <data>/companies.yaml)")
	noMarket := flag.Bool("no-market", false, "skip market data and valuation ratios")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	godotenv.Load()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *ticker == "" {
		fmt.Fprintln(os.Stderr, "usage: pipeline -ticker AAPL [-type 10-Q] [-period 'Mar 2025']")
		os.Exit(2)
	}
	ft := strings.ToUpper(*filingType)
	if ft != "10-Q" && ft != "10-K" {
		fmt.Fprintln(os.Stderr, "filing type must be 10-Q or 10-K")
		os.Exit(2)
	}

	if *companiesPath == "" {
		*companiesPath = *dataDir + "/companies.yaml"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cache, err := ingest.NewFilingCache(*dataDir + "/raw_filings")
	if err != nil {
		fatal("failed to create filing cache", err)
	}
	client := ingest.NewClient(cache, os.Getenv("SEC_USER_AGENT"))

	co, err := resolveCompany(ctx, client, *companiesPath, *ticker)
	if err != nil {
		fatal("could not resolve company", err)
	}

	var markets market.Provider
	if !*noMarket {
		markets = market.NewQuoteProvider()
	}

	cfg := pipeline.DefaultConfig()
	cfg.DataDir = *dataDir
	orch, err := pipeline.New(client, markets, cfg)
	if err != nil {
		fatal("failed to build pipeline", err)
	}

	if store.Enabled() {
		if err := store.InitDB(ctx); err == nil {
			defer store.Close()
			orch.SetRepository(store.NewAnalysisRepo())
		}
	}

	result, err := orch.Run(ctx, co, ft, *period)
	if err != nil {
		fatal("analysis failed", err)
	}

	fmt.Println(result.ReportMarkdown)
	if result.ReportPath != "" {
		fmt.Fprintf(os.Stderr, "report saved to %s\n", result.ReportPath)
	}
}

// resolveCompany checks the YAML directory first and falls back to the
// SEC ticker map, so unlisted tickers still work from the CLI.
func resolveCompany(ctx context.Context, client *ingest.Client, companiesPath, ticker string) (company.Company, error) {
	if dir, err := company.LoadDirectory(companiesPath); err == nil {
		if co, err := dir.Resolve(ticker); err == nil {
			return co, nil
		}
	}
	return client.LookupTicker(ctx, ticker)
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
