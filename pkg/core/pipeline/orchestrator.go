// Package pipeline wires ingestion, normalization, extraction, and
// reporting into the end-to-end filing analysis flow.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"filinglens/pkg/core/chunk"
	"filinglens/pkg/core/company"
	"filinglens/pkg/core/delta"
	"filinglens/pkg/core/index"
	"filinglens/pkg/core/ingest"
	"filinglens/pkg/core/kpi"
	"filinglens/pkg/core/market"
	"filinglens/pkg/core/report"
	"filinglens/pkg/core/textnorm"
	"filinglens/pkg/core/valuation"
	"filinglens/pkg/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// FilingFetcher supplies filing pairs and their raw content. Satisfied
// by ingest.Client; tests substitute a stub.
type FilingFetcher interface {
	FetchPair(ctx context.Context, co company.Company, filingType, period string) (current, previous ingest.Filing, err error)
	RawContent(ctx context.Context, f ingest.Filing) ([]byte, error)
}

// Repository persists finished analysis results.
type Repository interface {
	Save(ctx context.Context, result *models.AnalysisResult) error
}

// Config holds orchestrator tuning.
type Config struct {
	ChunkConfig chunk.Config
	DataDir     string // root for per-filing indexes and reports
	EvidenceK   int    // evidence chunks per report
}

func DefaultConfig() Config {
	return Config{
		ChunkConfig: chunk.DefaultConfig(),
		DataDir:     "data",
		EvidenceK:   5,
	}
}

// Orchestrator runs the full analysis: fetch two consecutive filings,
// normalize and chunk them, extract KPIs, compute deltas and valuation
// ratios, assemble evidence, and render the report.
type Orchestrator struct {
	fetcher    FilingFetcher
	normalizer *textnorm.Normalizer
	chunker    *chunk.Chunker
	extractor  *kpi.Extractor
	markets    market.Provider
	repo       Repository
	cfg        Config
}

// New creates an orchestrator. markets and repo may be nil; the
// corresponding steps are skipped.
func New(fetcher FilingFetcher, markets market.Provider, cfg Config) (*Orchestrator, error) {
	chunker, err := chunk.NewChunker(cfg.ChunkConfig)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		fetcher:    fetcher,
		normalizer: textnorm.New(),
		chunker:    chunker,
		extractor:  kpi.NewExtractor(),
		markets:    markets,
		cfg:        cfg,
	}, nil
}

// SetRepository injects a persistence backend.
func (o *Orchestrator) SetRepository(repo Repository) {
	o.repo = repo
}

// periodResult is the per-filing intermediate state.
type periodResult struct {
	filing   ingest.Filing
	text     string
	chunks   []chunk.DocumentChunk
	snapshot kpi.Snapshot
}

// Run analyzes one company. period selects the current filing by its
// label ("Mar 2025", "FY Sep 2024"); empty means latest.
func (o *Orchestrator) Run(ctx context.Context, co company.Company, filingType, period string) (*models.AnalysisResult, error) {
	runID := uuid.NewString()
	start := time.Now()
	slog.Info("starting analysis", "run_id", runID, "ticker", co.Ticker, "filing_type", filingType, "period", period)

	currentFiling, previousFiling, err := o.fetcher.FetchPair(ctx, co, filingType, period)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch filing pair: %w", err)
	}

	// The two filings are independent until the comparison step.
	results := make([]*periodResult, 2)
	g, gctx := errgroup.WithContext(ctx)
	for i, filing := range []ingest.Filing{currentFiling, previousFiling} {
		i, filing := i, filing
		g.Go(func() error {
			pr, err := o.processFiling(gctx, filing)
			if err != nil {
				return fmt.Errorf("failed to process %s: %w", filing.Accession, err)
			}
			results[i] = pr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	current, previous := results[0], results[1]

	deltas := delta.Compare(&current.snapshot, &previous.snapshot)
	slog.Info("computed deltas", "run_id", runID, "metrics", len(deltas))

	result := &models.AnalysisResult{
		RunID:          runID,
		Company:        co,
		FilingType:     filingType,
		GeneratedAt:    time.Now(),
		CurrentPeriod:  current.filing.PeriodEnd,
		PreviousPeriod: previous.filing.PeriodEnd,
		Current:        &current.snapshot,
		Previous:       &previous.snapshot,
		Deltas:         deltas,
	}

	if o.markets != nil {
		shares := valuation.ExtractSharesOutstanding(current.text)
		data := o.markets.Fetch(ctx, co.Ticker, current.filing.PeriodEnd, shares)
		result.MarketData = &data
		ratios := valuation.Calculate(data, &current.snapshot, filingType == "10-Q")
		result.Ratios = &ratios
	}

	evidence, evidenceChunks := o.collectEvidence(ctx, current)
	result.Evidence = evidence

	gen := report.NewGenerator(co)
	result.ReportMarkdown = gen.Generate(&current.snapshot, &previous.snapshot, evidenceChunks)
	if o.cfg.DataDir != "" {
		path, err := report.Save(result.ReportMarkdown, co, filepath.Join(o.cfg.DataDir, "reports"))
		if err != nil {
			slog.Warn("failed to save report", "run_id", runID, "err", err)
		} else {
			result.ReportPath = path
		}
	}

	if o.repo != nil {
		if err := o.repo.Save(ctx, result); err != nil {
			slog.Warn("failed to persist analysis", "run_id", runID, "err", err)
		}
	}

	slog.Info("analysis complete", "run_id", runID, "ticker", co.Ticker, "elapsed", time.Since(start))
	return result, nil
}

// processFiling downloads, normalizes, chunks, and extracts one
// filing.
func (o *Orchestrator) processFiling(ctx context.Context, filing ingest.Filing) (*periodResult, error) {
	raw, err := o.fetcher.RawContent(ctx, filing)
	if err != nil {
		return nil, err
	}

	text, err := o.normalizer.Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("normalization failed: %w", err)
	}

	chunks, err := o.chunker.Split(text, filing)
	if err != nil {
		return nil, fmt.Errorf("chunking failed: %w", err)
	}
	slog.Debug("chunked filing", "accession", filing.Accession, "chunks", len(chunks))

	snapshot, err := o.extractor.Extract(chunks, filing.PeriodEnd)
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}

	return &periodResult{filing: filing, text: text, chunks: chunks, snapshot: snapshot}, nil
}

// evidenceQuery targets the passages analysts cite most often.
const evidenceQuery = "revenue growth net income guidance outlook"

// collectEvidence indexes the current filing's chunks and returns the
// most relevant ones for the report. Index failures degrade to no
// evidence.
func (o *Orchestrator) collectEvidence(ctx context.Context, current *periodResult) ([]index.Result, []chunk.DocumentChunk) {
	dir := filepath.Join(o.cfg.DataDir, "index",
		current.filing.Company.Ticker, current.filing.Accession)
	ix := index.New(dir, nil)

	loaded, err := ix.Load()
	if err != nil {
		slog.Warn("index unreadable, rebuilding", "accession", current.filing.Accession, "err", err)
	}
	if !loaded || ix.Size() != len(current.chunks) {
		if err := ix.Build(ctx, current.chunks); err != nil {
			slog.Warn("failed to build evidence index", "accession", current.filing.Accession, "err", err)
			return nil, nil
		}
	}

	k := o.cfg.EvidenceK
	if k <= 0 {
		k = 5
	}
	hits, err := ix.Search(ctx, evidenceQuery, k)
	if err != nil {
		slog.Warn("evidence search failed", "accession", current.filing.Accession, "err", err)
		return nil, nil
	}

	byID := make(map[string]chunk.DocumentChunk, len(current.chunks))
	for _, ch := range current.chunks {
		byID[ch.ChunkID] = ch
	}
	chunks := make([]chunk.DocumentChunk, 0, len(hits))
	for _, hit := range hits {
		if ch, ok := byID[hit.ChunkID]; ok {
			chunks = append(chunks, ch)
		}
	}
	return hits, chunks
}
