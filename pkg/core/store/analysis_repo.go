package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"filinglens/pkg/models"

	"github.com/jackc/pgx/v5"
)

// AnalysisRepo persists analysis runs. One row per (ticker, filing
// type, period); reruns overwrite.
type AnalysisRepo struct{}

func NewAnalysisRepo() *AnalysisRepo {
	return &AnalysisRepo{}
}

// Schema assumption (managed outside the application):
//
//	CREATE TABLE IF NOT EXISTS filing_analysis (
//	  ticker TEXT NOT NULL,
//	  filing_type TEXT NOT NULL,
//	  period_end TEXT NOT NULL,
//	  cik TEXT,
//	  result_json JSONB,
//	  updated_at TIMESTAMPTZ,
//	  PRIMARY KEY (ticker, filing_type, period_end)
//	);

// Save upserts one analysis result.
func (r *AnalysisRepo) Save(ctx context.Context, result *models.AnalysisResult) error {
	pool := GetPool()
	if pool == nil {
		return fmt.Errorf("database pool not initialized")
	}

	jsonData, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis result: %w", err)
	}

	query := `
		INSERT INTO filing_analysis (ticker, filing_type, period_end, cik, result_json, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ticker, filing_type, period_end)
		DO UPDATE SET
			cik = EXCLUDED.cik,
			result_json = EXCLUDED.result_json,
			updated_at = EXCLUDED.updated_at;
	`

	_, err = pool.Exec(ctx, query,
		result.Company.Ticker, result.FilingType, result.CurrentPeriod,
		result.Company.CIK, jsonData, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// Load retrieves the stored result for a ticker and period.
func (r *AnalysisRepo) Load(ctx context.Context, ticker, filingType, periodEnd string) (*models.AnalysisResult, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	query := `SELECT result_json FROM filing_analysis
		WHERE ticker = $1 AND filing_type = $2 AND period_end = $3`

	var jsonData []byte
	err := pool.QueryRow(ctx, query, ticker, filingType, periodEnd).Scan(&jsonData)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no analysis found for %s %s %s", ticker, filingType, periodEnd)
		}
		return nil, fmt.Errorf("failed to load analysis: %w", err)
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(jsonData, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis result: %w", err)
	}
	return &result, nil
}

// LoadLatest retrieves the most recently updated result for a ticker.
func (r *AnalysisRepo) LoadLatest(ctx context.Context, ticker string) (*models.AnalysisResult, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	query := `SELECT result_json FROM filing_analysis
		WHERE ticker = $1 ORDER BY updated_at DESC LIMIT 1`

	var jsonData []byte
	err := pool.QueryRow(ctx, query, ticker).Scan(&jsonData)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no analysis found for ticker %s", ticker)
		}
		return nil, fmt.Errorf("failed to load analysis: %w", err)
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(jsonData, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis result: %w", err)
	}
	return &result, nil
}
