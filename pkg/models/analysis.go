// Package models holds result types shared between the pipeline, the
// store, and the API layer.
package models

import (
	"time"

	"filinglens/pkg/core/company"
	"filinglens/pkg/core/delta"
	"filinglens/pkg/core/index"
	"filinglens/pkg/core/kpi"
	"filinglens/pkg/core/market"
	"filinglens/pkg/core/valuation"
)

// AnalysisResult is the full output of one period-over-period filing
// analysis run.
type AnalysisResult struct {
	RunID       string          `json:"run_id"`
	Company     company.Company `json:"company"`
	FilingType  string          `json:"filing_type"`
	GeneratedAt time.Time       `json:"generated_at"`

	CurrentPeriod  string `json:"current_period"`
	PreviousPeriod string `json:"previous_period"`

	Current  *kpi.Snapshot `json:"current"`
	Previous *kpi.Snapshot `json:"previous"`
	Deltas   []delta.Item  `json:"deltas"`

	MarketData *market.MarketData `json:"market_data,omitempty"`
	Ratios     *valuation.Ratios  `json:"ratios,omitempty"`

	Evidence []index.Result `json:"evidence,omitempty"`

	ReportMarkdown string `json:"report_markdown,omitempty"`
	ReportPath     string `json:"report_path,omitempty"`
}
