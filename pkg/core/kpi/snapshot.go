// Package kpi extracts structured financial metrics from filing chunks
// using pattern matching with plausibility ranges, and assembles them
// into per-period snapshots.
package kpi

import (
	"errors"
)

// ErrEmptySnapshot is returned when a snapshot carries no metric,
// guidance, or segment data at all.
var ErrEmptySnapshot = errors.New("snapshot must have at least one populated field")

// Snapshot holds the structured KPIs for a single reporting period.
// Monetary values are in millions USD; EPS is in actual dollars;
// margins are decimals (0.25 means 25%). Nil means not extracted.
type Snapshot struct {
	PeriodEnd string `json:"period_end"`

	// Core income statement (millions USD).
	Revenue         *float64 `json:"revenue,omitempty"`
	CostOfRevenue   *float64 `json:"cost_of_revenue,omitempty"`
	GrossProfit     *float64 `json:"gross_profit,omitempty"`
	OperatingIncome *float64 `json:"operating_income,omitempty"`
	NetIncome       *float64 `json:"net_income,omitempty"`
	EPS             *float64 `json:"eps,omitempty"`

	// Profitability ratios (decimals).
	GrossMargin     *float64 `json:"gross_margin,omitempty"`
	OperatingMargin *float64 `json:"operating_margin,omitempty"`
	NetMargin       *float64 `json:"net_margin,omitempty"`

	// Cash flow (millions USD).
	OperatingCashFlow *float64 `json:"operating_cash_flow,omitempty"`
	FreeCashFlow      *float64 `json:"free_cash_flow,omitempty"`

	// Expenses (millions USD).
	ResearchAndDevelopment *float64 `json:"research_and_development,omitempty"`
	SellingGeneralAdmin    *float64 `json:"selling_general_admin,omitempty"`
	DepreciationAmort      *float64 `json:"depreciation_amortization,omitempty"`

	EBITDA *float64 `json:"ebitda,omitempty"`

	// Qualitative.
	Guidance       string            `json:"guidance,omitempty"`
	Segments       []string          `json:"segments"`
	SourceChunkIDs map[string]string `json:"source_chunk_ids"`
}

// NewSnapshot derives secondary metrics, validates the result, and
// repairs out-of-range margins by dropping them. It fails only when
// the snapshot carries no data at all.
func NewSnapshot(s Snapshot) (Snapshot, error) {
	s.derive()

	hasData := s.Revenue != nil ||
		s.GrossProfit != nil ||
		s.OperatingIncome != nil ||
		s.NetIncome != nil ||
		s.EPS != nil ||
		s.EBITDA != nil ||
		s.Guidance != "" ||
		len(s.Segments) > 0
	if !hasData {
		return Snapshot{}, ErrEmptySnapshot
	}

	// Margins outside a generous plausibility band are extraction
	// artifacts; drop them rather than failing the snapshot.
	for _, m := range []**float64{&s.GrossMargin, &s.OperatingMargin, &s.NetMargin} {
		if *m != nil && (**m < -0.5 || **m > 1.5) {
			*m = nil
		}
	}

	if s.SourceChunkIDs == nil {
		s.SourceChunkIDs = map[string]string{}
	}
	if s.Segments == nil {
		s.Segments = []string{}
	}
	return s, nil
}

// derive fills in metrics computable from extracted ones. Order
// matters: gross profit feeds the margin calculations below it.
func (s *Snapshot) derive() {
	if s.GrossProfit == nil && s.Revenue != nil && *s.Revenue != 0 && s.CostOfRevenue != nil && *s.CostOfRevenue != 0 {
		gp := *s.Revenue - *s.CostOfRevenue
		s.GrossProfit = &gp
	}

	if s.Revenue != nil && *s.Revenue > 0 {
		if s.GrossMargin == nil && s.GrossProfit != nil {
			m := *s.GrossProfit / *s.Revenue
			s.GrossMargin = &m
		}
		if s.OperatingMargin == nil && s.OperatingIncome != nil {
			m := *s.OperatingIncome / *s.Revenue
			s.OperatingMargin = &m
		}
		if s.NetMargin == nil && s.NetIncome != nil {
			m := *s.NetIncome / *s.Revenue
			s.NetMargin = &m
		}
	}

	// EBITDA = operating income + D&A; without D&A, operating income
	// alone is an underestimate but still useful for comparison.
	if s.EBITDA == nil && s.OperatingIncome != nil {
		e := *s.OperatingIncome
		if s.DepreciationAmort != nil {
			e += *s.DepreciationAmort
		}
		s.EBITDA = &e
	}

	// FCF approximated as operating cash flow minus D&A, which stands
	// in for capex when capex itself is not extracted.
	if s.FreeCashFlow == nil && s.OperatingCashFlow != nil && s.DepreciationAmort != nil {
		f := *s.OperatingCashFlow - *s.DepreciationAmort
		s.FreeCashFlow = &f
	}
}
