// Package valuation combines market data with extracted filing
// metrics into standard valuation ratios.
package valuation

import (
	"regexp"
	"strconv"
	"strings"

	"filinglens/pkg/core/kpi"
	"filinglens/pkg/core/market"
)

// Ratios holds the computed valuation multiples. Market cap and
// enterprise value are in millions USD. Nil means not computable from
// the available inputs.
type Ratios struct {
	PERatio         *float64 `json:"pe_ratio,omitempty"`
	PSRatio         *float64 `json:"ps_ratio,omitempty"`
	EVToEBITDA      *float64 `json:"ev_to_ebitda,omitempty"`
	EVToRevenue     *float64 `json:"ev_to_revenue,omitempty"`
	RevenuePerShare *float64 `json:"revenue_per_share,omitempty"`
	MarketCap       *float64 `json:"market_cap,omitempty"`
	EnterpriseValue *float64 `json:"enterprise_value,omitempty"`
}

// Calculate derives ratios from a quote and a period snapshot.
// Quarterly figures are annualized by a factor of four; pass
// quarterly=false for 10-K snapshots.
func Calculate(data market.MarketData, snap *kpi.Snapshot, quarterly bool) Ratios {
	var r Ratios

	if data.Price == nil || data.MarketCap == nil {
		return r
	}
	price := *data.Price
	marketCap := *data.MarketCap
	r.MarketCap = &marketCap

	annFactor := 1.0
	if quarterly {
		annFactor = 4.0
	}

	if snap.EPS != nil && *snap.EPS > 0 {
		pe := price / (*snap.EPS * annFactor)
		r.PERatio = &pe
	}

	if snap.Revenue != nil && *snap.Revenue > 0 {
		annualRevenue := *snap.Revenue * annFactor
		ps := marketCap / annualRevenue
		r.PSRatio = &ps
		if data.SharesOutstanding != nil && *data.SharesOutstanding > 0 {
			rps := annualRevenue / *data.SharesOutstanding
			r.RevenuePerShare = &rps
		}
	}

	// Without balance sheet debt and cash, enterprise value reduces to
	// market cap.
	ev := marketCap
	r.EnterpriseValue = &ev

	if snap.EBITDA != nil && *snap.EBITDA > 0 {
		evEbitda := ev / (*snap.EBITDA * annFactor)
		r.EVToEBITDA = &evEbitda
	}
	if snap.Revenue != nil && *snap.Revenue > 0 {
		evRev := ev / (*snap.Revenue * annFactor)
		r.EVToRevenue = &evRev
	}
	return r
}

var sharesPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)([\d,]+)\s*(?:thousand|000)\s*shares?\s+(?:outstanding|issued)`),
	regexp.MustCompile(`(?i)shares?\s+outstanding[:\s]*([\d,]+)`),
	regexp.MustCompile(`(?i)common\s+stock[^0-9]*([\d,]+)\s*(?:shares?|thousand)`),
}

// ExtractSharesOutstanding pulls the share count from filing text and
// returns it in millions of shares. Filings report shares at varying
// magnitudes, so the raw value's size decides the conversion.
func ExtractSharesOutstanding(text string) *float64 {
	for _, re := range sharesPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		switch {
		case value > 1e6:
			value /= 1e6
		case value > 1e3:
			value /= 1e3
		}
		return &value
	}
	return nil
}
