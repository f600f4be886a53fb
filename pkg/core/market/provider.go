// Package market fetches stock quotes and historical prices used for
// valuation ratios. Market data is best-effort: lookups degrade to an
// empty MarketData instead of failing the analysis.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// MarketData holds quote data for one ticker. Prices are in actual
// dollars; market cap and shares are in millions for consistency with
// filing metrics. Nil means unavailable.
type MarketData struct {
	Ticker            string   `json:"ticker"`
	Price             *float64 `json:"price,omitempty"`
	MarketCap         *float64 `json:"market_cap,omitempty"`
	SharesOutstanding *float64 `json:"shares_outstanding,omitempty"`
	FiftyTwoWeekHigh  *float64 `json:"fifty_two_week_high,omitempty"`
	FiftyTwoWeekLow   *float64 `json:"fifty_two_week_low,omitempty"`
	DividendYield     *float64 `json:"dividend_yield,omitempty"`
	IsHistorical      bool     `json:"is_historical"`
	PriceDate         string   `json:"price_date,omitempty"`
}

// Provider supplies market data for a ticker as of a period end.
type Provider interface {
	Fetch(ctx context.Context, ticker, periodEnd string, filingShares *float64) MarketData
}

const (
	chartAPIBase = "https://query1.finance.yahoo.com/v8/finance/chart"

	// Periods older than this get a historical price lookup instead of
	// the live quote.
	historicalCutoff = 30 * 24 * time.Hour
)

// chartResponse mirrors the chart API envelope.
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		FiftyTwoWeekHigh   float64 `json:"fiftyTwoWeekHigh"`
		FiftyTwoWeekLow    float64 `json:"fiftyTwoWeekLow"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []chartQuote `json:"quote"`
	} `json:"indicators"`
	Events struct {
		Dividends map[string]chartDividend `json:"dividends"`
	} `json:"events"`
}

type chartDividend struct {
	Amount float64 `json:"amount"`
	Date   int64   `json:"date"`
}

type chartQuote struct {
	Close []*float64 `json:"close"`
	High  []*float64 `json:"high"`
	Low   []*float64 `json:"low"`
}

// QuoteProvider fetches quotes from the public chart API.
type QuoteProvider struct {
	httpClient *http.Client
	baseURL    string
	now        func() time.Time
}

func NewQuoteProvider() *QuoteProvider {
	return &QuoteProvider{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    chartAPIBase,
		now:        time.Now,
	}
}

// NewQuoteProviderWithBase is used by tests to point at a stub server.
func NewQuoteProviderWithBase(baseURL string) *QuoteProvider {
	p := NewQuoteProvider()
	p.baseURL = baseURL
	return p
}

// Fetch returns market data for the ticker. When periodEnd is more
// than 30 days old, the closing price on (or just before) that date is
// used and the data is marked historical. Failures are logged and
// produce an empty MarketData.
func (p *QuoteProvider) Fetch(ctx context.Context, ticker, periodEnd string, filingShares *float64) MarketData {
	data := MarketData{Ticker: ticker, SharesOutstanding: filingShares}

	useHistorical := false
	if periodEnd != "" {
		if t, err := time.Parse("2006-01-02", periodEnd); err == nil {
			useHistorical = p.now().Sub(t) > historicalCutoff
		}
	}

	if useHistorical {
		p.fetchHistorical(ctx, ticker, periodEnd, &data)
	} else {
		p.fetchCurrent(ctx, ticker, &data)
	}

	if data.Price != nil && data.SharesOutstanding != nil {
		mc := *data.Price * *data.SharesOutstanding
		data.MarketCap = &mc
	}
	return data
}

func (p *QuoteProvider) fetchCurrent(ctx context.Context, ticker string, data *MarketData) {
	url := fmt.Sprintf("%s/%s?range=1d&interval=1d", p.baseURL, ticker)
	result, err := p.query(ctx, url)
	if err != nil {
		slog.Warn("market data unavailable", "ticker", ticker, "err", err)
		return
	}

	if result.Meta.RegularMarketPrice > 0 {
		price := result.Meta.RegularMarketPrice
		data.Price = &price
	}
	if result.Meta.FiftyTwoWeekHigh > 0 {
		h := result.Meta.FiftyTwoWeekHigh
		data.FiftyTwoWeekHigh = &h
	}
	if result.Meta.FiftyTwoWeekLow > 0 {
		l := result.Meta.FiftyTwoWeekLow
		data.FiftyTwoWeekLow = &l
	}
	data.PriceDate = p.now().Format("2006-01-02")
}

func (p *QuoteProvider) fetchHistorical(ctx context.Context, ticker, periodEnd string, data *MarketData) {
	target, err := time.Parse("2006-01-02", periodEnd)
	if err != nil {
		return
	}

	// 53 weeks of history ending just after the target covers both the
	// close on the target date and the trailing 52-week range.
	period1 := target.Add(-53 * 7 * 24 * time.Hour).Unix()
	period2 := target.Add(24 * time.Hour).Unix()
	url := fmt.Sprintf("%s/%s?period1=%d&period2=%d&interval=1d&events=div", p.baseURL, ticker, period1, period2)

	result, err := p.query(ctx, url)
	if err != nil {
		slog.Warn("historical market data unavailable", "ticker", ticker, "period_end", periodEnd, "err", err)
		return
	}
	if len(result.Indicators.Quote) == 0 {
		return
	}
	quote := result.Indicators.Quote[0]

	var (
		lastClose     *float64
		lastCloseDate string
		high, low     *float64
	)
	targetUnix := target.Add(24 * time.Hour).Unix()
	for i, ts := range result.Timestamp {
		if ts > targetUnix {
			break
		}
		if i < len(quote.Close) && quote.Close[i] != nil {
			lastClose = quote.Close[i]
			lastCloseDate = time.Unix(ts, 0).UTC().Format("2006-01-02")
		}
		if i < len(quote.High) && quote.High[i] != nil {
			if high == nil || *quote.High[i] > *high {
				high = quote.High[i]
			}
		}
		if i < len(quote.Low) && quote.Low[i] != nil {
			if low == nil || *quote.Low[i] < *low {
				low = quote.Low[i]
			}
		}
	}

	if lastClose == nil {
		return
	}
	data.Price = lastClose
	data.PriceDate = lastCloseDate
	data.FiftyTwoWeekHigh = high
	data.FiftyTwoWeekLow = low
	data.DividendYield = trailingDividendYield(result.Events.Dividends, target, *lastClose)
	data.IsHistorical = true
}

// trailingDividendYield sums the dividends paid in the 12 months up to
// the target date and expresses them as a fraction of price.
func trailingDividendYield(dividends map[string]chartDividend, target time.Time, price float64) *float64 {
	if price <= 0 || len(dividends) == 0 {
		return nil
	}
	oneYearAgo := target.Add(-365 * 24 * time.Hour).Unix()
	targetUnix := target.Add(24 * time.Hour).Unix()

	var annual float64
	for _, d := range dividends {
		if d.Date >= oneYearAgo && d.Date <= targetUnix {
			annual += d.Amount
		}
	}
	if annual <= 0 {
		return nil
	}
	yield := annual / price
	return &yield
}

func (p *QuoteProvider) query(ctx context.Context, url string) (*chartResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; filinglens)")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse chart response: %w", err)
	}
	if parsed.Chart.Error != nil {
		return nil, fmt.Errorf("chart API error: %s", parsed.Chart.Error.Description)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, fmt.Errorf("chart API returned no results")
	}
	return &parsed.Chart.Result[0], nil
}
