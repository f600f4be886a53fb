package market

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func floatPtr(v float64) *float64 { return &v }

func chartJSON(price float64) string {
	return fmt.Sprintf(`{"chart":{"result":[{"meta":{"regularMarketPrice":%f,"fiftyTwoWeekHigh":260.1,"fiftyTwoWeekLow":164.08},"timestamp":[],"indicators":{"quote":[{"close":[],"high":[],"low":[]}]}}],"error":null}}`, price)
}

func TestFetchCurrentQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartJSON(211.45))
	}))
	defer srv.Close()

	p := NewQuoteProviderWithBase(srv.URL)
	data := p.Fetch(context.Background(), "AAPL", "", floatPtr(15000))

	if data.Price == nil || *data.Price != 211.45 {
		t.Fatalf("price = %v", data.Price)
	}
	if data.IsHistorical {
		t.Error("live quote marked historical")
	}
	if data.MarketCap == nil || *data.MarketCap != 211.45*15000 {
		t.Errorf("market cap = %v", data.MarketCap)
	}
	if data.FiftyTwoWeekHigh == nil || *data.FiftyTwoWeekHigh != 260.1 {
		t.Errorf("52w high = %v", data.FiftyTwoWeekHigh)
	}
}

func TestFetchHistoricalQuote(t *testing.T) {
	// Period end well in the past relative to the fixed clock.
	target := time.Date(2025, 3, 29, 0, 0, 0, 0, time.UTC)
	day := func(offset int) int64 { return target.AddDate(0, 0, offset).Unix() }

	body := fmt.Sprintf(`{"chart":{"result":[{"meta":{},"timestamp":[%d,%d,%d],"indicators":{"quote":[{"close":[180.5,185.25,199.9],"high":[181.0,186.0,200.5],"low":[179.0,184.0,198.0]}]},"events":{"dividends":{"%d":{"amount":0.25,"date":%d},"%d":{"amount":0.26,"date":%d},"%d":{"amount":0.30,"date":%d}}}}],"error":null}}`,
		day(-10), day(-1), day(5),
		day(-300), day(-300), day(-30), day(-30), day(30), day(30))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("period1") == "" {
			t.Errorf("historical request missing period1: %s", r.URL)
		}
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	p := NewQuoteProviderWithBase(srv.URL)
	p.now = func() time.Time { return time.Date(2025, 8, 30, 0, 0, 0, 0, time.UTC) }

	data := p.Fetch(context.Background(), "AAPL", "2025-03-29", nil)
	if !data.IsHistorical {
		t.Fatal("expected historical quote")
	}
	// The close 5 days after the period end must be ignored.
	if data.Price == nil || *data.Price != 185.25 {
		t.Fatalf("price = %v, want 185.25", data.Price)
	}
	if data.FiftyTwoWeekHigh == nil || *data.FiftyTwoWeekHigh != 186.0 {
		t.Errorf("52w high = %v, want 186.0", data.FiftyTwoWeekHigh)
	}
	if data.FiftyTwoWeekLow == nil || *data.FiftyTwoWeekLow != 179.0 {
		t.Errorf("52w low = %v, want 179.0", data.FiftyTwoWeekLow)
	}
	// Only the two dividends inside the trailing year count: 0.51/185.25.
	if data.DividendYield == nil {
		t.Fatal("dividend yield missing")
	}
	if got, want := *data.DividendYield, 0.51/185.25; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("dividend yield = %v, want %v", got, want)
	}
}

func TestFetchNeverErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	data := NewQuoteProviderWithBase(srv.URL).Fetch(context.Background(), "AAPL", "", nil)
	if data.Ticker != "AAPL" {
		t.Errorf("ticker = %s", data.Ticker)
	}
	if data.Price != nil {
		t.Error("failed fetch should leave price nil")
	}
}

type stubProvider struct {
	calls int
	data  MarketData
}

func (s *stubProvider) Fetch(context.Context, string, string, *float64) MarketData {
	s.calls++
	return s.data
}

func TestQuoteCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	stub := &stubProvider{data: MarketData{
		Ticker:       "AAPL",
		Price:        floatPtr(185.25),
		IsHistorical: true,
		PriceDate:    "2025-03-28",
	}}
	cache := NewQuoteCache(client, stub)
	ctx := context.Background()

	first := cache.Fetch(ctx, "AAPL", "2025-03-29", nil)
	second := cache.Fetch(ctx, "AAPL", "2025-03-29", nil)

	if stub.calls != 1 {
		t.Errorf("provider called %d times, want 1", stub.calls)
	}
	if *first.Price != *second.Price || second.PriceDate != "2025-03-28" {
		t.Error("cached quote does not match original")
	}
}

func TestQuoteCacheSkipsEmptyQuotes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	stub := &stubProvider{data: MarketData{Ticker: "AAPL"}}
	cache := NewQuoteCache(client, stub)
	ctx := context.Background()

	cache.Fetch(ctx, "AAPL", "", nil)
	cache.Fetch(ctx, "AAPL", "", nil)

	if stub.calls != 2 {
		t.Errorf("empty quotes must not be cached, provider calls = %d", stub.calls)
	}
}
