package market

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	liveQuoteTTL       = 15 * time.Minute
	historicalQuoteTTL = 24 * time.Hour
)

// QuoteCache wraps a Provider with a Redis cache. Historical quotes
// are immutable so they get a long TTL; live quotes expire quickly.
type QuoteCache struct {
	client   *redis.Client
	provider Provider
}

func NewQuoteCache(client *redis.Client, provider Provider) *QuoteCache {
	return &QuoteCache{client: client, provider: provider}
}

func quoteKey(ticker, periodEnd string) string {
	if periodEnd == "" {
		periodEnd = "live"
	}
	return "quote:" + ticker + ":" + periodEnd
}

// Fetch implements Provider. Cache failures fall through to the
// underlying provider.
func (c *QuoteCache) Fetch(ctx context.Context, ticker, periodEnd string, filingShares *float64) MarketData {
	key := quoteKey(ticker, periodEnd)

	if val, err := c.client.Get(ctx, key).Result(); err == nil {
		var data MarketData
		if err := json.Unmarshal([]byte(val), &data); err == nil {
			slog.Debug("quote cache hit", "key", key)
			return data
		}
	} else if !errors.Is(err, redis.Nil) {
		slog.Warn("quote cache read failed", "key", key, "err", err)
	}

	data := c.provider.Fetch(ctx, ticker, periodEnd, filingShares)

	// Only cache responses that actually carry a price.
	if data.Price != nil {
		ttl := liveQuoteTTL
		if data.IsHistorical {
			ttl = historicalQuoteTTL
		}
		if encoded, err := json.Marshal(data); err == nil {
			if err := c.client.Set(ctx, key, encoded, ttl).Err(); err != nil {
				slog.Warn("quote cache write failed", "key", key, "err", err)
			}
		}
	}
	return data
}
