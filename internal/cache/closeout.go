// Package cache stores end-of-day closeouts in Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/xenking/odin-pos/internal/domain/sale"
)

const dayLayout = "2006-01-02"

var _ sale.CloseoutCache = (*CloseoutCache)(nil)

// CloseoutCache is a sale.CloseoutCache on Redis.
type CloseoutCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewCloseoutCache returns a cache whose entries expire after ttl. Zero ttl
// keeps entries forever.
func NewCloseoutCache(client redis.Cmdable, ttl time.Duration) *CloseoutCache {
	return &CloseoutCache{client: client, ttl: ttl}
}

type closeoutEntry struct {
	Date       string          `json:"date"`
	SalesCount int             `json:"salesCount"`
	ItemsQty   int             `json:"itemsQty"`
	Total      decimal.Decimal `json:"total"`
	TotalCash  decimal.Decimal `json:"totalCash"`
	TotalCard  decimal.Decimal `json:"totalCard"`
}

func (c *CloseoutCache) Get(ctx context.Context, day time.Time) (*sale.Closeout, bool, error) {
	data, err := c.client.Get(ctx, cacheKey(day)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis get")
	}

	var e closeoutEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, errors.Wrap(err, "unmarshal closeout")
	}
	date, err := time.Parse(dayLayout, e.Date)
	if err != nil {
		return nil, false, errors.Wrap(err, "parse closeout date")
	}
	return &sale.Closeout{
		Date:       date,
		SalesCount: e.SalesCount,
		ItemsQty:   e.ItemsQty,
		Total:      e.Total,
		TotalCash:  e.TotalCash,
		TotalCard:  e.TotalCard,
	}, true, nil
}

func (c *CloseoutCache) Set(ctx context.Context, co *sale.Closeout) error {
	data, err := json.Marshal(closeoutEntry{
		Date:       co.Date.UTC().Format(dayLayout),
		SalesCount: co.SalesCount,
		ItemsQty:   co.ItemsQty,
		Total:      co.Total,
		TotalCash:  co.TotalCash,
		TotalCard:  co.TotalCard,
	})
	if err != nil {
		return errors.Wrap(err, "marshal closeout")
	}
	if err := c.client.Set(ctx, cacheKey(co.Date), data, c.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

func cacheKey(day time.Time) string {
	return fmt.Sprintf("pos:closeout:%s", day.UTC().Format(dayLayout))
}
