package symbolcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m0rkovka/portfolio_pulse_bot/utils"
	"github.com/redis/go-redis/v9"
)

const (
	tickerKeyPrefix = "symbol:ticker:"
	nameKeyPrefix   = "symbol:name:"
)

var ErrNotFound = errors.New("error not found")

// RedisSymbolCache persists instrument-key to ticker and instrument-key to
// display-name mappings. Entries never expire: once a key is validated
// against the price feed it stays mapped until explicitly overwritten.
// Last write wins; overwriting with the same value is harmless.
type RedisSymbolCache struct {
	redis *redis.Client
}

func NewRedisSymbolCache(redisClient *redis.Client) *RedisSymbolCache {
	return &RedisSymbolCache{redis: redisClient}
}

func (c *RedisSymbolCache) GetTicker(ctx context.Context, key string) (string, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	res, err := c.redis.Get(ctx, tickerKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		slog.Error("failed on redis.Get", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", key))
		return "", err
	}

	return res, nil
}

func (c *RedisSymbolCache) SetTicker(ctx context.Context, key, ticker string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	err := c.redis.Set(ctx, tickerKeyPrefix+key, ticker, 0).Err()
	if err != nil {
		slog.Error("failed on redis.Set", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", key))
		return err
	}

	slog.Debug("symbol mapping saved", slog.String("rqID", rqID), slog.String("key", key), slog.String("ticker", ticker))

	return nil
}

func (c *RedisSymbolCache) GetDisplayName(ctx context.Context, key string) (string, error) {
	res, err := c.redis.Get(ctx, nameKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", err
	}
	return res, nil
}

func (c *RedisSymbolCache) SetDisplayName(ctx context.Context, key, name string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	err := c.redis.Set(ctx, nameKeyPrefix+key, name, 0).Err()
	if err != nil {
		slog.Error("failed on redis.Set", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", key))
		return err
	}

	return nil
}

// Clear drops every symbol mapping. Safe at any time: staleness, not
// corruption, is the only effect of a concurrent clear.
func (c *RedisSymbolCache) Clear(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	for _, prefix := range []string{tickerKeyPrefix, nameKeyPrefix} {
		iter := c.redis.Scan(ctx, 0, fmt.Sprintf("%s*", prefix), 0).Iterator()
		for iter.Next(ctx) {
			if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
				slog.Error("failed on redis.Del", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", iter.Val()))
				return err
			}
		}
		if err := iter.Err(); err != nil {
			slog.Error("failed on redis scan", slog.String("rqID", rqID), slog.String("err", err.Error()))
			return err
		}
	}

	return nil
}
