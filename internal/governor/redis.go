package governor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 10

// RedisGovernor keeps each key's window in a sorted set scored by admission
// time in milliseconds, so several bot replicas share one budget.
type RedisGovernor struct {
	client   *redis.Client
	prefix   string
	window   time.Duration
	maxCalls int
	now      func() time.Time
}

// NewRedisGovernor connects to addr and verifies the connection.
func NewRedisGovernor(addr string, windowSize time.Duration, maxCalls int) (*RedisGovernor, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  30 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisGovernor{
		client:   client,
		prefix:   "stockinsight:rate",
		window:   windowSize,
		maxCalls: maxCalls,
		now:      time.Now,
	}, nil
}

func (g *RedisGovernor) wrapKey(key string) string {
	return g.prefix + ":" + key
}

// Allow runs the count-then-append step inside WATCH/MULTI and retries when
// another replica touched the same key in between.
func (g *RedisGovernor) Allow(ctx context.Context, key string) (bool, error) {
	k := g.wrapKey(key)
	now := g.now()
	cutoff := strconv.FormatInt(now.Add(-g.window).UnixMilli(), 10)

	var admitted bool
	txf := func(tx *redis.Tx) error {
		admitted = false
		n, err := tx.ZCount(ctx, k, "("+cutoff, "+inf").Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if n >= int64(g.maxCalls) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRemRangeByScore(ctx, k, "-inf", cutoff)
			pipe.ZAdd(ctx, k, redis.Z{
				Score:  float64(now.UnixMilli()),
				Member: uuid.NewString(),
			})
			pipe.PExpire(ctx, k, g.window)
			return nil
		})
		if err == nil {
			admitted = true
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := g.client.Watch(ctx, txf, k)
		if err == nil {
			return admitted, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return false, fmt.Errorf("redis governor: %w", err)
	}
	return false, fmt.Errorf("redis governor: %s: too many transaction conflicts", key)
}

// Close closes the Redis connection.
func (g *RedisGovernor) Close() error {
	return g.client.Close()
}
