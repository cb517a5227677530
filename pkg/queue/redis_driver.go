package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ourstore/storefront/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	redisQueueKey   = "storefront:queue:jobs"
	redisDelayedKey = "storefront:queue:delayed"
)

// RedisDriver keeps ready jobs in a list (LPUSH/BRPOP) and delayed jobs in
// a sorted set scored by their due time.
type RedisDriver struct {
	rdb  *redis.Client
	stop context.CancelFunc
	done chan struct{}
}

// NewRedisDriver starts the delayed-job promoter; Close stops it.
func NewRedisDriver(rdb *redis.Client) *RedisDriver {
	ctx, cancel := context.WithCancel(context.Background())
	d := &RedisDriver{rdb: rdb, stop: cancel, done: make(chan struct{})}
	go d.promoteLoop(ctx)
	return d
}

func (d *RedisDriver) Push(ctx context.Context, payload []byte) error {
	if err := d.rdb.LPush(ctx, redisQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("queue/redis: push: %w", err)
	}
	return nil
}

func (d *RedisDriver) PushDelayed(ctx context.Context, payload []byte, delay time.Duration) error {
	err := d.rdb.ZAdd(ctx, redisDelayedKey, redis.Z{
		Score:  float64(time.Now().Add(delay).Unix()),
		Member: string(payload),
	}).Err()
	if err != nil {
		return fmt.Errorf("queue/redis: push delayed: %w", err)
	}
	return nil
}

// Pop waits up to 5s for a job.
func (d *RedisDriver) Pop(ctx context.Context) ([]byte, error) {
	result, err := d.rdb.BRPop(ctx, 5*time.Second, redisQueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue/redis: pop: %w", err)
	}
	if len(result) < 2 {
		return nil, nil
	}
	return []byte(result[1]), nil
}

func (d *RedisDriver) Close() {
	d.stop()
	<-d.done
}

func (d *RedisDriver) promoteLoop(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.promote(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("queue/redis: promote delayed jobs", "error", err)
			}
		}
	}
}

// promote moves due jobs to the ready list. Only the process whose ZREM
// removed a member pushes it, so several servers never double-run a job.
func (d *RedisDriver) promote(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	due, err := d.rdb.ZRangeByScore(ctx, redisDelayedKey, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return err
	}
	for _, job := range due {
		removed, err := d.rdb.ZRem(ctx, redisDelayedKey, job).Result()
		if err != nil {
			return err
		}
		if removed == 1 {
			if err := d.rdb.LPush(ctx, redisQueueKey, job).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}
