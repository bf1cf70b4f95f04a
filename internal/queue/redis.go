package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hyperjump/assethub/internal/apperrors"
	"github.com/hyperjump/assethub/internal/models"
)

// RedisConfig configures a RedisQueue.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Name is the ready list key. Delayed jobs live in Name+":delayed".
	Name string
}

// promoteScript moves due jobs from the delayed set to the ready list atomically.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, payload in ipairs(due) do
	redis.call('ZREM', KEYS[2], payload)
	redis.call('RPUSH', KEYS[1], payload)
end
return #due
`)

// RedisQueue is a list-backed queue: RPUSH to enqueue, BLPOP to dequeue,
// and a sorted set scored by due time for delayed retries.
type RedisQueue struct {
	client  *redis.Client
	ready   string
	delayed string
}

// NewRedisQueue connects and pings the server.
func NewRedisQueue(ctx context.Context, cfg RedisConfig) (*RedisQueue, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.Name == "" {
		cfg.Name = models.JobTypeVectorize
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, apperrors.Transient(err))
	}
	return &RedisQueue{
		client:  client,
		ready:   "queue:" + cfg.Name,
		delayed: "queue:" + cfg.Name + ":delayed",
	}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, job *models.VectorizationJob) error {
	payload, err := encode(job)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, q.ready, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", apperrors.Transient(err))
	}
	return nil
}

func (q *RedisQueue) EnqueueAfter(ctx context.Context, job *models.VectorizationJob, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, job)
	}
	payload, err := encode(job)
	if err != nil {
		return err
	}
	due := time.Now().Add(delay).UnixMilli()
	if err := q.client.ZAdd(ctx, q.delayed, redis.Z{Score: float64(due), Member: payload}).Err(); err != nil {
		return fmt.Errorf("failed to schedule job: %w", apperrors.Transient(err))
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.VectorizationJob, error) {
	if err := q.promote(ctx); err != nil {
		return nil, err
	}
	result, err := q.client.BLPop(ctx, timeout, q.ready).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to dequeue job: %w", apperrors.Transient(err))
	}
	// BLPOP returns the key at index 0 and the payload at index 1.
	if len(result) < 2 {
		return nil, fmt.Errorf("invalid result format from redis")
	}
	var job models.VectorizationJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, apperrors.Permanent(fmt.Errorf("failed to decode job: %w", err))
	}
	return &job, nil
}

func (q *RedisQueue) promote(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := promoteScript.Run(ctx, q.client, []string{q.ready, q.delayed}, now).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to promote delayed jobs: %w", apperrors.Transient(err))
	}
	return nil
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	ready, err := q.client.LLen(ctx, q.ready).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	delayed, err := q.client.ZCard(ctx, q.delayed).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read delayed set size: %w", err)
	}
	return int(ready + delayed), nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func encode(job *models.VectorizationJob) ([]byte, error) {
	if err := validate(job); err != nil {
		return nil, err
	}
	return json.Marshal(job)
}
