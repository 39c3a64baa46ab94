package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements the Queue interface on a Redis broker: pending tasks
// live on a list, retries wait on a sorted set scored by their ready time,
// and per-task state is kept under TTL'd keys.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue creates a RedisQueue from a Redis URL.
func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisQueue{client: redis.NewClient(opts)}, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Enqueue pushes the task onto the pending list and records its broker
// state as pending.
func (q *RedisQueue) Enqueue(ctx context.Context, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, tasksKey, payload)
	pipe.Set(ctx, taskStateKey(task.ID), StatePending, stateKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next pending task. The second return
// value is false when the wait timed out without work.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (Task, bool, error) {
	vals, err := q.client.BRPop(ctx, timeout, tasksKey).Result()
	if err == redis.Nil {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, fmt.Errorf("dequeue task: %w", err)
	}

	var task Task
	if err := json.Unmarshal([]byte(vals[1]), &task); err != nil {
		return Task{}, false, fmt.Errorf("unmarshal task: %w", err)
	}
	return task, true, nil
}

// ScheduleRetry parks the task on the retry set until readyAt and records
// its broker state as retry.
func (q *RedisQueue) ScheduleRetry(ctx context.Context, task Task, readyAt time.Time) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.ZAdd(ctx, retryZKey, redis.Z{Score: float64(readyAt.UnixMilli()), Member: payload})
	pipe.Set(ctx, taskStateKey(task.ID), StateRetry, stateKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	return nil
}

// PromoteDue moves retries whose ready time has passed back onto the pending
// list. It is called from a single scheduler goroutine per worker process;
// concurrent promoters could duplicate a task.
func (q *RedisQueue) PromoteDue(ctx context.Context, now time.Time) error {
	members, err := q.client.ZRangeByScore(ctx, retryZKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: 100,
	}).Result()
	if err != nil {
		return fmt.Errorf("list due retries: %w", err)
	}
	if len(members) == 0 {
		return nil
	}

	pipe := q.client.TxPipeline()
	for _, m := range members {
		pipe.LPush(ctx, tasksKey, m)
		pipe.ZRem(ctx, retryZKey, m)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("promote due retries: %w", err)
	}
	return nil
}

// SetTaskState records the broker-native state for a task ID with a TTL.
func (q *RedisQueue) SetTaskState(ctx context.Context, taskID, state string) error {
	return q.client.Set(ctx, taskStateKey(taskID), state, stateKeyTTL).Err()
}

// SetTaskResult records a finished task's prediction under its own TTL'd key.
func (q *RedisQueue) SetTaskResult(ctx context.Context, taskID string, result Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal task result: %w", err)
	}
	return q.client.Set(ctx, taskResultKey(taskID), payload, stateKeyTTL).Err()
}

// TaskResult returns the recorded prediction for a task ID. The second
// return value is false when no result is present.
func (q *RedisQueue) TaskResult(ctx context.Context, taskID string) (Result, bool, error) {
	val, err := q.client.Get(ctx, taskResultKey(taskID)).Result()
	if err == redis.Nil {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("get task result: %w", err)
	}

	var result Result
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return Result{}, false, fmt.Errorf("unmarshal task result: %w", err)
	}
	return result, true, nil
}

// TaskState returns the broker-native state for a task ID, or ErrUnknownTask
// when the key is absent or expired.
func (q *RedisQueue) TaskState(ctx context.Context, taskID string) (string, error) {
	val, err := q.client.Get(ctx, taskStateKey(taskID)).Result()
	if err == redis.Nil {
		return "", ErrUnknownTask
	}
	if err != nil {
		return "", fmt.Errorf("get task state: %w", err)
	}
	return val, nil
}
