// Package broker implements the Redis-backed task queue: dispatch with
// task-id dedup, delayed delivery, bounded retries, and a dead-letter list.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shopdesk-io/shopdesk/pkg/metrics"
)

// Task is one unit of work on the queue.
type Task struct {
	Name    string          `json:"name"`
	ID      string          `json:"id"`
	Args    json.RawMessage `json:"args"`
	Attempt int             `json:"attempt"`
}

// Config holds queue tuning knobs.
type Config struct {
	// Namespace prefixes every Redis key so multiple deployments can
	// share one Redis.
	Namespace string

	// DedupTTL bounds how long a task ID suppresses re-dispatch.
	DedupTTL time.Duration

	// MaxRetries is the number of re-deliveries after the first failure.
	MaxRetries int

	// RetryBackoff is the base delay before the first retry; it doubles
	// per attempt.
	RetryBackoff time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Namespace:    "shopdesk",
		DedupTTL:     24 * time.Hour,
		MaxRetries:   3,
		RetryBackoff: 10 * time.Second,
	}
}

// Broker dispatches tasks and owns the queue keys.
type Broker struct {
	rdb     redis.UniversalClient
	cfg     Config
	metrics *metrics.Metrics

	// now is replaceable in tests to control delayed-task due times.
	now func() time.Time
}

// NewBroker creates a broker on an existing Redis client.
func NewBroker(rdb redis.UniversalClient, cfg Config, m *metrics.Metrics) *Broker {
	if cfg.Namespace == "" {
		cfg.Namespace = "shopdesk"
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 24 * time.Hour
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 10 * time.Second
	}
	return &Broker{rdb: rdb, cfg: cfg, metrics: m, now: time.Now}
}

func (b *Broker) readyKey() string   { return b.cfg.Namespace + ":queue:ready" }
func (b *Broker) delayedKey() string { return b.cfg.Namespace + ":queue:delayed" }
func (b *Broker) deadKey() string    { return b.cfg.Namespace + ":queue:dead" }
func (b *Broker) dedupKey(id string) string {
	return b.cfg.Namespace + ":task:" + id
}

// Dispatch enqueues a task unless the task ID was already dispatched
// within the dedup window. Returns true when the task was enqueued.
// A zero delay puts the task on the ready list immediately; otherwise it
// is parked on the delayed set until due.
func (b *Broker) Dispatch(ctx context.Context, name, taskID string, args any, delay time.Duration) (bool, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return false, fmt.Errorf("failed to marshal task args: %w", err)
	}

	ok, err := b.rdb.SetNX(ctx, b.dedupKey(taskID), "1", b.cfg.DedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set dedup key: %w", err)
	}
	if !ok {
		if b.metrics != nil {
			b.metrics.TasksDeduped.WithLabelValues(name).Inc()
		}
		slog.Debug("Task already dispatched, skipping", "task", name, "task_id", taskID)
		return false, nil
	}

	task := Task{Name: name, ID: taskID, Args: raw}
	if err := b.enqueue(ctx, task, delay); err != nil {
		return false, err
	}

	slog.Debug("Task dispatched", "task", name, "task_id", taskID, "delay", delay)
	return true, nil
}

// enqueue places an already-deduped task on the appropriate structure.
// Used by Dispatch and by the retry path (which must bypass dedup).
func (b *Broker) enqueue(ctx context.Context, task Task, delay time.Duration) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if delay <= 0 {
		if err := b.rdb.LPush(ctx, b.readyKey(), payload).Err(); err != nil {
			return fmt.Errorf("failed to push task to ready list: %w", err)
		}
		return nil
	}

	due := float64(b.now().Add(delay).UnixMilli())
	if err := b.rdb.ZAdd(ctx, b.delayedKey(), redis.Z{Score: due, Member: payload}).Err(); err != nil {
		return fmt.Errorf("failed to add task to delayed set: %w", err)
	}
	return nil
}

// promoteScript atomically moves due tasks from the delayed set to the
// ready list. KEYS[1]=delayed, KEYS[2]=ready, ARGV[1]=now ms, ARGV[2]=batch.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, task in ipairs(due) do
  redis.call('ZREM', KEYS[1], task)
  redis.call('LPUSH', KEYS[2], task)
end
return #due
`)

// PromoteDue moves tasks whose delay has elapsed onto the ready list.
// Returns the number of promoted tasks.
func (b *Broker) PromoteDue(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}
	now := b.now().UnixMilli()
	n, err := promoteScript.Run(ctx, b.rdb, []string{b.delayedKey(), b.readyKey()}, now, batch).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to promote delayed tasks: %w", err)
	}
	return n, nil
}

// Pop takes the oldest ready task, or nil when the queue is empty.
func (b *Broker) Pop(ctx context.Context) (*Task, error) {
	payload, err := b.rdb.RPop(ctx, b.readyKey()).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop task: %w", err)
	}

	var task Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// Retry re-enqueues a failed task with exponential backoff, or moves it to
// the dead-letter list once retries are exhausted. Returns true when the
// task was re-enqueued.
func (b *Broker) Retry(ctx context.Context, task Task) (bool, error) {
	if task.Attempt >= b.cfg.MaxRetries {
		payload, err := json.Marshal(task)
		if err != nil {
			return false, fmt.Errorf("failed to marshal dead task: %w", err)
		}
		if err := b.rdb.LPush(ctx, b.deadKey(), payload).Err(); err != nil {
			return false, fmt.Errorf("failed to push task to dead-letter list: %w", err)
		}
		if b.metrics != nil {
			b.metrics.DeadLettered.WithLabelValues(task.Name).Inc()
		}
		slog.Warn("Task dead-lettered", "task", task.Name, "task_id", task.ID, "attempts", task.Attempt)
		return false, nil
	}

	backoff := b.cfg.RetryBackoff * (1 << task.Attempt)
	task.Attempt++
	if err := b.enqueue(ctx, task, backoff); err != nil {
		return false, err
	}
	slog.Info("Task scheduled for retry",
		"task", task.Name, "task_id", task.ID, "attempt", task.Attempt, "backoff", backoff)
	return true, nil
}

// Depths reports the current size of each queue structure.
func (b *Broker) Depths(ctx context.Context) (ready, delayed, dead int64, err error) {
	ready, err = b.rdb.LLen(ctx, b.readyKey()).Result()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to read ready depth: %w", err)
	}
	delayed, err = b.rdb.ZCard(ctx, b.delayedKey()).Result()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to read delayed depth: %w", err)
	}
	dead, err = b.rdb.LLen(ctx, b.deadKey()).Result()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to read dead-letter depth: %w", err)
	}
	return ready, delayed, dead, nil
}
