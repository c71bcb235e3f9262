package config

import (
	"time"

	"github.com/shopdesk-io/shopdesk/pkg/broker"
)

// QueueConfig contains broker and worker pool configuration.
type QueueConfig struct {
	// RedisAddr is the host:port of the Redis-compatible broker.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Namespace prefixes every broker key so deployments can share one
	// Redis.
	Namespace string `yaml:"namespace"`

	// DedupTTL bounds how long a dispatched task ID suppresses
	// re-dispatch.
	DedupTTL time.Duration `yaml:"dedup_ttl"`

	// MaxRetries is the number of re-deliveries after the first failure.
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoff is the base delay before the first retry; it doubles
	// per attempt.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// WorkerCount is the number of worker goroutines per replica.
	WorkerCount int `yaml:"worker_count"`

	// PollInterval is how long an idle worker sleeps between pops.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PromoteInterval is how often due delayed tasks are moved to the
	// ready queue.
	PromoteInterval time.Duration `yaml:"promote_interval"`

	// PromoteBatch caps how many delayed tasks one promotion moves.
	PromoteBatch int `yaml:"promote_batch"`

	// TaskTimeout bounds a single task handler invocation.
	TaskTimeout time.Duration `yaml:"task_timeout"`

	// MailPollInterval is the beat period of the mailbox poll task.
	MailPollInterval time.Duration `yaml:"mail_poll_interval"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	def := broker.DefaultConfig()
	return &QueueConfig{
		RedisAddr:        "localhost:6379",
		Namespace:        def.Namespace,
		DedupTTL:         def.DedupTTL,
		MaxRetries:       def.MaxRetries,
		RetryBackoff:     def.RetryBackoff,
		WorkerCount:      4,
		PollInterval:     200 * time.Millisecond,
		PromoteInterval:  250 * time.Millisecond,
		PromoteBatch:     100,
		TaskTimeout:      2 * time.Minute,
		MailPollInterval: time.Minute,
	}
}

// BrokerConfig converts to the broker's own config type.
func (q *QueueConfig) BrokerConfig() broker.Config {
	return broker.Config{
		Namespace:    q.Namespace,
		DedupTTL:     q.DedupTTL,
		MaxRetries:   q.MaxRetries,
		RetryBackoff: q.RetryBackoff,
	}
}

// PoolConfig converts to the worker pool's own config type.
func (q *QueueConfig) PoolConfig() broker.PoolConfig {
	return broker.PoolConfig{
		WorkerCount:     q.WorkerCount,
		PollInterval:    q.PollInterval,
		PromoteInterval: q.PromoteInterval,
		PromoteBatch:    q.PromoteBatch,
		TaskTimeout:     q.TaskTimeout,
	}
}
