package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopdesk-io/shopdesk/pkg/metrics"
)

// PoolConfig holds worker pool tuning knobs.
type PoolConfig struct {
	WorkerCount     int
	PollInterval    time.Duration
	PromoteInterval time.Duration
	PromoteBatch    int
	// TaskTimeout bounds one handler invocation.
	TaskTimeout time.Duration
}

// DefaultPoolConfig returns the production defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		WorkerCount:     4,
		PollInterval:    200 * time.Millisecond,
		PromoteInterval: 250 * time.Millisecond,
		PromoteBatch:    100,
		TaskTimeout:     2 * time.Minute,
	}
}

// PoolHealth is a point-in-time snapshot of the pool.
type PoolHealth struct {
	IsHealthy     bool           `json:"is_healthy"`
	RedisError    string         `json:"redis_error,omitempty"`
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	ReadyDepth    int64          `json:"ready_depth"`
	DelayedDepth  int64          `json:"delayed_depth"`
	DeadDepth     int64          `json:"dead_depth"`
	WorkerStats   []WorkerHealth `json:"workers"`
}

// WorkerPool manages queue workers plus the delayed-task promoter.
type WorkerPool struct {
	podID    string
	broker   *Broker
	registry *Registry
	cfg      PoolConfig
	metrics  *metrics.Metrics
	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(podID string, b *Broker, registry *Registry, cfg PoolConfig, m *metrics.Metrics) *WorkerPool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.PromoteInterval <= 0 {
		cfg.PromoteInterval = 250 * time.Millisecond
	}
	return &WorkerPool{
		podID:    podID,
		broker:   b,
		registry: registry,
		cfg:      cfg,
		metrics:  m,
		workers:  make([]*Worker, 0, cfg.WorkerCount),
		stopCh:   make(chan struct{}),
	}
}

// Start spawns worker goroutines and the promoter background task.
// It is safe to call multiple times; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return nil
	}
	p.started = true

	slog.Info("Starting worker pool", "pod_id", p.podID, "worker_count", p.cfg.WorkerCount)

	for i := 0; i < p.cfg.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		worker := NewWorker(workerID, p.broker, p.registry, p.cfg.PollInterval, p.cfg.TaskTimeout, p.metrics)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runPromoter(ctx)
	}()

	slog.Info("Worker pool started")
	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// Workers finish their current tasks before exiting (graceful shutdown).
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool gracefully")

	for _, worker := range p.workers {
		worker.Stop()
	}

	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	slog.Info("Worker pool stopped gracefully")
}

// runPromoter periodically moves due delayed tasks to the ready list and
// refreshes the queue depth gauges.
func (p *WorkerPool) runPromoter(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PromoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.broker.PromoteDue(ctx, p.cfg.PromoteBatch); err != nil {
				slog.Error("Failed to promote delayed tasks", "error", err)
				continue
			}
			if p.metrics != nil {
				ready, delayed, dead, err := p.broker.Depths(ctx)
				if err != nil {
					slog.Error("Failed to read queue depths", "error", err)
					continue
				}
				p.metrics.QueueDepth.WithLabelValues("ready").Set(float64(ready))
				p.metrics.QueueDepth.WithLabelValues("delayed").Set(float64(delayed))
				p.metrics.QueueDepth.WithLabelValues("dead").Set(float64(dead))
			}
		}
	}
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health() *PoolHealth {
	ctx := context.Background()

	ready, delayed, dead, err := p.broker.Depths(ctx)
	var redisError string
	if err != nil {
		slog.Error("Failed to query queue depths for health check", "pod_id", p.podID, "error", err)
		redisError = err.Error()
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == WorkerStatusWorking {
			activeWorkers++
		}
	}

	return &PoolHealth{
		IsHealthy:     len(p.workers) > 0 && err == nil,
		RedisError:    redisError,
		ActiveWorkers: activeWorkers,
		TotalWorkers:  len(p.workers),
		ReadyDepth:    ready,
		DelayedDepth:  delayed,
		DeadDepth:     dead,
		WorkerStats:   workerStats,
	}
}
