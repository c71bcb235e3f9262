package broker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopdesk-io/shopdesk/pkg/metrics"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth is a point-in-time snapshot of one worker.
type WorkerHealth struct {
	ID             string       `json:"id"`
	Status         WorkerStatus `json:"status"`
	CurrentTaskID  string       `json:"current_task_id,omitempty"`
	TasksProcessed int          `json:"tasks_processed"`
	LastActivity   time.Time    `json:"last_activity"`
}

// Worker is a single queue worker that polls for and processes tasks.
type Worker struct {
	id           string
	broker       *Broker
	registry     *Registry
	pollInterval time.Duration
	taskTimeout  time.Duration
	metrics      *metrics.Metrics
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup

	// Health tracking
	mu             sync.RWMutex
	status         WorkerStatus
	currentTaskID  string
	tasksProcessed int
	lastActivity   time.Time
}

// NewWorker creates a new queue worker.
func NewWorker(id string, b *Broker, registry *Registry, pollInterval, taskTimeout time.Duration, m *metrics.Metrics) *Worker {
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}
	if taskTimeout <= 0 {
		taskTimeout = 2 * time.Minute
	}
	return &Worker{
		id:           id,
		broker:       b,
		registry:     registry,
		pollInterval: pollInterval,
		taskTimeout:  taskTimeout,
		metrics:      m,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish.
// It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:             w.id,
		Status:         w.status,
		CurrentTaskID:  w.currentTaskID,
		TasksProcessed: w.tasksProcessed,
		LastActivity:   w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			task, err := w.broker.Pop(ctx)
			if err != nil {
				log.Error("Failed to pop task", "error", err)
				w.sleep(time.Second)
				continue
			}
			if task == nil {
				w.sleep(w.pollInterval)
				continue
			}
			w.process(ctx, *task)
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// process runs the registered handler and routes failures into the retry
// path.
func (w *Worker) process(ctx context.Context, task Task) {
	log := slog.With("worker_id", w.id, "task", task.Name, "task_id", task.ID)

	w.setWorking(task.ID)
	defer w.setIdle()

	handler, ok := w.registry.Lookup(task.Name)
	if !ok {
		log.Error("No handler registered for task")
		if w.metrics != nil {
			w.metrics.TasksTotal.WithLabelValues(task.Name, "unroutable").Inc()
		}
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, w.taskTimeout)
	defer cancel()

	start := time.Now()
	err := handler(taskCtx, task)
	elapsed := time.Since(start)

	if w.metrics != nil {
		w.metrics.TaskDuration.WithLabelValues(task.Name).Observe(elapsed.Seconds())
	}

	if err != nil {
		log.Error("Task failed", "error", err, "attempt", task.Attempt, "duration", elapsed)
		if w.metrics != nil {
			w.metrics.TasksTotal.WithLabelValues(task.Name, "failed").Inc()
			w.metrics.TaskFailures.WithLabelValues(task.Name).Inc()
		}
		if _, retryErr := w.broker.Retry(ctx, task); retryErr != nil {
			log.Error("Failed to schedule retry", "error", retryErr)
		}
		return
	}

	log.Debug("Task completed", "duration", elapsed)
	if w.metrics != nil {
		w.metrics.TasksTotal.WithLabelValues(task.Name, "succeeded").Inc()
	}
}

func (w *Worker) setWorking(taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = WorkerStatusWorking
	w.currentTaskID = taskID
	w.lastActivity = time.Now()
}

func (w *Worker) setIdle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = WorkerStatusIdle
	w.currentTaskID = ""
	w.tasksProcessed++
	w.lastActivity = time.Now()
}
