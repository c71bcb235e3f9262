package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ScheduleEntry is one recurring task. The task ID is derived from the
// interval window, so replicas running the same schedule dispatch each
// window exactly once (the dedup guard suppresses the rest).
type ScheduleEntry struct {
	Task  string
	Every time.Duration
	Args  any
}

// Beat periodically dispatches scheduled tasks.
type Beat struct {
	broker   *Broker
	entries  []ScheduleEntry
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewBeat creates a scheduler over the given entries.
func NewBeat(b *Broker, entries []ScheduleEntry) *Beat {
	return &Beat{
		broker:  b,
		entries: entries,
		stopCh:  make(chan struct{}),
	}
}

// Start launches one ticker goroutine per schedule entry.
func (s *Beat) Start(ctx context.Context) {
	for _, entry := range s.entries {
		s.wg.Add(1)
		go func(e ScheduleEntry) {
			defer s.wg.Done()
			s.runEntry(ctx, e)
		}(entry)
	}
	slog.Info("Beat scheduler started", "entries", len(s.entries))
}

// Stop signals the scheduler to stop and waits for its goroutines.
func (s *Beat) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	slog.Info("Beat scheduler stopped")
}

func (s *Beat) runEntry(ctx context.Context, e ScheduleEntry) {
	ticker := time.NewTicker(e.Every)
	defer ticker.Stop()

	// Fire once at startup, then on every tick.
	s.dispatch(ctx, e)
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatch(ctx, e)
		}
	}
}

func (s *Beat) dispatch(ctx context.Context, e ScheduleEntry) {
	taskID := WindowTaskID(e.Task, time.Now(), e.Every)
	if _, err := s.broker.Dispatch(ctx, e.Task, taskID, e.Args, 0); err != nil {
		slog.Error("Failed to dispatch scheduled task", "task", e.Task, "error", err)
	}
}

// WindowTaskID builds a deterministic task ID for the interval window
// containing now.
func WindowTaskID(task string, now time.Time, every time.Duration) string {
	window := now.UnixMilli() / every.Milliseconds()
	return fmt.Sprintf("%s:%d", task, window)
}
