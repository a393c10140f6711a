// Package sweep runs periodic housekeeping: closing overdue blood requests,
// removing expired sessions and pruning rate-limit windows.
package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roktodanbd/roktodan/internal/metrics"
)

// Task is one unit of housekeeping. Run reports how many rows or entries it
// removed or changed.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// Sweeper runs its tasks on a fixed interval until stopped.
type Sweeper struct {
	mu       sync.RWMutex
	tasks    []Task
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(interval time.Duration, logger *slog.Logger, m *metrics.Metrics, tasks ...Task) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		tasks:    tasks,
		interval: interval,
		logger:   logger,
		metrics:  m,
	}
}

// Start runs one sweep immediately and then one per interval.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		s.RunOnce(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RunOnce runs every task in order. A failing task is logged and does not
// stop the ones after it. It returns the per-task counts of the tasks that
// succeeded.
func (s *Sweeper) RunOnce(ctx context.Context) map[string]int64 {
	start := time.Now()
	defer s.metrics.ObserveSweep(start)

	counts := make(map[string]int64, len(s.tasks))
	for _, t := range s.tasks {
		if ctx.Err() != nil {
			break
		}
		n, err := t.Run(ctx)
		if err != nil {
			s.logger.Error("sweep task failed", "task", t.Name, "error", err)
			continue
		}
		counts[t.Name] = n
		if n > 0 {
			s.logger.Info("sweep task", "task", t.Name, "count", n)
		}
	}
	return counts
}
