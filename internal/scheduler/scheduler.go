package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/pkg/logger"
	"go.uber.org/zap"
)

// ErrSchedulerClosed is returned by After once the scheduler has been shut down
var ErrSchedulerClosed = errors.New("scheduler closed")

// Task is a unit of deferred work
type Task func()

// Handle identifies a scheduled task
type Handle uint64

// Scheduler runs tasks after a delay and lets callers cancel them.
// Cancel reports whether the task was prevented from running.
type Scheduler interface {
	After(d time.Duration, task Task) (Handle, error)
	Cancel(h Handle) bool
}

// TimerScheduler schedules tasks on runtime timers
type TimerScheduler struct {
	mu     sync.Mutex
	next   Handle
	timers map[Handle]*time.Timer
	closed bool
	wg     sync.WaitGroup
}

// NewTimerScheduler creates a new timer backed scheduler
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{
		timers: make(map[Handle]*time.Timer),
	}
}

// After schedules task to run once after d
func (s *TimerScheduler) After(d time.Duration, task Task) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSchedulerClosed
	}

	s.next++
	h := s.next
	s.wg.Add(1)
	s.timers[h] = time.AfterFunc(d, func() {
		s.mu.Lock()
		_, live := s.timers[h]
		delete(s.timers, h)
		s.mu.Unlock()

		if !live {
			return
		}
		defer s.wg.Done()
		runTask(h, task)
	})
	return h, nil
}

// Cancel stops a pending task
func (s *TimerScheduler) Cancel(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[h]
	if !ok {
		return false
	}
	// if the timer already fired, its callback finds the handle gone and skips
	delete(s.timers, h)
	t.Stop()
	s.wg.Done()
	return true
}

// Pending returns the number of tasks that have not run yet
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Shutdown cancels every pending task and waits for running tasks to finish
func (s *TimerScheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for h, t := range s.timers {
		t.Stop()
		delete(s.timers, h)
		s.wg.Done()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runTask(h Handle, task Task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Get().Error("Scheduled task panicked",
				zap.Uint64("handle", uint64(h)),
				zap.Any("panic", r),
			)
		}
	}()
	task()
}
