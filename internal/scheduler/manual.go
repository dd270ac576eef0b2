package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/internal/clock"
)

// Manual is a deterministic scheduler driven by a fake clock.
// Tasks only run from Advance or RunDue, on the calling goroutine.
type Manual struct {
	mu    sync.Mutex
	clock *clock.Fake
	next  Handle
	tasks map[Handle]manualTask
}

type manualTask struct {
	due  time.Time
	seq  Handle
	task Task
}

// NewManual creates a manual scheduler on top of clk
func NewManual(clk *clock.Fake) *Manual {
	return &Manual{
		clock: clk,
		tasks: make(map[Handle]manualTask),
	}
}

// After registers task to run once the clock reaches now+d
func (m *Manual) After(d time.Duration, task Task) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.next++
	m.tasks[m.next] = manualTask{due: m.clock.Now().Add(d), seq: m.next, task: task}
	return m.next, nil
}

// Cancel removes a task that has not run yet
func (m *Manual) Cancel(h Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[h]; !ok {
		return false
	}
	delete(m.tasks, h)
	return true
}

// Advance moves the clock forward and runs every task that became due
func (m *Manual) Advance(d time.Duration) int {
	m.clock.Advance(d)
	return m.RunDue()
}

// RunDue runs tasks due at the current clock instant in deadline order.
// Returns the number of tasks run.
func (m *Manual) RunDue() int {
	ran := 0
	for {
		t, ok := m.popDue()
		if !ok {
			return ran
		}
		runTask(t.seq, t.task)
		ran++
	}
}

// Pending returns the number of tasks that have not run yet
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

func (m *Manual) popDue() (manualTask, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	due := make([]manualTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		if !t.due.After(now) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return manualTask{}, false
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].seq < due[j].seq
		}
		return due[i].due.Before(due[j].due)
	})
	delete(m.tasks, due[0].seq)
	return due[0], true
}
