package schedule

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
)

// Manual is a Scheduler whose entries only run when fired explicitly.
// Expressions are still parsed so invalid ones fail the same way as on CronScheduler.
type Manual struct {
	mu      sync.Mutex
	entries []*ManualEntry
}

type ManualEntry struct {
	Expr    string
	fn      func()
	stopped bool
	owner   *Manual
}

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Schedule(expr string, fn func()) (Handle, error) {
	if _, err := cron.ParseStandard(expr); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", expr, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &ManualEntry{Expr: expr, fn: fn, owner: m}
	m.entries = append(m.entries, e)
	return e, nil
}

func (e *ManualEntry) Stop() {
	e.owner.mu.Lock()
	defer e.owner.mu.Unlock()
	e.stopped = true
}

func (e *ManualEntry) Stopped() bool {
	e.owner.mu.Lock()
	defer e.owner.mu.Unlock()
	return e.stopped
}

// Active returns entries that have not been stopped.
func (m *Manual) Active() []*ManualEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ManualEntry
	for _, e := range m.entries {
		if !e.stopped {
			out = append(out, e)
		}
	}
	return out
}

// Fire synchronously runs every active entry scheduled with expr and returns how many ran.
func (m *Manual) Fire(expr string) int {
	var fns []func()
	for _, e := range m.Active() {
		if e.Expr == expr {
			fns = append(fns, e.fn)
		}
	}
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Run invokes the entry callback unless it was stopped.
func (e *ManualEntry) Run() bool {
	if e.Stopped() {
		return false
	}
	e.fn()
	return true
}
