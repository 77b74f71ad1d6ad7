package service

import (
	"sync"
	"time"

	"fixture-edge/internal/domain"
)

const (
	ReasonDeadline = "deadline"
	ReasonCallCap  = "call_cap"
)

// Budget is the per-cycle soft deadline and external call cap. All access goes
// through the mutex so workers can share one instance.
type Budget struct {
	mu       sync.Mutex
	deadline time.Time
	maxCalls int
	calls    int
	now      func() time.Time
}

// NewBudget starts a budget of soft duration. maxCalls <= 0 leaves calls uncapped.
func NewBudget(soft time.Duration, maxCalls int) *Budget {
	return newBudgetAt(time.Now, soft, maxCalls)
}

func newBudgetAt(now func() time.Time, soft time.Duration, maxCalls int) *Budget {
	return &Budget{deadline: now().Add(soft), maxCalls: maxCalls, now: now}
}

// TryCall reserves one external call, or reports why it cannot.
func (b *Budget) TryCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.now().Before(b.deadline) {
		return domain.Errorf(domain.KindBudgetExceeded, ReasonDeadline, "soft time budget spent")
	}
	if b.maxCalls > 0 && b.calls >= b.maxCalls {
		return domain.Errorf(domain.KindBudgetExceeded, ReasonCallCap, "external call cap of %d reached", b.maxCalls)
	}
	b.calls++
	return nil
}

func (b *Budget) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *Budget) Expired() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.now().Before(b.deadline)
}

func (b *Budget) Deadline() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deadline
}
