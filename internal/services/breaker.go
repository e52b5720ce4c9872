package services

import (
	"sync"
	"time"
)

const DefaultQuotaBreakerThreshold = 3

// QuotaBreaker counts consecutive quota failures within a cycle. Once the
// threshold is reached it stays tripped until the next cycle begins. The
// alert flag survives across cycles and is only cleared by a cycle that saw
// no quota errors at all.
type QuotaBreaker struct {
	mu          sync.Mutex
	threshold   int
	consecutive int
	cycleErrors int
	tripped     bool
	alerted     bool
	lastReset   time.Time
}

func NewQuotaBreaker(threshold int) *QuotaBreaker {
	if threshold <= 0 {
		threshold = DefaultQuotaBreakerThreshold
	}
	return &QuotaBreaker{threshold: threshold, lastReset: time.Now()}
}

func (b *QuotaBreaker) BeginCycle() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
	b.cycleErrors = 0
	b.tripped = false
}

// Record registers the result of one scoring call. Successes reset the run of
// quota errors; other failures leave it untouched.
func (b *QuotaBreaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case err == nil:
		b.consecutive = 0
	case IsQuotaError(err):
		b.consecutive++
		b.cycleErrors++
		if b.consecutive >= b.threshold {
			b.tripped = true
		}
	}
}

func (b *QuotaBreaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

// ClaimAlert returns true exactly once per trip streak; the caller that gets
// true sends the alert.
func (b *QuotaBreaker) ClaimAlert() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.tripped || b.alerted {
		return false
	}
	b.alerted = true
	return true
}

func (b *QuotaBreaker) EndCycle() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cycleErrors == 0 {
		b.alerted = false
		b.lastReset = time.Now()
	}
}

// QuotaErrors is the number of quota failures seen in the current cycle.
func (b *QuotaBreaker) QuotaErrors() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cycleErrors
}

func (b *QuotaBreaker) LastReset() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastReset
}
