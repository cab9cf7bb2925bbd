package metrics

import (
	"sync/atomic"
	"time"
)

type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	clientErrors    uint64
	totalDurationMs uint64

	closures              uint64
	closureFailures       uint64
	rollbacks             uint64
	criticalInconsistency uint64
	verificationMismatch  uint64
	closureTimeouts       uint64
	concurrentConflicts   uint64
	reopens               uint64
	employeesCalculated   uint64
	ghostPeriodsArchived  uint64
}

func New() *Collector {
	return &Collector{}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	} else if status >= 400 {
		atomic.AddUint64(&c.clientErrors, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

func (c *Collector) ClosureSucceeded() { atomic.AddUint64(&c.closures, 1) }

func (c *Collector) ClosureFailed() { atomic.AddUint64(&c.closureFailures, 1) }

func (c *Collector) RolledBack() { atomic.AddUint64(&c.rollbacks, 1) }

func (c *Collector) CriticalInconsistency() { atomic.AddUint64(&c.criticalInconsistency, 1) }

func (c *Collector) VerificationMismatch() { atomic.AddUint64(&c.verificationMismatch, 1) }

func (c *Collector) ClosureTimedOut() { atomic.AddUint64(&c.closureTimeouts, 1) }

func (c *Collector) ConcurrentConflict() { atomic.AddUint64(&c.concurrentConflicts, 1) }

func (c *Collector) Reopened() { atomic.AddUint64(&c.reopens, 1) }

func (c *Collector) EmployeesCalculated(n int) {
	if n > 0 {
		atomic.AddUint64(&c.employeesCalculated, uint64(n))
	}
}

func (c *Collector) GhostArchived(n int) {
	if n > 0 {
		atomic.AddUint64(&c.ghostPeriodsArchived, uint64(n))
	}
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}
	return map[string]any{
		"requestsTotal":              total,
		"errorsTotal":                atomic.LoadUint64(&c.errorRequests),
		"clientErrorsTotal":          atomic.LoadUint64(&c.clientErrors),
		"avgDurationMs":              avg,
		"totalDurationMs":            totalMs,
		"closuresTotal":              atomic.LoadUint64(&c.closures),
		"closureFailuresTotal":       atomic.LoadUint64(&c.closureFailures),
		"rollbacksTotal":             atomic.LoadUint64(&c.rollbacks),
		"criticalInconsistencyTotal": atomic.LoadUint64(&c.criticalInconsistency),
		"verificationMismatchTotal":  atomic.LoadUint64(&c.verificationMismatch),
		"closureTimeoutsTotal":       atomic.LoadUint64(&c.closureTimeouts),
		"concurrentConflictsTotal":   atomic.LoadUint64(&c.concurrentConflicts),
		"reopensTotal":               atomic.LoadUint64(&c.reopens),
		"employeesCalculatedTotal":   atomic.LoadUint64(&c.employeesCalculated),
		"ghostPeriodsArchivedTotal":  atomic.LoadUint64(&c.ghostPeriodsArchived),
	}
}
