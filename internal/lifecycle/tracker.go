package lifecycle

import (
	"sync"
	"time"
)

// DefaultEscalateAfter is how long a graceful stop may stay pending before
// the tracker recommends force-killing the emulator.
const DefaultEscalateAfter = 10 * time.Second

// StopTracker remembers when a graceful stop was requested for each VM so
// a stop that the guest ignores can be escalated to a kill. It tracks
// intent only; the caller decides when to act on Escalate.
type StopTracker struct {
	mu        sync.Mutex
	requested map[string]time.Time
	threshold time.Duration
	now       func() time.Time
}

// NewStopTracker returns a tracker with the default escalation threshold.
func NewStopTracker() *StopTracker {
	return NewStopTrackerWithThreshold(DefaultEscalateAfter)
}

// NewStopTrackerWithThreshold returns a tracker with a custom threshold.
func NewStopTrackerWithThreshold(threshold time.Duration) *StopTracker {
	return &StopTracker{
		requested: make(map[string]time.Time),
		threshold: threshold,
		now:       time.Now,
	}
}

// Request records that a graceful stop was just issued for the named VM.
// A repeated request keeps the original timestamp so escalation is measured
// from the first ask.
func (t *StopTracker) Request(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.requested[name]; !ok {
		t.requested[name] = t.now()
	}
}

// Pending reports whether a stop has been requested for the named VM and
// how long ago.
func (t *StopTracker) Pending(name string) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.requested[name]
	if !ok {
		return 0, false
	}
	return t.now().Sub(at), true
}

// Escalate reports whether the pending stop for the named VM has outlived
// the threshold and should become a kill.
func (t *StopTracker) Escalate(name string) bool {
	elapsed, ok := t.Pending(name)
	return ok && elapsed >= t.threshold
}

// Clear forgets a pending stop, called once the VM is observed down.
func (t *StopTracker) Clear(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.requested, name)
}
