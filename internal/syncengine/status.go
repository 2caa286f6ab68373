package syncengine

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of the sync status, exposed as plain
// data for UI progress display.
type Snapshot struct {
	Syncing      bool      `json:"is_syncing"`
	CurrentItem  int       `json:"current_item"`
	TotalItems   int       `json:"total_items"`
	LastSyncTime time.Time `json:"last_sync_time"`
	LastError    string    `json:"error,omitempty"`
}

// Status is the observability hook shared between the orchestrator and
// anything rendering progress.
//
// It is an explicitly-owned object injected into the orchestrator and the
// scheduler, not a package-level singleton: construct one at the
// composition root and pass it down.
//
// Thread-safety: all methods are safe for concurrent use.
type Status struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewStatus creates an idle status.
func NewStatus() *Status {
	return &Status{}
}

// Snapshot returns a copy of the current state.
func (s *Status) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// begin marks a cycle as started with the given workload size and clears
// any previous error.
func (s *Status) begin(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Syncing = true
	s.snap.CurrentItem = 0
	s.snap.TotalItems = total
	s.snap.LastError = ""
}

// step advances the progress counter by one processed item.
func (s *Status) step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.CurrentItem++
}

// addTotal grows the workload mid-cycle (records appended by the UI while
// the cycle runs).
func (s *Status) addTotal(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.TotalItems += n
}

// fail retains an error string for the UI without ending the cycle.
func (s *Status) fail(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastError = msg
}

// finish ends the cycle and stamps the completion time.
func (s *Status) finish(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Syncing = false
	s.snap.LastSyncTime = now
}
