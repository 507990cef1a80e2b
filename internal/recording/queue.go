package recording

import "sync"

// deletionQueue coordinates a catalog refresh (producer) with the retention
// reaper (consumer). The busy flag is the only coordination primitive: it is
// set while a queued batch awaits draining, and a refresh is declined for as
// long as it stays set.
type deletionQueue struct {
	mu    sync.Mutex
	names []string
	busy  bool
}

// Begin tests the busy flag and, when clear, installs the batch in the same
// critical section. A non-empty batch sets busy. Reports false when a
// previous batch is still draining; the batch is then discarded.
func (q *deletionQueue) Begin(names []string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.busy {
		return false
	}
	if len(names) > 0 {
		q.names = append(q.names, names...)
		q.busy = true
	}
	return true
}

// Snapshot returns a copy of the queued batch. The busy flag stays set until
// Finish.
func (q *deletionQueue) Snapshot() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.names))
	copy(out, q.names)
	return out
}

// Finish clears the queue and the busy flag together, so a concurrent
// refresh never observes a drained batch that still blocks queuing.
func (q *deletionQueue) Finish() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.names = nil
	q.busy = false
}

// Depth returns the number of queued filenames.
func (q *deletionQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.names)
}
