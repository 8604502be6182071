package shell

import "sync"

const defaultRingSize = 4000

// OutputRing keeps the most recent shell output lines in a fixed-size ring,
// oldest evicted first.
type OutputRing struct {
	mu    sync.RWMutex
	lines []string
	head  int
	count int
}

// NewOutputRing creates a ring holding up to size lines. A non-positive size
// selects the default capacity.
func NewOutputRing(size int) *OutputRing {
	if size <= 0 {
		size = defaultRingSize
	}
	return &OutputRing{lines: make([]string, size)}
}

// Add appends a line, evicting the oldest once the ring is full.
func (r *OutputRing) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := (r.head + r.count) % len(r.lines)
	if r.count < len(r.lines) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.lines)
	}
	r.lines[idx] = line
}

// Last returns up to n of the newest lines, oldest first.
func (r *OutputRing) Last(n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastLocked(n)
}

// All returns every buffered line, oldest first.
func (r *OutputRing) All() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastLocked(r.count)
}

func (r *OutputRing) lastLocked(n int) []string {
	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]string, n)
	start := r.count - n
	for i := 0; i < n; i++ {
		out[i] = r.lines[(r.head+start+i)%len(r.lines)]
	}
	return out
}

// Len returns the number of buffered lines.
func (r *OutputRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Clear drops every buffered line.
func (r *OutputRing) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.count = 0
}
