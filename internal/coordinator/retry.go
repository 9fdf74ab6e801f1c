package coordinator

import (
	"slices"
	"strings"
	"sync"
)

// Pair identifies a directed source/target synchronization.
type Pair struct {
	Source string
	Target string
}

// Key renders the pair as "source->target".
func (p Pair) Key() string {
	return p.Source + "->" + p.Target
}

// RetrySet tracks pairs that failed in a pass so the next scheduled pass
// retries them first. There is no inline retry loop.
//
// Thread-safe: Can be called concurrently.
type RetrySet struct {
	mu       sync.Mutex
	attempts map[Pair]int
}

// NewRetrySet creates an empty set.
func NewRetrySet() *RetrySet {
	return &RetrySet{attempts: make(map[Pair]int)}
}

// Add records a failure of p.
func (r *RetrySet) Add(p Pair) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[p]++
}

// Remove forgets p after a successful retry.
func (r *RetrySet) Remove(p Pair) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, p)
}

// Attempts returns how many consecutive passes p has failed.
func (r *RetrySet) Attempts(p Pair) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[p]
}

// Pending returns the pairs awaiting retry in key order.
func (r *RetrySet) Pending() []Pair {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Pair, 0, len(r.attempts))
	for p := range r.attempts {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Pair) int { return strings.Compare(a.Key(), b.Key()) })
	return out
}

// Len returns the number of pending pairs.
func (r *RetrySet) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}
