package crawler

import "sync"

// MarkResult is the outcome of VisitedSet.TryMark.
type MarkResult int

const (
	// Marked means the caller won the URL and must fetch it.
	Marked MarkResult = iota
	// AlreadyVisited means another dispatch already claimed the URL.
	AlreadyVisited
	// LimitReached means the page budget is exhausted; nothing was marked.
	LimitReached
)

// VisitedSet records canonical URLs that have been dispatched for fetch.
// It only grows. The check and the insertion happen under one lock, so at
// most one caller can ever claim a given URL.
type VisitedSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewVisitedSet creates an empty set.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{seen: make(map[string]struct{})}
}

// TryMark claims u unless it was already claimed or limit (when positive)
// URLs have been claimed.
func (v *VisitedSet) TryMark(u string, limit int) MarkResult {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.seen[u]; ok {
		return AlreadyVisited
	}
	if limit > 0 && len(v.seen) >= limit {
		return LimitReached
	}
	v.seen[u] = struct{}{}
	return Marked
}

// Contains reports whether u has been claimed.
func (v *VisitedSet) Contains(u string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.seen[u]
	return ok
}

// Len returns the number of claimed URLs.
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}
