package crawler

import (
	"container/list"
	"sync"
)

// Frontier is a FIFO queue of canonical URLs waiting to be fetched. It is safe
// for concurrent use and tracks how many popped URLs are still being processed,
// so that an empty queue with no work in flight can be recognised as the end
// of the crawl.
type Frontier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    *list.List
	pending  map[string]struct{}
	inFlight int
	closed   bool
}

// NewFrontier creates an empty frontier.
func NewFrontier() *Frontier {
	f := &Frontier{
		queue:   list.New(),
		pending: make(map[string]struct{}),
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Push appends u unless it is already waiting in the queue. It reports
// whether u was added.
func (f *Frontier) Push(u string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}
	if _, ok := f.pending[u]; ok {
		return false
	}
	f.pending[u] = struct{}{}
	f.queue.PushBack(u)
	f.cond.Signal()
	return true
}

// Pop removes the oldest URL and counts it as in flight; the caller must call
// Done once it has finished with it. Pop blocks while the queue is empty and
// other URLs are in flight. It returns false when the frontier is closed, or
// when the queue is empty and nothing is in flight.
func (f *Frontier) Pop() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for f.queue.Len() == 0 && f.inFlight > 0 && !f.closed {
		f.cond.Wait()
	}
	if f.closed || f.queue.Len() == 0 {
		// Wake the other waiters so they observe the same state.
		f.cond.Broadcast()
		return "", false
	}

	elem := f.queue.Front()
	f.queue.Remove(elem)
	u := elem.Value.(string)
	delete(f.pending, u)
	f.inFlight++
	return u, true
}

// Done marks one popped URL as finished.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inFlight--
	if f.inFlight == 0 {
		f.cond.Broadcast()
	}
}

// Close stops the frontier: pending and future Pops return false and Push
// becomes a no-op.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	f.cond.Broadcast()
}

// Len returns the number of queued URLs.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Len()
}

// InFlight returns the number of popped URLs not yet marked Done.
func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}
