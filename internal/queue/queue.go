// Package queue implements the tiered request queue. Requests are ordered by
// (tier, enqueue sequence): lower tiers first, FIFO within a tier.
package queue

import (
	"container/heap"
	"sync"

	"github.com/me/tradebot/internal/request"
)

// entry is an element of the heap. index is maintained by the heap methods.
type entry struct {
	req   *request.Request
	tier  Tier
	seq   uint64
	index int
}

// entryHeap implements heap.Interface over (tier, seq).
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].tier != h[j].tier {
		return h[i].tier < h[j].tier
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil // avoid memory leak
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is a concurrency-safe tiered priority queue of requests.
// All operations take the same mutex, so no two TryDequeue calls can return
// the same request.
type Queue struct {
	mu    sync.Mutex
	items entryHeap
	seq   uint64
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue inserts req at the given tier. Use TierFree when the requester has
// no priority.
func (q *Queue) Enqueue(req *request.Request, tier Tier) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	heap.Push(&q.items, &entry{req: req, tier: tier, seq: q.seq})
}

// TryDequeue removes and returns the request with the smallest (tier, seq).
// It never blocks; ok is false when the queue is empty.
func (q *Queue) TryDequeue() (*request.Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	e := heap.Pop(&q.items).(*entry)
	return e.req, true
}

// Find returns the first request, in dequeue order, that satisfies match.
// The request stays queued. match runs under the queue lock and must not
// call back into the queue.
func (q *Queue) Find(match func(*request.Request) bool) (*request.Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e := q.first(match); e != nil {
		return e.req, true
	}
	return nil, false
}

// Position returns the 1-based dequeue position of the first request that
// satisfies match, or 0 if none does.
func (q *Queue) Position(match func(*request.Request) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.ordered() {
		if match(e.req) {
			return i + 1
		}
	}
	return 0
}

// Remove deletes the first request (in dequeue order) that satisfies match
// and returns it.
func (q *Queue) Remove(match func(*request.Request) bool) (*request.Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := q.first(match)
	if e == nil {
		return nil, false
	}
	heap.Remove(&q.items, e.index)
	return e.req, true
}

// Count returns the number of queued requests. The value is a snapshot.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns the queued requests in dequeue order.
func (q *Queue) Snapshot() []*request.Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	ordered := q.ordered()
	out := make([]*request.Request, len(ordered))
	for i, e := range ordered {
		out[i] = e.req
	}
	return out
}

// Clear drops every queued request and returns how many were removed.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	q.items = nil
	return n
}

// first returns the matching entry with the smallest key. Caller holds mu.
func (q *Queue) first(match func(*request.Request) bool) *entry {
	var best *entry
	for _, e := range q.items {
		if !match(e.req) {
			continue
		}
		if best == nil || e.tier < best.tier || (e.tier == best.tier && e.seq < best.seq) {
			best = e
		}
	}
	return best
}

// ordered returns a sorted copy of the heap. Caller holds mu.
func (q *Queue) ordered() []*entry {
	cp := make(entryHeap, len(q.items))
	for i, e := range q.items {
		cp[i] = &entry{req: e.req, tier: e.tier, seq: e.seq}
	}
	heap.Init(&cp)
	out := make([]*entry, 0, len(cp))
	for cp.Len() > 0 {
		out = append(out, heap.Pop(&cp).(*entry))
	}
	return out
}
