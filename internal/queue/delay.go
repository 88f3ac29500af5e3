package queue

import (
	"container/heap"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DelayQueue holds publication ids until their scheduled retry time. PopDue
// claims ids atomically, so concurrent sweeps never receive the same id.
type DelayQueue interface {
	Schedule(ctx context.Context, publicationID string, at time.Time) error
	PopDue(ctx context.Context, now time.Time, limit int) ([]string, error)
	Remove(ctx context.Context, publicationID string) error
}

var _ DelayQueue = (*MemoryDelayQueue)(nil)

// MemoryDelayQueue is an in-process DelayQueue ordered by due time.
type MemoryDelayQueue struct {
	mu    sync.Mutex
	items delayHeap
	index map[string]*delayItem
}

func NewMemoryDelayQueue() *MemoryDelayQueue {
	return &MemoryDelayQueue{index: make(map[string]*delayItem)}
}

func (q *MemoryDelayQueue) Schedule(_ context.Context, publicationID string, at time.Time) error {
	id := strings.TrimSpace(publicationID)
	if id == "" {
		return fmt.Errorf("publication id is required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if item, ok := q.index[id]; ok {
		item.due = at
		heap.Fix(&q.items, item.pos)
		return nil
	}

	item := &delayItem{id: id, due: at}
	heap.Push(&q.items, item)
	q.index[id] = item
	return nil
}

func (q *MemoryDelayQueue) PopDue(_ context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	due := make([]string, 0, min(limit, len(q.items)))
	for len(q.items) > 0 && len(due) < limit {
		next := q.items[0]
		if next.due.After(now) {
			break
		}
		heap.Pop(&q.items)
		delete(q.index, next.id)
		due = append(due, next.id)
	}
	return due, nil
}

func (q *MemoryDelayQueue) Remove(_ context.Context, publicationID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.index[publicationID]
	if !ok {
		return nil
	}
	heap.Remove(&q.items, item.pos)
	delete(q.index, publicationID)
	return nil
}

func (q *MemoryDelayQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

type delayItem struct {
	id  string
	due time.Time
	pos int
}

type delayHeap []*delayItem

func (h delayHeap) Len() int { return len(h) }

func (h delayHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].id < h[j].id
	}
	return h[i].due.Before(h[j].due)
}

func (h delayHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i
	h[j].pos = j
}

func (h *delayHeap) Push(x any) {
	item := x.(*delayItem)
	item.pos = len(*h)
	*h = append(*h, item)
}

func (h *delayHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
