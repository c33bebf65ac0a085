package engine

import (
	"container/heap"
	"context"
	"encoding/json"
	"time"
)

type result struct {
	payload json.RawMessage
	err     error
}

type queuedRequest struct {
	ctx        context.Context
	req        Request
	domain     string
	priority   Priority
	enqueuedAt time.Time
	seq        uint64
	done       chan result
	index      int
}

func (q *queuedRequest) deliver(payload json.RawMessage, err error) {
	select {
	case q.done <- result{payload: payload, err: err}:
	default:
	}
}

// requestQueue is a min-heap ordered by priority rank then arrival sequence.
type requestQueue []*queuedRequest

func (q requestQueue) Len() int { return len(q) }

func (q requestQueue) Less(i, j int) bool {
	ri, rj := q[i].priority.rank(), q[j].priority.rank()
	if ri != rj {
		return ri < rj
	}
	return q[i].seq < q[j].seq
}

func (q requestQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *requestQueue) Push(x any) {
	item := x.(*queuedRequest)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *requestQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

func (q *requestQueue) peek() *queuedRequest {
	if q.Len() == 0 {
		return nil
	}
	return (*q)[0]
}

func (q *requestQueue) push(item *queuedRequest) {
	heap.Push(q, item)
}

func (q *requestQueue) pop() *queuedRequest {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(*queuedRequest)
}

// withdraw removes item if it is still queued.
func (q *requestQueue) withdraw(item *queuedRequest) bool {
	if item.index < 0 || item.index >= q.Len() || (*q)[item.index] != item {
		return false
	}
	heap.Remove(q, item.index)
	return true
}

func (q *requestQueue) drainAll() []*queuedRequest {
	items := make([]*queuedRequest, 0, q.Len())
	for q.Len() > 0 {
		items = append(items, q.pop())
	}
	return items
}
