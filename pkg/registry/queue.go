package registry

import "sync"

// PendingSend is one outbound payload awaiting a live connection.
type PendingSend struct {
	Payload string
	CorrID  string
}

// SendQueue is the bounded FIFO of pending sends for one destination. On
// overflow the oldest entry is evicted, favoring recent state over stale
// backlog. The queue locks internally: the connection manager appends
// from the send path while the destination's worker drains.
type SendQueue struct {
	mu       sync.Mutex
	capacity int
	items    []PendingSend
}

func NewSendQueue(capacity int) *SendQueue {
	return &SendQueue{capacity: capacity}
}

// Push appends a send. If the queue is full it evicts the oldest entry
// first and returns it with ok=true.
func (q *SendQueue) Push(s PendingSend) (evicted PendingSend, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		evicted, ok = q.items[0], true
		q.items = q.items[1:]
	}
	q.items = append(q.items, s)
	return evicted, ok
}

// PushFront puts a send back at the head of the queue. Used when a flush
// halts mid-way and the in-flight message must keep its place. Never
// evicts, so a push racing the requeue can briefly overshoot capacity by
// one entry.
func (q *SendQueue) PushFront(s PendingSend) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]PendingSend{s}, q.items...)
}

// Pop removes and returns the oldest pending send.
func (q *SendQueue) Pop() (PendingSend, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return PendingSend{}, false
	}
	s := q.items[0]
	q.items = q.items[1:]
	return s, true
}

func (q *SendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
