package listener

import (
	"sync"

	"pglisten/internal/domain/notify"
)

// queue is the per-channel buffer between the routing loop and one
// delivery loop. The routing loop is the only writer, the delivery loop
// the only reader. wake carries at most one pending signal; coalescing is
// fine because the reader drains the queue before waiting again.
//
// Under ALL the slice is an unbounded FIFO. Under LAST it holds at most
// one element and push overwrites it in place.
type queue struct {
	mu    sync.Mutex
	items []notify.Notification
	last  bool
	wake  chan struct{}
}

func newQueue(policy notify.ListenPolicy) *queue {
	return &queue{
		last: policy == notify.ListenLast,
		wake: make(chan struct{}, 1),
	}
}

// push never blocks.
func (q *queue) push(n notify.Notification) {
	q.mu.Lock()
	if q.last && len(q.items) > 0 {
		q.items[len(q.items)-1] = n
	} else {
		q.items = append(q.items, n)
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// pop returns the oldest pending notification, if any.
func (q *queue) pop() (notify.Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return notify.Notification{}, false
	}
	n := q.items[0]
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return n, true
}
