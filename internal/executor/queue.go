package executor

import "sync"

// completion is posted by a worker when its job's process exits.
type completion struct {
	node   int
	result Result
}

// completionQueue is an unbounded FIFO of completions.
//
// Workers enqueue from their own goroutines; only the dispatch loop
// dequeues. The signal channel lets the loop wait on completions and
// context cancellation in one select.
type completionQueue struct {
	mu     sync.Mutex
	items  []completion
	signal chan struct{} // buffered, size 1
}

func newCompletionQueue() *completionQueue {
	return &completionQueue{
		items:  make([]completion, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds c to the back of the queue. Safe from any goroutine.
func (q *completionQueue) Enqueue(c completion) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, c)

	// Buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// TryDequeue removes the front completion without blocking.
func (q *completionQueue) TryDequeue() (completion, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return completion{}, false
	}
	c := q.items[0]
	// Clear the slot so the result's output buffer can be collected.
	q.items[0] = completion{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return c, true
}

// Wait returns a channel that signals when completions may be available.
func (q *completionQueue) Wait() <-chan struct{} {
	return q.signal
}
