package queue

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process FIFO queue. Whole-file runs and tests use it
// in place of SQS.
type MemoryQueue struct {
	mu       sync.Mutex
	messages [][]byte
	sent     int
}

// NewMemoryQueue returns an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Send(_ context.Context, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, append([]byte(nil), body...))
	q.sent++
	return nil
}

func (q *MemoryQueue) SendBatch(ctx context.Context, bodies [][]byte) error {
	for _, b := range bodies {
		if err := q.Send(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the number of pending messages.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// Sent reports how many messages were ever enqueued.
func (q *MemoryQueue) Sent() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sent
}

// Messages returns a snapshot of the pending messages.
func (q *MemoryQueue) Messages() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([][]byte, len(q.messages))
	copy(out, q.messages)
	return out
}

func (q *MemoryQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.messages) == 0 {
		return nil, false
	}
	msg := q.messages[0]
	q.messages = q.messages[1:]
	return msg, true
}

func (q *MemoryQueue) pushFront(msg []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append([][]byte{msg}, q.messages...)
}

// Drain hands pending messages to handler in FIFO order until the queue is
// empty, including messages the handler itself enqueues. On a handler error
// the message is put back at the head and the error returned.
func (q *MemoryQueue) Drain(ctx context.Context, handler Handler) (int, error) {
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		msg, ok := q.pop()
		if !ok {
			return processed, nil
		}
		if err := handler(ctx, msg); err != nil {
			q.pushFront(msg)
			return processed, err
		}
		processed++
	}
}
