package event

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue used when Redis is not configured.
// Messages do not survive a restart.
type MemoryQueue struct {
	mu     sync.Mutex
	queues map[string]chan []byte
	size   int
}

// NewMemoryQueue creates a MemoryQueue whose named queues hold up to size items.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	return &MemoryQueue{queues: make(map[string]chan []byte), size: size}
}

func (q *MemoryQueue) get(name string) chan []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.queues[name]
	if !ok {
		ch = make(chan []byte, q.size)
		q.queues[name] = ch
	}
	return ch
}

// Push enqueues payloads, blocking while the queue is full or until ctx ends.
func (q *MemoryQueue) Push(ctx context.Context, queue string, payloads ...[]byte) error {
	ch := q.get(queue)
	for _, p := range payloads {
		select {
		case ch <- p:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Pop waits up to timeout for the next payload.
func (q *MemoryQueue) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	ch := q.get(queue)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p := <-ch:
		return p, nil
	case <-timer.C:
		return nil, ErrEmpty
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports the number of queued payloads.
func (q *MemoryQueue) Len(_ context.Context, queue string) (int64, error) {
	return int64(len(q.get(queue))), nil
}

// MemoryBroadcaster is an in-process Broadcaster.
type MemoryBroadcaster struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

// NewMemoryBroadcaster creates a MemoryBroadcaster.
func NewMemoryBroadcaster() *MemoryBroadcaster {
	return &MemoryBroadcaster{subs: make(map[string]map[chan []byte]struct{})}
}

// Publish delivers payload to current subscribers without blocking on slow ones.
func (b *MemoryBroadcaster) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (b *MemoryBroadcaster) Subscribe(_ context.Context, channel string) (<-chan []byte, func()) {
	ch := make(chan []byte, 16)

	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan []byte]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[channel], ch)
			if len(b.subs[channel]) == 0 {
				delete(b.subs, channel)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}
