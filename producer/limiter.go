package producer

import (
	"context"
	"sync"
)

// Inflight bounds how many unresolved sends a continuous pipeline may
// accumulate. Acquire before SendAsync, Release when the Future resolves;
// without such a bound, fast production against slow acknowledgement buffers
// without limit.
type Inflight struct {
	capacity int

	mu     sync.Mutex
	tokens int
	cond   *sync.Cond
	closed bool
}

func NewInflight(capacity int) *Inflight {
	if capacity <= 0 {
		capacity = 1
	}
	l := &Inflight{capacity: capacity, tokens: capacity}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Acquire takes one slot, waiting until a send resolves if none is free.
func (l *Inflight) Acquire(ctx context.Context) error {
	// cond has no native ctx support; broadcast under the lock so the wakeup
	// cannot slip between a waiter's ctx check and its Wait.
	stop := context.AfterFunc(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.cond.Broadcast()
	})
	defer stop()

	l.mu.Lock()
	defer l.mu.Unlock()
	for l.tokens == 0 && !l.closed && ctx.Err() == nil {
		l.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.closed {
		return ErrClosed
	}
	l.tokens--
	return nil
}

func (l *Inflight) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.tokens == 0 {
		return false
	}
	l.tokens--
	return true
}

func (l *Inflight) Release() {
	l.mu.Lock()
	if l.tokens < l.capacity {
		l.tokens++
	}
	l.mu.Unlock()
	l.cond.Broadcast()
}

// Close releases every waiter with ErrClosed.
func (l *Inflight) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.cond.Broadcast()
}
