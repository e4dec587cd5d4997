package producer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kbridge/serde"
)

// Record is one typed record to send.
type Record[K, V any] struct {
	Topic     string
	Key       K
	Value     V
	Headers   map[string][]byte
	Timestamp time.Time
}

// Producer owns exactly one native client handle for its lifetime. It is
// exclusively owned: hold it only within the scope that acquired it and close
// it exactly once (Close is safe to repeat, the handle is released once).
type Producer[K, V any] struct {
	cl     Client
	keySer serde.Serializer[K]
	valSer serde.Serializer[V]

	closeOnce sync.Once
	closeErr  error
}

// Acquire creates the native client from settings. On failure no handle
// exists and there is nothing to release.
func Acquire[K, V any](
	set Settings,
	keySer serde.Serializer[K],
	valSer serde.Serializer[V],
) (*Producer[K, V], error) {
	cl, err := newClient(set)
	if err != nil {
		return nil, fmt.Errorf("producer: init: %w", err)
	}
	return &Producer[K, V]{cl: cl, keySer: keySer, valSer: valSer}, nil
}

// With runs body with a scoped producer. The handle is released on every exit
// path — normal return, error, or panic unwinding through body. A Close error
// surfaces only when body itself succeeded.
func With[K, V any](
	set Settings,
	keySer serde.Serializer[K],
	valSer serde.Serializer[V],
	body func(*Producer[K, V]) error,
) (err error) {
	p, aerr := Acquire[K, V](set, keySer, valSer)
	if aerr != nil {
		return aerr
	}
	defer func() {
		cerr := p.Close()
		if err == nil {
			err = cerr
		}
	}()
	return body(p)
}

// Close releases the native handle, flushing outstanding sends first.
func (p *Producer[K, V]) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.cl.Close()
	})
	return p.closeErr
}

// result is the single resolution of one send.
type result struct {
	meta Delivery
	err  error
}

// Future is an unresolved send acknowledgement: a single-shot completion
// token. It resolves exactly once; Wait may be called once.
type Future struct {
	ch chan result
}

func newFuture() *Future {
	return &Future{ch: make(chan result, 1)}
}

func (f *Future) resolve(meta Delivery, err error) {
	f.ch <- result{meta: meta, err: err}
}

// Wait suspends until the send's callback fires or ctx is cancelled.
// Cancellation abandons the acknowledgement; the send itself may still reach
// the broker.
func (f *Future) Wait(ctx context.Context) (Delivery, error) {
	select {
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	case r := <-f.ch:
		return r.meta, r.err
	}
}

// SendAsync issues the send immediately and returns its unresolved token.
// How many unresolved tokens may accumulate is the caller's concern; compose
// with Inflight to bound them.
func (p *Producer[K, V]) SendAsync(rec Record[K, V]) *Future {
	f := newFuture()
	raw, err := p.serialize(rec)
	if err != nil {
		f.resolve(Delivery{}, err)
		return f
	}
	p.cl.SendAsync(raw, f.resolve)
	return f
}

// Send issues one send and suspends until it is acknowledged. No retry here:
// retry policy belongs to the caller or the native client's configuration.
func (p *Producer[K, V]) Send(ctx context.Context, rec Record[K, V]) (Delivery, error) {
	return p.SendAsync(rec).Wait(ctx)
}

func (p *Producer[K, V]) serialize(rec Record[K, V]) (RawRecord, error) {
	key, err := p.keySer(rec.Topic, rec.Key)
	if err != nil {
		return RawRecord{}, fmt.Errorf("producer: serialize key for %s: %w", rec.Topic, err)
	}
	val, err := p.valSer(rec.Topic, rec.Value)
	if err != nil {
		return RawRecord{}, fmt.Errorf("producer: serialize value for %s: %w", rec.Topic, err)
	}
	return RawRecord{
		Topic:     rec.Topic,
		Key:       key,
		Value:     val,
		Headers:   rec.Headers,
		Timestamp: rec.Timestamp,
	}, nil
}

// BatchEntry pairs a record with an opaque pass-through value that travels
// untouched to the matching BatchAck.
type BatchEntry[K, V, T any] struct {
	Record Record[K, V]
	Token  T
}

// BatchAck is one acknowledged element of a batch send.
type BatchAck[T any] struct {
	Delivery Delivery
	Token    T
}

// SendBatch issues every send before awaiting any acknowledgement, pipelining
// the whole batch through the client. Output order matches input order, not
// completion order. If any element fails the batch fails as a whole — every
// future is still awaited first, so the handle is quiescent on return, but no
// partial results are reported.
func SendBatch[K, V, T any](
	ctx context.Context,
	p *Producer[K, V],
	entries []BatchEntry[K, V, T],
) ([]BatchAck[T], error) {
	futures := make([]*Future, len(entries))
	for i, e := range entries {
		futures[i] = p.SendAsync(e.Record)
	}

	acks := make([]BatchAck[T], 0, len(entries))
	var firstErr error
	for i, f := range futures {
		meta, err := f.Wait(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("producer: batch element %d: %w", i, err)
			}
			continue
		}
		acks = append(acks, BatchAck[T]{Delivery: meta, Token: entries[i].Token})
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return acks, nil
}
