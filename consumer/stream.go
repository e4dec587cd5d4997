package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kbridge/serde"
)

// Record is one fetched record after key/value decoding.
type Record[K, V any] struct {
	TopicPartition
	Offset    int64
	Key       K
	Value     V
	Headers   map[string][]byte
	Timestamp time.Time
}

// Stream is a lazy, conceptually infinite pull sequence of records. The
// native client is created on the first pull and lives for the stream's
// lifetime; fetch pace follows pull pace, so nothing is buffered beyond the
// remainder of the last poll. A Stream belongs to one goroutine and is not
// restartable once closed.
type Stream[K, V any] struct {
	sub   Subscription
	set   Settings
	keyDe serde.Deserializer[K]
	valDe serde.Deserializer[V]

	cl  Client
	buf []RawRecord

	closeOnce sync.Once
	closeErr  error
	closed    bool
	fatal     error
}

// NewStream prepares a stream without touching the broker.
func NewStream[K, V any](
	sub Subscription,
	keyDe serde.Deserializer[K],
	valDe serde.Deserializer[V],
	set Settings,
) *Stream[K, V] {
	return &Stream[K, V]{sub: sub, set: set, keyDe: keyDe, valDe: valDe}
}

// open subscribes the native client. Deferred to the first pull so that a
// constructed-but-never-pulled stream holds no broker resources.
func (s *Stream[K, V]) open() error {
	if s.cl != nil {
		return nil
	}
	cl, err := newClient(s.set, s.sub)
	if err != nil {
		return fmt.Errorf("consumer: init: %w", err)
	}
	s.cl = cl
	return nil
}

// Next returns the next record, polling the broker as often as needed. Empty
// polls retry; the call returns only with a record, a fatal error, or ctx
// cancellation. Errors are terminal: once Next fails, every later call fails.
func (s *Stream[K, V]) Next(ctx context.Context) (Record[K, V], error) {
	var zero Record[K, V]
	if err := s.dead(); err != nil {
		return zero, err
	}
	if len(s.buf) == 0 {
		if err := s.fill(ctx); err != nil {
			return zero, err
		}
	}
	raw := s.buf[0]
	s.buf = s.buf[1:]
	rec, err := s.decode(raw)
	if err != nil {
		s.die(err)
		return zero, err
	}
	return rec, nil
}

// NextBatch returns one poll's worth of records (at least one). The batch
// boundary is the chunking unit for batch processing.
func (s *Stream[K, V]) NextBatch(ctx context.Context) ([]Record[K, V], error) {
	if err := s.dead(); err != nil {
		return nil, err
	}
	if len(s.buf) == 0 {
		if err := s.fill(ctx); err != nil {
			return nil, err
		}
	}
	out := make([]Record[K, V], 0, len(s.buf))
	for _, raw := range s.buf {
		rec, err := s.decode(raw)
		if err != nil {
			s.die(err)
			return nil, err
		}
		out = append(out, rec)
	}
	s.buf = nil
	return out, nil
}

// dead reports the stream's terminal state, if any. Checked at the top of
// every pull so a fatal error cannot be stepped over while records from the
// same poll are still buffered.
func (s *Stream[K, V]) dead() error {
	if s.closed {
		return ErrClosed
	}
	return s.fatal
}

// die marks the stream fatal and drops whatever the last poll buffered; those
// records were never processed and must not reach the commit engine.
func (s *Stream[K, V]) die(err error) {
	s.fatal = err
	s.buf = nil
}

// fill polls until at least one record arrives.
func (s *Stream[K, V]) fill(ctx context.Context) error {
	if err := s.open(); err != nil {
		s.die(err)
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		recs, err := s.cl.Poll(ctx, s.set.MaxPollRecords)
		if err != nil {
			s.die(fmt.Errorf("consumer: poll: %w", err))
			return s.fatal
		}
		if len(recs) > 0 {
			s.buf = recs
			return nil
		}
	}
}

func (s *Stream[K, V]) decode(raw RawRecord) (Record[K, V], error) {
	var zero Record[K, V]
	key, err := s.keyDe(raw.Topic, raw.Key)
	if err != nil {
		return zero, fmt.Errorf("consumer: decode key %s@%d: %w", raw.TopicPartition, raw.Offset, err)
	}
	val, err := s.valDe(raw.Topic, raw.Value)
	if err != nil {
		return zero, fmt.Errorf("consumer: decode value %s@%d: %w", raw.TopicPartition, raw.Offset, err)
	}
	return Record[K, V]{
		TopicPartition: raw.TopicPartition,
		Offset:         raw.Offset,
		Key:            key,
		Value:          val,
		Headers:        raw.Headers,
		Timestamp:      raw.Timestamp,
	}, nil
}

// Close releases the native client. Safe to call more than once and on a
// stream that was never pulled.
func (s *Stream[K, V]) Close() error {
	s.closeOnce.Do(func() {
		s.closed = true
		if s.cl != nil {
			s.closeErr = s.cl.Close()
		}
	})
	return s.closeErr
}

// client exposes the live handle to the commit engine in this package.
func (s *Stream[K, V]) client() Client { return s.cl }
