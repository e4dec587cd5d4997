package consumer

import (
	"context"
	"fmt"

	"kbridge/internal/telemetry"
	"kbridge/serde"
)

// ProcessFunc handles one record and yields the value emitted downstream.
type ProcessFunc[K, V, A any] func(ctx context.Context, rec Record[K, V]) (A, error)

// BatchProcessFunc handles one poll-batch of records. The caller states, per
// result, which record offset that result covers; the engine commits the
// maximum returned offset per partition, so results may be filtered or
// reordered relative to the fetched chunk.
type BatchProcessFunc[K, V, A any] func(ctx context.Context, recs []Record[K, V]) ([]BatchResult[A], error)

// BatchResult pairs a processed value with the source coordinates it covers.
type BatchResult[A any] struct {
	Value A
	TopicPartition
	Offset int64
}

// commitState tracks, per partition, the highest offset whose processing has
// completed. Only the owning pipeline goroutine touches it.
type commitState map[TopicPartition]int64

func (cs commitState) update(tp TopicPartition, offset int64) {
	if cur, ok := cs[tp]; !ok || offset > cur {
		cs[tp] = offset
	}
}

// toCommit converts the processed position into the next-fetch position.
func (cs commitState) toCommit(tp TopicPartition) map[TopicPartition]Offset {
	return map[TopicPartition]Offset{tp: Offset(cs[tp] + 1)}
}

// commitAndWait bridges the single-shot commit callback into a suspension
// point. The channel has capacity one, so the callback never blocks even if
// the waiter has already given up on its context.
func commitAndWait(ctx context.Context, cl Client, offsets map[TopicPartition]Offset) error {
	ch := make(chan error, 1)
	cl.CommitAsync(offsets, func(err error) { ch <- err })
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-ch:
		if err != nil {
			for tp := range offsets {
				telemetry.CommitFailures.WithLabelValues(tp.Topic).Inc()
			}
			return fmt.Errorf("consumer: commit: %w", err)
		}
		for tp := range offsets {
			telemetry.OffsetsCommitted.WithLabelValues(tp.Topic).Inc()
		}
		return nil
	}
}

// Pipeline is the per-record consume-process-commit sequence. Each Next pulls
// one record, runs process, commits processed+1 for that partition, and only
// then emits. Processing and committing happen strictly in pull order, so no
// two commit calls are ever in flight on the one client handle. Any error is
// terminal; no offset is committed for the record that failed.
type Pipeline[K, V, A any] struct {
	stream  *Stream[K, V]
	process ProcessFunc[K, V, A]
	state   commitState
}

// ConsumeProcessCommit builds a per-record pipeline over a fresh stream.
func ConsumeProcessCommit[K, V, A any](
	sub Subscription,
	keyDe serde.Deserializer[K],
	valDe serde.Deserializer[V],
	set Settings,
	process ProcessFunc[K, V, A],
) *Pipeline[K, V, A] {
	return &Pipeline[K, V, A]{
		stream:  NewStream(sub, keyDe, valDe, set),
		process: process,
		state:   commitState{},
	}
}

func (p *Pipeline[K, V, A]) Next(ctx context.Context) (A, error) {
	var zero A
	rec, err := p.stream.Next(ctx)
	if err != nil {
		return zero, err
	}
	a, err := p.process(ctx, rec)
	if err != nil {
		return zero, fmt.Errorf("consumer: process %s@%d: %w", rec.TopicPartition, rec.Offset, err)
	}
	telemetry.RecordsProcessed.WithLabelValues(rec.Topic).Inc()

	p.state.update(rec.TopicPartition, rec.Offset)
	if err := commitAndWait(ctx, p.stream.client(), p.state.toCommit(rec.TopicPartition)); err != nil {
		return zero, err
	}
	return a, nil
}

// Run pulls until ctx cancellation or a fatal error, handing each emitted
// value to emit. A non-nil emit error stops the pipeline without committing
// anything further.
func (p *Pipeline[K, V, A]) Run(ctx context.Context, emit func(A) error) error {
	for {
		a, err := p.Next(ctx)
		if err != nil {
			return err
		}
		if err := emit(a); err != nil {
			return err
		}
	}
}

func (p *Pipeline[K, V, A]) Close() error { return p.stream.Close() }

// BatchPipeline is the per-chunk variant: one poll batch in, one processBatch
// call, one commit per partition of the maximum offset the caller returned.
// The commit is attempted exactly once per chunk and only after processBatch
// succeeds, which lets callers ack downstream sends first and keep
// at-least-once delivery end to end.
type BatchPipeline[K, V, A any] struct {
	stream  *Stream[K, V]
	process BatchProcessFunc[K, V, A]
	state   commitState
}

// ConsumeProcessBatchCommit builds a per-chunk pipeline over a fresh stream.
func ConsumeProcessBatchCommit[K, V, A any](
	sub Subscription,
	keyDe serde.Deserializer[K],
	valDe serde.Deserializer[V],
	set Settings,
	process BatchProcessFunc[K, V, A],
) *BatchPipeline[K, V, A] {
	return &BatchPipeline[K, V, A]{
		stream:  NewStream(sub, keyDe, valDe, set),
		process: process,
		state:   commitState{},
	}
}

func (p *BatchPipeline[K, V, A]) Next(ctx context.Context) ([]BatchResult[A], error) {
	recs, err := p.stream.NextBatch(ctx)
	if err != nil {
		return nil, err
	}
	results, err := p.process(ctx, recs)
	if err != nil {
		return nil, fmt.Errorf("consumer: process batch of %d: %w", len(recs), err)
	}
	for _, rec := range recs {
		telemetry.RecordsProcessed.WithLabelValues(rec.Topic).Inc()
	}

	// Commit what the caller reported, not what was fetched.
	chunk := commitState{}
	for _, res := range results {
		chunk.update(res.TopicPartition, res.Offset)
	}
	if len(chunk) > 0 {
		offsets := make(map[TopicPartition]Offset, len(chunk))
		for tp, off := range chunk {
			p.state.update(tp, off)
			offsets[tp] = Offset(off + 1)
		}
		if err := commitAndWait(ctx, p.stream.client(), offsets); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Run drains chunks until ctx cancellation or a fatal error.
func (p *BatchPipeline[K, V, A]) Run(ctx context.Context, emit func([]BatchResult[A]) error) error {
	for {
		results, err := p.Next(ctx)
		if err != nil {
			return err
		}
		if err := emit(results); err != nil {
			return err
		}
	}
}

func (p *BatchPipeline[K, V, A]) Close() error { return p.stream.Close() }
