package bridge

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"kbridge/consumer"
	"kbridge/serde"
)

var printSeq uint64 // global pretty-print counter

// runStdout is the debug sink: records are printed instead of produced, with
// the same commit discipline as the kafka sink so offset behavior can be
// inspected against a live group.
func (b *Bridge) runStdout(ctx context.Context) error {
	_, keyDe := serde.Bytes()
	_, valDe := serde.Bytes()
	sub := consumer.Subscribe(b.spec.Source.Topics...)

	delay := time.Duration(b.spec.Debug.PerRecordDelayMS) * time.Millisecond

	pipeline := consumer.ConsumeProcessCommit(sub, keyDe, valDe, b.cset,
		func(_ context.Context, rec consumer.Record[[]byte, []byte]) (struct{}, error) {
			if delay > 0 {
				time.Sleep(delay)
			}
			b.printRecord(rec)
			return struct{}{}, nil
		})
	defer pipeline.Close()

	return pipeline.Run(ctx, func(struct{}) error { return nil })
}

func (b *Bridge) printRecord(rec consumer.Record[[]byte, []byte]) {
	head := "[sink]"
	if b.spec.Debug.PrintCounter {
		head = fmt.Sprintf("[sink %06d]", atomic.AddUint64(&printSeq, 1))
	}
	if b.spec.Debug.PrintValue {
		val := rec.Value
		if max := b.spec.Debug.ValueMaxBytes; max > 0 && len(val) > max {
			val = val[:max]
		}
		fmt.Printf("%s %s@%d %q\n", head, rec.TopicPartition, rec.Offset, val)
		return
	}
	fmt.Printf("%s %s@%d\n", head, rec.TopicPartition, rec.Offset)
}
