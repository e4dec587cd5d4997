package consumer

import (
	"context"
	"crypto/tls"
	"errors"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"github.com/twmb/franz-go/pkg/sasl/plain"

	"kbridge/internal/logging"
	"kbridge/internal/telemetry"
)

func init() { Register("kgo", newKgoClient) }

// kgoClient drives a franz-go group consumer. franz-go already exposes the
// poll/commit shape this package needs, so the driver is mostly option plumbing.
type kgoClient struct {
	cl  *kgo.Client
	set Settings
}

func newKgoClient(set Settings, sub Subscription) (Client, error) {
	if err := set.validate(); err != nil {
		return nil, err
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(set.Brokers...),
		kgo.ConsumerGroup(set.GroupID),
		kgo.ConsumeTopics(sub.Topics...),
		kgo.DisableAutoCommit(),
	}
	if set.StartFrom == "oldest" {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	} else {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
	}
	if set.ClientID != "" {
		opts = append(opts, kgo.ClientID(set.ClientID))
	}
	if set.TLSEn {
		opts = append(opts, kgo.DialTLSConfig(new(tls.Config)))
	}
	if set.SASLUser != "" {
		opts = append(opts, kgo.SASL(plain.Auth{
			User: set.SASLUser,
			Pass: set.SASLPass,
		}.AsMechanism()))
	}

	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	return &kgoClient{cl: cl, set: set}, nil
}

func (c *kgoClient) Poll(ctx context.Context, max int) ([]RawRecord, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.set.PollTimeout)
	defer cancel()

	fetches := c.cl.PollRecords(pollCtx, max)
	if fetches.IsClientClosed() {
		return nil, ErrClosed
	}
	for _, fe := range fetches.Errors() {
		if errors.Is(fe.Err, context.DeadlineExceeded) || errors.Is(fe.Err, context.Canceled) {
			continue // our own poll timeout, not a broker fault
		}
		return nil, fe.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []RawRecord
	fetches.EachRecord(func(r *kgo.Record) {
		out = append(out, RawRecord{
			TopicPartition: TopicPartition{Topic: r.Topic, Partition: r.Partition},
			Offset:         r.Offset,
			Key:            r.Key,
			Value:          r.Value,
			Headers:        kgoHeaderMap(r.Headers),
			Timestamp:      r.Timestamp,
		})
		telemetry.RecordsFetched.WithLabelValues(r.Topic).Inc()
	})
	return out, nil
}

func (c *kgoClient) CommitAsync(offsets map[TopicPartition]Offset, done func(error)) {
	uncommitted := make(map[string]map[int32]kgo.EpochOffset, len(offsets))
	for tp, off := range offsets {
		parts := uncommitted[tp.Topic]
		if parts == nil {
			parts = make(map[int32]kgo.EpochOffset)
			uncommitted[tp.Topic] = parts
		}
		parts[tp.Partition] = kgo.EpochOffset{Epoch: -1, Offset: int64(off)}
	}

	c.cl.CommitOffsets(context.Background(), uncommitted,
		func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, resp *kmsg.OffsetCommitResponse, err error) {
			if err == nil {
				err = commitRespError(resp)
			}
			done(err)
		})
}

// commitRespError surfaces per-partition rejections the transport call hides.
func commitRespError(resp *kmsg.OffsetCommitResponse) error {
	if resp == nil {
		return nil
	}
	for _, t := range resp.Topics {
		for _, p := range t.Partitions {
			if err := kerr.ErrorForCode(p.ErrorCode); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *kgoClient) Close() error {
	c.cl.Close()
	logging.L().Info("kgo driver closed", "group", c.set.GroupID)
	return nil
}

func kgoHeaderMap(src []kgo.RecordHeader) map[string][]byte {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string][]byte, len(src))
	for _, h := range src {
		out[h.Key] = h.Value
	}
	return out
}
