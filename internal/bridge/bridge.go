// Package bridge wires the consumer and producer packages into a runnable
// topic→topic mirror: each fetched chunk is re-sent to the destination topic
// and the source offsets are committed only after every send in the chunk is
// acknowledged, keeping at-least-once delivery end to end.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"kbridge/consumer"
	"kbridge/internal/config"
	"kbridge/internal/logging"
	"kbridge/internal/telemetry"
	"kbridge/producer"
	"kbridge/serde"
)

type Bridge struct {
	spec config.File
	cset consumer.Settings
	pset producer.Settings
}

// Bootstrap loads the bridge spec and the settings files it points at, and
// exposes metrics if a port is configured.
func Bootstrap(specPath string) (*Bridge, error) {
	spec, err := config.LoadBridgeSpec(specPath)
	if err != nil {
		return nil, fmt.Errorf("bridge spec: %w", err)
	}
	if len(spec.Source.Topics) == 0 {
		return nil, errors.New("bridge: source.topics must not be empty")
	}

	cset, err := consumer.LoadSettings(spec.Source.Config)
	if err != nil {
		return nil, fmt.Errorf("consumer settings: %w", err)
	}

	b := &Bridge{spec: spec, cset: cset}
	switch spec.Sink.Kind {
	case "kafka":
		if spec.Sink.Topic == "" {
			return nil, errors.New("bridge: sink.topic must be set for the kafka sink")
		}
		pset, err := producer.LoadSettings(spec.Sink.Config)
		if err != nil {
			return nil, fmt.Errorf("producer settings: %w", err)
		}
		b.pset = pset
	case "stdout":
	default:
		return nil, fmt.Errorf("bridge: unsupported sink %q", spec.Sink.Kind)
	}

	if spec.MetricsPort > 0 {
		telemetry.MustRegister()
		telemetry.Expose(spec.MetricsPort)
	}
	return b, nil
}

// Run drives the mirror until ctx cancellation or a fatal pipeline error.
// Cancellation is a clean stop and returns nil.
func (b *Bridge) Run(ctx context.Context) error {
	var err error
	switch b.spec.Sink.Kind {
	case "kafka":
		err = b.runKafka(ctx)
	case "stdout":
		err = b.runStdout(ctx)
	}
	if errors.Is(err, context.Canceled) {
		logging.L().Info("bridge stopped")
		return nil
	}
	return err
}

func (b *Bridge) runKafka(ctx context.Context) error {
	keySer, keyDe := serde.Bytes()
	valSer, valDe := serde.Bytes()
	sub := consumer.Subscribe(b.spec.Source.Topics...)
	dest := b.spec.Sink.Topic

	return producer.With(b.pset, keySer, valSer, func(p *producer.Producer[[]byte, []byte]) error {
		pipeline := consumer.ConsumeProcessBatchCommit(sub, keyDe, valDe, b.cset,
			func(ctx context.Context, recs []consumer.Record[[]byte, []byte]) ([]consumer.BatchResult[producer.Delivery], error) {
				entries := make([]producer.BatchEntry[[]byte, []byte, consumer.RawRecord], 0, len(recs))
				for _, rec := range recs {
					entries = append(entries, producer.BatchEntry[[]byte, []byte, consumer.RawRecord]{
						Record: producer.Record[[]byte, []byte]{
							Topic:   dest,
							Key:     rec.Key,
							Value:   rec.Value,
							Headers: rec.Headers,
						},
						Token: consumer.RawRecord{TopicPartition: rec.TopicPartition, Offset: rec.Offset},
					})
				}
				acks, err := producer.SendBatch(ctx, p, entries)
				if err != nil {
					return nil, err
				}
				results := make([]consumer.BatchResult[producer.Delivery], 0, len(acks))
				for _, ack := range acks {
					results = append(results, consumer.BatchResult[producer.Delivery]{
						Value:          ack.Delivery,
						TopicPartition: ack.Token.TopicPartition,
						Offset:         ack.Token.Offset,
					})
				}
				return results, nil
			})
		defer pipeline.Close()

		logging.L().Info("bridge started",
			"topics", b.spec.Source.Topics, "sink", dest, "group", b.cset.GroupID)
		return pipeline.Run(ctx, func([]consumer.BatchResult[producer.Delivery]) error { return nil })
	})
}
