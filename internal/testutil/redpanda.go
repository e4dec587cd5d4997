//go:build integration

// Package testutil spins up a disposable Redpanda broker for integration
// tests and offers small admin helpers over it.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

const redpandaImage = "docker.redpanda.com/redpandadata/redpanda:v24.3.1"

// KafkaEnv is a running single-broker cluster scoped to one test.
type KafkaEnv struct {
	Container *redpanda.Container
	Brokers   []string
}

func StartRedpanda(ctx context.Context) (*KafkaEnv, func(context.Context) error, error) {
	rp, err := redpanda.Run(ctx, redpandaImage)
	if err != nil {
		return nil, nil, fmt.Errorf("run redpanda: %w", err)
	}
	seed, err := rp.KafkaSeedBroker(ctx)
	if err != nil {
		_ = tc.TerminateContainer(rp)
		return nil, nil, fmt.Errorf("seed broker: %w", err)
	}
	env := &KafkaEnv{Container: rp, Brokers: []string{seed}}
	stop := func(context.Context) error { return tc.TerminateContainer(rp) }
	return env, stop, nil
}

// UniqueName derives a broker-safe unique topic/group name from a base.
func UniqueName(base string) string {
	s := time.Now().UTC().Format("20060102T150405.000000000")
	return base + "-" + strings.ReplaceAll(s, ".", "")
}

// Admin opens a kadm client against the environment. Close via the returned
// func.
func (e *KafkaEnv) Admin(ctx context.Context) (*kadm.Client, func(), error) {
	cl, err := kgo.NewClient(kgo.SeedBrokers(e.Brokers...))
	if err != nil {
		return nil, nil, err
	}
	return kadm.NewClient(cl), cl.Close, nil
}

// CreateTopic makes a topic with the given partition count and waits until
// metadata reports it.
func (e *KafkaEnv) CreateTopic(ctx context.Context, topic string, partitions int32) error {
	adm, done, err := e.Admin(ctx)
	if err != nil {
		return err
	}
	defer done()

	if _, err := adm.CreateTopic(ctx, partitions, 1, nil, topic); err != nil {
		if !strings.Contains(strings.ToLower(err.Error()), "already exists") {
			return err
		}
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		md, err := adm.Metadata(ctx, topic)
		if err == nil {
			if t, ok := md.Topics[topic]; ok && len(t.Partitions) == int(partitions) {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("topic %q not ready: %v", topic, err)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// Produce writes key/value pairs to a topic and waits for all acks.
func (e *KafkaEnv) Produce(ctx context.Context, topic string, recs map[string]string) error {
	cl, err := kgo.NewClient(kgo.SeedBrokers(e.Brokers...), kgo.DefaultProduceTopic(topic))
	if err != nil {
		return err
	}
	defer cl.Close()

	for k, v := range recs {
		cl.Produce(ctx, &kgo.Record{Key: []byte(k), Value: []byte(v)}, nil)
	}
	return cl.Flush(ctx)
}

// CommittedOffsets fetches the group's committed offset per partition of a
// topic, i.e. where a fresh member of the group would resume.
func (e *KafkaEnv) CommittedOffsets(ctx context.Context, group, topic string) (map[int32]int64, error) {
	adm, done, err := e.Admin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	resp, err := adm.FetchOffsetsForTopics(ctx, group, topic)
	if err != nil {
		return nil, err
	}
	out := map[int32]int64{}
	resp.Each(func(o kadm.OffsetResponse) {
		if o.Err == nil && o.Topic == topic && o.At >= 0 {
			out[o.Partition] = o.At
		}
	})
	return out, nil
}
