//go:build integration

package producer_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kbridge/consumer"
	"kbridge/internal/testutil"
	"kbridge/producer"
	"kbridge/serde"
)

func startEnv(t *testing.T) *testutil.KafkaEnv {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	env, stop, err := testutil.StartRedpanda(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stop(context.Background()) })
	return env
}

func readAll(t *testing.T, env *testutil.KafkaEnv, topic string, want int) map[string]string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	_, keyDe := serde.String()
	_, valDe := serde.String()
	s := consumer.NewStream(consumer.Subscribe(topic), keyDe, valDe, consumer.Settings{
		Brokers:        env.Brokers,
		GroupID:        testutil.UniqueName("reader"),
		Driver:         "kgo",
		StartFrom:      "oldest",
		PollTimeout:    200 * time.Millisecond,
		MaxPollRecords: 500,
	})
	defer s.Close()

	got := make(map[string]string, want)
	for len(got) < want {
		rec, err := s.Next(ctx)
		require.NoError(t, err)
		got[rec.Key] = rec.Value
	}
	return got
}

func TestIntegration_SendDelivers(t *testing.T) {
	for _, driver := range []string{"sarama", "kgo"} {
		t.Run(driver, func(t *testing.T) {
			env := startEnv(t)
			ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
			defer cancel()

			topic := testutil.UniqueName("send-itc")
			require.NoError(t, env.CreateTopic(ctx, topic, 1))

			keySer, _ := serde.String()
			valSer, _ := serde.String()
			set := producer.Settings{Brokers: env.Brokers, Driver: driver, Acks: -1}

			err := producer.With(set, keySer, valSer, func(p *producer.Producer[string, string]) error {
				d, err := p.Send(ctx, producer.Record[string, string]{
					Topic: topic, Key: "k1", Value: "v1",
				})
				if err != nil {
					return err
				}
				require.Equal(t, topic, d.Topic)
				require.GreaterOrEqual(t, d.Offset, int64(0))
				return nil
			})
			require.NoError(t, err)
			require.Equal(t, map[string]string{"k1": "v1"}, readAll(t, env, topic, 1))
		})
	}
}

func TestIntegration_SendBatchPreservesOrderAndTokens(t *testing.T) {
	env := startEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	topic := testutil.UniqueName("batch-send-itc")
	require.NoError(t, env.CreateTopic(ctx, topic, 1))

	keySer, _ := serde.String()
	valSer, _ := serde.String()
	set := producer.Settings{Brokers: env.Brokers, Driver: "sarama", Acks: -1}

	const n = 50
	err := producer.With(set, keySer, valSer, func(p *producer.Producer[string, string]) error {
		batch := make([]producer.BatchEntry[string, string, int], 0, n)
		for i := 0; i < n; i++ {
			batch = append(batch, producer.BatchEntry[string, string, int]{
				Record: producer.Record[string, string]{
					Topic: topic,
					Key:   fmt.Sprintf("k-%02d", i),
					Value: fmt.Sprintf("v-%02d", i),
				},
				Token: i,
			})
		}
		acks, err := producer.SendBatch(ctx, p, batch)
		if err != nil {
			return err
		}
		require.Len(t, acks, n)
		for i, a := range acks {
			require.Equal(t, i, a.Token)
			if i > 0 {
				require.Greater(t, a.Delivery.Offset, acks[i-1].Delivery.Offset)
			}
		}
		return nil
	})
	require.NoError(t, err)

	want := make(map[string]string, n)
	for i := 0; i < n; i++ {
		want[fmt.Sprintf("k-%02d", i)] = fmt.Sprintf("v-%02d", i)
	}
	require.Equal(t, want, readAll(t, env, topic, n))
}
