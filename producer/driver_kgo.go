package producer

import (
	"context"
	"crypto/tls"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"

	"kbridge/internal/logging"
	"kbridge/internal/telemetry"
)

func init() { Register("kgo", newKgoClient) }

// kgoClient maps SendAsync straight onto kgo's promise-taking Produce.
type kgoClient struct {
	cl *kgo.Client

	closeOnce sync.Once
}

func newKgoClient(set Settings) (Client, error) {
	if err := set.validate(); err != nil {
		return nil, err
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(set.Brokers...),
	}
	switch set.Acks {
	case 0:
		opts = append(opts, kgo.RequiredAcks(kgo.NoAck()), kgo.DisableIdempotentWrite())
	case 1:
		opts = append(opts, kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite())
	default:
		opts = append(opts, kgo.RequiredAcks(kgo.AllISRAcks()))
	}
	if !set.Idempotent && set.Acks == -1 {
		opts = append(opts, kgo.DisableIdempotentWrite())
	}
	if set.MaxInFlight > 0 {
		opts = append(opts, kgo.MaxProduceRequestsInflightPerBroker(set.MaxInFlight))
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
	return &kgoClient{cl: cl}, nil
}

func (c *kgoClient) SendAsync(rec RawRecord, cb Callback) {
	kr := &kgo.Record{
		Topic:     rec.Topic,
		Key:       rec.Key,
		Value:     rec.Value,
		Timestamp: rec.Timestamp,
	}
	for k, v := range rec.Headers {
		kr.Headers = append(kr.Headers, kgo.RecordHeader{Key: k, Value: v})
	}
	c.cl.Produce(context.Background(), kr, func(r *kgo.Record, err error) {
		if err != nil {
			telemetry.SendFailures.WithLabelValues(rec.Topic).Inc()
			cb(Delivery{}, err)
			return
		}
		telemetry.SendsAcked.WithLabelValues(r.Topic).Inc()
		cb(Delivery{
			Topic:     r.Topic,
			Partition: r.Partition,
			Offset:    r.Offset,
			Timestamp: r.Timestamp,
		}, nil)
	})
}

// Close flushes buffered sends before releasing the client; every promise has
// fired by the time Close returns.
func (c *kgoClient) Close() error {
	c.closeOnce.Do(func() {
		_ = c.cl.Flush(context.Background())
		c.cl.Close()
		logging.L().Info("kgo producer closed")
	})
	return nil
}
