package producer

import (
	"sync"

	"github.com/IBM/sarama"

	"kbridge/internal/logging"
	"kbridge/internal/telemetry"
)

func init() { Register("sarama", newSaramaClient) }

// saramaClient bridges sarama's AsyncProducer channels to per-send callbacks.
// The pending correlation rides on ProducerMessage.Metadata: each message
// carries its own Callback, so the Successes/Errors readers need no lookup
// table and a completion can never resolve the wrong send.
type saramaClient struct {
	p  sarama.AsyncProducer
	wg sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

func newSaramaClient(set Settings) (Client, error) {
	if err := set.validate(); err != nil {
		return nil, err
	}

	sc := sarama.NewConfig()
	if set.Version != "" {
		ver, err := sarama.ParseKafkaVersion(set.Version)
		if err != nil {
			return nil, err
		}
		sc.Version = ver
	}
	sc.Producer.RequiredAcks = sarama.RequiredAcks(set.Acks)
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Net.MaxOpenRequests = set.MaxInFlight
	if set.Idempotent {
		sc.Producer.Idempotent = true
		sc.Producer.RequiredAcks = sarama.WaitForAll
		sc.Net.MaxOpenRequests = 1
	}
	if set.ClientID != "" {
		sc.ClientID = set.ClientID
	}
	if set.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if set.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = set.SASLUser, set.SASLPass
	}

	p, err := sarama.NewAsyncProducer(set.Brokers, sc)
	if err != nil {
		return nil, err
	}

	c := &saramaClient{p: p}
	c.wg.Add(2)
	go c.readSuccesses()
	go c.readErrors()
	return c, nil
}

func (c *saramaClient) readSuccesses() {
	defer c.wg.Done()
	for pm := range c.p.Successes() {
		cb := pm.Metadata.(Callback)
		telemetry.SendsAcked.WithLabelValues(pm.Topic).Inc()
		cb(Delivery{
			Topic:     pm.Topic,
			Partition: pm.Partition,
			Offset:    pm.Offset,
			Timestamp: pm.Timestamp,
		}, nil)
	}
}

func (c *saramaClient) readErrors() {
	defer c.wg.Done()
	for pe := range c.p.Errors() {
		cb := pe.Msg.Metadata.(Callback)
		telemetry.SendFailures.WithLabelValues(pe.Msg.Topic).Inc()
		cb(Delivery{}, pe.Err)
	}
}

func (c *saramaClient) SendAsync(rec RawRecord, cb Callback) {
	msg := &sarama.ProducerMessage{
		Topic:    rec.Topic,
		Metadata: cb,
	}
	if rec.Key != nil {
		msg.Key = sarama.ByteEncoder(rec.Key)
	}
	if rec.Value != nil {
		msg.Value = sarama.ByteEncoder(rec.Value)
	}
	if !rec.Timestamp.IsZero() {
		msg.Timestamp = rec.Timestamp
	}
	for k, v := range rec.Headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: v})
	}
	c.p.Input() <- msg
}

// Close flushes buffered sends, then waits for every callback to have fired.
func (c *saramaClient) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.p.Close()
		c.wg.Wait()
		logging.L().Info("sarama producer closed")
	})
	return c.closeErr
}
