package consumer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"kbridge/internal/logging"
	"kbridge/internal/telemetry"
)

func init() { Register("sarama", newSaramaClient) }

// saramaClient adapts sarama's push-style consumer group to the poll boundary.
// A background goroutine runs the group session and funnels claimed messages
// into recs; Poll drains that channel under the configured timeout.
type saramaClient struct {
	set   Settings
	cl    sarama.Client
	group sarama.ConsumerGroup

	recs   chan *sarama.ConsumerMessage
	sess   atomic.Value // sessionBox; holds nil between generations
	runErr chan error
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

func newSaramaClient(set Settings, sub Subscription) (Client, error) {
	if err := set.validate(); err != nil {
		return nil, err
	}
	if err := sub.Validate(); err != nil {
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
	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.AutoCommit.Enable = false
	if set.StartFrom == "oldest" {
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
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

	cl, err := sarama.NewClient(set.Brokers, sc)
	if err != nil {
		return nil, err
	}
	group, err := sarama.NewConsumerGroupFromClient(set.GroupID, cl)
	if err != nil {
		_ = cl.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &saramaClient{
		set:    set,
		cl:     cl,
		group:  group,
		recs:   make(chan *sarama.ConsumerMessage, set.MaxPollRecords),
		runErr: make(chan error, 1),
		cancel: cancel,
	}
	go c.run(runCtx, sub.Topics)
	return c, nil
}

func (c *saramaClient) run(ctx context.Context, topics []string) {
	handler := &claimFunnel{driver: c}
	for {
		if err := c.group.Consume(ctx, topics, handler); err != nil {
			c.runErr <- err
			return
		}
		if ctx.Err() != nil {
			return
		}
		// nil return means a rebalance finished; rejoin with a fresh session.
	}
}

func (c *saramaClient) Poll(ctx context.Context, max int) ([]RawRecord, error) {
	timer := time.NewTimer(c.set.PollTimeout)
	defer timer.Stop()

	var out []RawRecord

	// Block for the first record up to the poll timeout, then take whatever
	// else is already buffered, up to max.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-c.runErr:
		return nil, err
	case <-timer.C:
		return out, nil
	case msg := <-c.recs:
		out = append(out, toRawRecord(msg))
	}
	for len(out) < max {
		select {
		case msg := <-c.recs:
			out = append(out, toRawRecord(msg))
		default:
			return out, nil
		}
	}
	return out, nil
}

// CommitAsync marks the given offsets on the live session and flushes them in
// the background. sarama's session Commit reports broker rejections only via
// its own logger, so done always observes nil unless there is no session to
// commit on (mid-rebalance).
func (c *saramaClient) CommitAsync(offsets map[TopicPartition]Offset, done func(error)) {
	box, _ := c.sess.Load().(sessionBox)
	sess := box.s
	if sess == nil {
		done(errors.New("sarama driver: no active group session"))
		return
	}
	for tp, off := range offsets {
		sess.MarkOffset(tp.Topic, tp.Partition, int64(off), "")
	}
	go func() {
		sess.Commit()
		done(nil)
	}()
}

func (c *saramaClient) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		gerr := c.group.Close()
		cerr := c.cl.Close()
		c.closeErr = errors.Join(gerr, cerr)
		logging.L().Info("sarama driver closed", "group", c.set.GroupID)
	})
	return c.closeErr
}

func toRawRecord(msg *sarama.ConsumerMessage) RawRecord {
	telemetry.RecordsFetched.WithLabelValues(msg.Topic).Inc()
	return RawRecord{
		TopicPartition: TopicPartition{Topic: msg.Topic, Partition: msg.Partition},
		Offset:         msg.Offset,
		Key:            msg.Key,
		Value:          msg.Value,
		Headers:        saramaHeaderMap(msg.Headers),
		Timestamp:      msg.Timestamp,
	}
}

func saramaHeaderMap(src []*sarama.RecordHeader) map[string][]byte {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string][]byte, len(src))
	for _, h := range src {
		out[string(h.Key)] = h.Value
	}
	return out
}

// sessionBox wraps the session so atomic.Value can hold "no session" without
// a nil store.
type sessionBox struct {
	s sarama.ConsumerGroupSession
}

// claimFunnel is the group handler: it publishes the session for CommitAsync
// and forwards claimed messages to the driver's poll channel.
type claimFunnel struct {
	driver *saramaClient
}

func (f *claimFunnel) Setup(sess sarama.ConsumerGroupSession) error {
	f.driver.sess.Store(sessionBox{s: sess})
	return nil
}

func (f *claimFunnel) Cleanup(sarama.ConsumerGroupSession) error {
	f.driver.sess.Store(sessionBox{})
	logging.L().Info("sarama driver: session cleanup", "group", f.driver.set.GroupID)
	return nil
}

func (f *claimFunnel) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-sess.Context().Done():
			return sess.Context().Err()
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			select {
			case f.driver.recs <- msg:
			case <-sess.Context().Done():
				return sess.Context().Err()
			}
		}
	}
}
