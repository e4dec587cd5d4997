package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrClosed        = errors.New("consumer: stream closed")
	ErrUnknownDriver = errors.New("consumer: unsupported driver")
)

// TopicPartition identifies one partition of one topic.
type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s[%d]", tp.Topic, tp.Partition)
}

// Offset is a position to commit: the next offset a consumer group should
// resume fetching from. Committing the record at offset o means committing
// Offset(o + 1).
type Offset int64

// RawRecord is one fetched record before key/value decoding. Broker-assigned
// fields are read-only to this package.
type RawRecord struct {
	TopicPartition
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string][]byte
	Timestamp time.Time
}

// Client is the boundary to the native broker client. Implementations are not
// safe for concurrent use; a single goroutine owns a Client for its lifetime.
//
// Poll blocks for at most the driver's configured poll timeout and returns the
// records fetched in that window, at most max of them. A timeout with nothing
// fetched is ([]RawRecord{}, nil), not an error.
//
// CommitAsync issues one commit call and invokes done exactly once with its
// outcome. The caller must not issue another commit on the same Client until
// done has fired.
type Client interface {
	Poll(ctx context.Context, max int) ([]RawRecord, error)
	CommitAsync(offsets map[TopicPartition]Offset, done func(error))
	Close() error
}

// Factory builds a subscribed Client (e.g. the kgo or sarama driver).
type Factory func(set Settings, sub Subscription) (Client, error)

var registry = map[string]Factory{}

// Register installs a driver under a name. Called from driver init() or from
// main() factory maps.
func Register(name string, f Factory) {
	registry[name] = f
}

func newClient(set Settings, sub Subscription) (Client, error) {
	f, ok := registry[set.Driver]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownDriver, set.Driver)
	}
	return f(set, sub)
}
