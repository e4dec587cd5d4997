package producer

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrClosed        = errors.New("producer: closed")
	ErrUnknownDriver = errors.New("producer: unsupported driver")
)

// Delivery is the broker's acknowledgement of one send: where the record
// landed and when.
type Delivery struct {
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
}

// RawRecord is one serialized record handed to a driver. Partition choice is
// the native client's; the Delivery reports where the record landed.
type RawRecord struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string][]byte
	Timestamp time.Time
}

// Callback resolves one send, exactly once, with either a Delivery or an
// error.
type Callback func(Delivery, error)

// Client is the boundary to the native producer. SendAsync issues one send
// and registers cb as its completion; it never blocks on the acknowledgement.
// Implementations invoke callbacks from their own goroutines, so cb must not
// call back into the Client.
type Client interface {
	SendAsync(rec RawRecord, cb Callback)
	Close() error
}

// Factory builds a connected Client (e.g. the sarama or kgo driver).
type Factory func(set Settings) (Client, error)

var registry = map[string]Factory{}

func Register(name string, f Factory) {
	registry[name] = f
}

func newClient(set Settings) (Client, error) {
	f, ok := registry[set.Driver]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownDriver, set.Driver)
	}
	return f(set)
}
