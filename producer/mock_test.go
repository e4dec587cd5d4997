package producer

import (
	"sync"
	"time"
)

// fakeClient records sends and lets tests resolve their callbacks by hand, in
// any order, to model broker acknowledgements arriving out of sequence.
type fakeClient struct {
	mu     sync.Mutex
	sends  []RawRecord
	cbs    []Callback
	closed int
}

func (f *fakeClient) SendAsync(rec RawRecord, cb Callback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, rec)
	f.cbs = append(f.cbs, cb)
}

// ack resolves send i successfully with a synthetic offset.
func (f *fakeClient) ack(i int) {
	f.mu.Lock()
	rec, cb := f.sends[i], f.cbs[i]
	f.mu.Unlock()
	cb(Delivery{
		Topic:     rec.Topic,
		Partition: 0,
		Offset:    int64(100 + i),
		Timestamp: time.Unix(0, 0),
	}, nil)
}

func (f *fakeClient) fail(i int, err error) {
	f.mu.Lock()
	cb := f.cbs[i]
	f.mu.Unlock()
	cb(Delivery{}, err)
}

func (f *fakeClient) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cbs)
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// useFake registers a driver named "fake" that hands out cl, and returns
// settings selecting it.
func useFake(cl *fakeClient) Settings {
	Register("fake", func(Settings) (Client, error) {
		return cl, nil
	})
	return Settings{Brokers: []string{"broker:9092"}, Driver: "fake"}
}
