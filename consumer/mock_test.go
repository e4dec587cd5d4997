package consumer

import (
	"context"
	"sync"
)

// fakeClient scripts Poll outcomes and records commits. Commit callbacks run
// synchronously unless holdCommits is set, in which case they are parked for
// the test to resolve by hand.
type fakeClient struct {
	mu sync.Mutex

	polls   [][]RawRecord // successive poll results; exhausted → empty polls
	pollErr error         // returned once all scripted polls are consumed
	pollN   int

	commits     []map[TopicPartition]Offset
	commitErr   error
	holdCommits bool
	parked      []func(error)

	closed int
}

func (f *fakeClient) Poll(ctx context.Context, max int) ([]RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollN >= len(f.polls) {
		if f.pollErr != nil {
			return nil, f.pollErr
		}
		return nil, nil
	}
	recs := f.polls[f.pollN]
	f.pollN++
	if len(recs) > max {
		recs = recs[:max]
	}
	return recs, nil
}

func (f *fakeClient) CommitAsync(offsets map[TopicPartition]Offset, done func(error)) {
	f.mu.Lock()
	cp := make(map[TopicPartition]Offset, len(offsets))
	for tp, off := range offsets {
		cp[tp] = off
	}
	f.commits = append(f.commits, cp)
	err := f.commitErr
	if f.holdCommits {
		f.parked = append(f.parked, done)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	done(err)
}

func (f *fakeClient) resolveParked(err error) {
	f.mu.Lock()
	parked := f.parked
	f.parked = nil
	f.mu.Unlock()
	for _, done := range parked {
		done(err)
	}
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
	Register("fake", func(Settings, Subscription) (Client, error) {
		return cl, nil
	})
	return Settings{
		Brokers:        []string{"broker:9092"},
		GroupID:        "test-group",
		Driver:         "fake",
		MaxPollRecords: 500,
	}
}

func raw(topic string, partition int32, offset int64, key, value string) RawRecord {
	return RawRecord{
		TopicPartition: TopicPartition{Topic: topic, Partition: partition},
		Offset:         offset,
		Key:            []byte(key),
		Value:          []byte(value),
	}
}
