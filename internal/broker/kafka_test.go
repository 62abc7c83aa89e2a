package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves queued messages and records every fetch and commit in order
type fakeReader struct {
	mu       sync.Mutex
	pending  []kafka.Message
	log      []string
	commits  []int64
	drained  chan struct{}
	signalled bool
}

func newFakeReader(offsets ...int64) *fakeReader {
	r := &fakeReader{drained: make(chan struct{})}
	for _, o := range offsets {
		r.pending = append(r.pending, kafka.Message{Offset: o})
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.log = append(r.log, "fetch")
		r.mu.Unlock()
		return msg, nil
	}
	if !r.signalled {
		r.signalled = true
		close(r.drained)
	}
	r.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.log = append(r.log, "commit")
		r.commits = append(r.commits, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func testConsumer(r *fakeReader) *Consumer {
	c := newConsumer(r, "ingest")
	c.minBackoff = time.Millisecond
	c.maxBackoff = 2 * time.Millisecond
	return c
}

func TestStartConsuming_RetriesFailedMessageBeforeMovingOn(t *testing.T) {
	r := newFakeReader(5, 6)
	c := testConsumer(r)

	var (
		mu       sync.Mutex
		handled  []int64
		failures = 2
	)
	handler := func(ctx context.Context, msg kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, msg.Offset)
		if msg.Offset == 5 && failures > 0 {
			failures--
			return errors.New("backend unavailable")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.StartConsuming(ctx, handler) }()

	select {
	case <-r.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain the queue")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, []int64{5, 5, 5, 6}, handled)
	assert.Equal(t, []int64{5, 6}, r.commits)
	// offset 6 is fetched only after 5 is committed
	assert.Equal(t, []string{"fetch", "commit", "fetch", "commit"}, r.log)
}

func TestStartConsuming_StopsWhileRetrying(t *testing.T) {
	r := newFakeReader(1, 2)
	c := testConsumer(r)

	ctx, cancel := context.WithCancel(context.Background())
	attempts := make(chan struct{}, 100)
	handler := func(ctx context.Context, msg kafka.Message) error {
		select {
		case attempts <- struct{}{}:
		default:
		}
		return errors.New("still down")
	}

	done := make(chan error, 1)
	go func() { done <- c.StartConsuming(ctx, handler) }()

	for i := 0; i < 3; i++ {
		select {
		case <-attempts:
		case <-time.After(5 * time.Second):
			t.Fatal("handler was not retried")
		}
	}
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, r.commits)

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Len(t, r.pending, 1, "message 2 was never fetched")
}
