package kafka_infra

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  chan kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case msg := <-r.messages:
		return msg, nil
	}
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func TestConsumerCommitsOnlyHandledMessages(t *testing.T) {
	reader := &fakeReader{messages: make(chan kafka.Message, 2)}
	reader.messages <- kafka.Message{Offset: 1, Value: []byte("ok")}
	reader.messages <- kafka.Message{Offset: 2, Value: []byte("bad")}

	c := newConsumer(reader, "group", "topic", zap.NewNop())
	c.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	handled := make(chan int64, 2)
	done := make(chan error, 1)
	go func() {
		done <- c.Start(ctx, func(ctx context.Context, msg kafka.Message) error {
			handled <- msg.Offset
			if string(msg.Value) == "bad" {
				return errors.New("handler failed")
			}
			return nil
		})
	}()

	assert.Equal(t, int64(1), <-handled)
	assert.Equal(t, int64(2), <-handled)
	cancel()
	require.NoError(t, <-done)

	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.Equal(t, []int64{1}, reader.committed)
	assert.True(t, reader.closed)
}
