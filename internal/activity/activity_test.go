package activity

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (s *memorySink) Write(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return s.err
}

func (s *memorySink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestRecorder_WritesInBackground(t *testing.T) {
	sink := &memorySink{}
	rec := NewRecorder(sink, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()

	rec.Record(Entry{Action: "order.created", EntityType: "order", EntityID: "1"})
	rec.Record(Entry{Action: "order.paid", EntityType: "order", EntityID: "1"})

	require.Eventually(t, func() bool { return sink.len() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, "order.created", sink.entries[0].Action)
	assert.False(t, sink.entries[0].At.IsZero())
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	sink := &memorySink{}
	rec := NewRecorder(sink, 1)

	rec.Record(Entry{Action: "first"})
	rec.Record(Entry{Action: "second"})

	assert.Equal(t, int64(1), rec.Dropped())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rec.Run(ctx))
	require.Equal(t, 1, sink.len(), "queued entries are flushed on shutdown")
	assert.Equal(t, "first", sink.entries[0].Action)
}

func TestRecorder_SinkErrorsAreSwallowed(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	rec := NewRecorder(sink, 4)
	rec.Record(Entry{Action: "order.cancelled"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, rec.Run(ctx))
	assert.Equal(t, 1, sink.len())
}

func TestMongoSink_Write(t *testing.T) {
	url := os.Getenv("POS_TEST_MONGO_URL")
	if url == "" {
		t.Skip("POS_TEST_MONGO_URL not set")
	}

	ctx := context.Background()
	sink, err := NewMongoSink(ctx, url, "pos_activity_test")
	require.NoError(t, err)
	defer sink.Close(ctx)

	err = sink.Write(ctx, Entry{
		ActorID:    uuid.Must(uuid.NewV4()),
		Action:     "order.paid",
		EntityType: "order",
		EntityID:   uuid.Must(uuid.NewV4()).String(),
		At:         time.Now().UTC(),
	})
	assert.NoError(t, err)
}
