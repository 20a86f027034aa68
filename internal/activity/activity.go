package activity

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

const writeTimeout = 5 * time.Second

type Entry struct {
	ActorID    uuid.UUID `json:"actor_id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Before     string    `json:"before,omitempty"`
	After      string    `json:"after,omitempty"`
	At         time.Time `json:"at"`
}

type Sink interface {
	Write(ctx context.Context, e Entry) error
}

type NopSink struct{}

func (NopSink) Write(context.Context, Entry) error { return nil }

// Recorder queues entries for a background writer. Record never blocks; when
// the queue is full the entry is dropped and counted.
type Recorder struct {
	sink    Sink
	queue   chan Entry
	dropped atomic.Int64
}

func NewRecorder(sink Sink, buffer int) *Recorder {
	if buffer < 1 {
		buffer = 1
	}
	return &Recorder{sink: sink, queue: make(chan Entry, buffer)}
}

func (r *Recorder) Record(e Entry) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	select {
	case r.queue <- e:
	default:
		r.dropped.Add(1)
		log.Warn().Str("action", e.Action).Str("entity_id", e.EntityID).Msg("activity: queue full, entry dropped")
	}
}

func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Run writes queued entries until ctx is done, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case e := <-r.queue:
			r.write(context.Background(), e)
		case <-ctx.Done():
			for {
				select {
				case e := <-r.queue:
					r.write(context.Background(), e)
				default:
					return nil
				}
			}
		}
	}
}

func (r *Recorder) write(parent context.Context, e Entry) {
	ctx, cancel := context.WithTimeout(parent, writeTimeout)
	defer cancel()
	if err := r.sink.Write(ctx, e); err != nil {
		log.Error().Err(err).Str("action", e.Action).Str("entity_id", e.EntityID).Msg("activity: failed to write entry")
	}
}
