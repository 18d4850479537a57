package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Publisher buffers events and flushes them to a Sink from a single worker.
type Publisher struct {
	sink      Sink
	buffer    *ringBuffer
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithFlushInterval sets how often the worker drains the buffer.
func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithBufferSize(n int) Option {
	return func(p *Publisher) {
		p.buffer = newRingBuffer(n)
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// NewPublisher starts the flush worker. Call Close to drain and stop it.
func NewPublisher(sink Sink, opts ...Option) *Publisher {
	p := &Publisher{
		sink:      sink,
		buffer:    newRingBuffer(0),
		logger:    slog.Default(),
		interval:  time.Second,
		batchSize: 100,
		now:       time.Now,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.run()
	return p
}

// Publish enqueues e without blocking. A nil Publisher drops the event.
func (p *Publisher) Publish(_ context.Context, e Event) {
	if p == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = p.now()
	}
	p.buffer.enqueue(e)
	if p.buffer.len() >= p.batchSize {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}

// Dropped reports events lost to buffer overflow.
func (p *Publisher) Dropped() int64 {
	return p.buffer.droppedCount()
}

// Close flushes what is buffered, then closes the sink.
func (p *Publisher) Close(ctx context.Context) error {
	p.once.Do(func() { close(p.stop) })
	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.flush(ctx)
	return p.sink.Close()
}

func (p *Publisher) run() {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		case <-p.wake:
		}
		p.flush(context.Background())
	}
}

func (p *Publisher) flush(ctx context.Context) {
	for {
		batch := p.buffer.dequeueBatch(p.batchSize)
		if len(batch) == 0 {
			return
		}
		if err := p.sink.Write(ctx, batch); err != nil {
			p.logger.WarnContext(ctx, "security event delivery failed",
				"events", len(batch),
				"first_type", batch[0].Type,
				"error", err.Error(),
			)
		}
	}
}
