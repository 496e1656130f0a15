package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const DefaultBuffer = 1024

type record struct {
	usage   *UsageEvent
	apiCall *APICallLog
}

// AsyncSink buffers records and writes them to a Store from a single worker.
// A full buffer drops the record with a warning.
type AsyncSink struct {
	store   Store
	logger  *slog.Logger
	records chan record
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsyncSink(log *slog.Logger, store Store, buffer int) *AsyncSink {
	if log == nil {
		log = slog.Default()
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &AsyncSink{
		store:   store,
		logger:  log.With(slog.String("service", "analytics")),
		records: make(chan record, buffer),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *AsyncSink) RecordMessageUsage(_ context.Context, event UsageEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	if event.Type == "" {
		event.Type = EventMessage
	}
	s.enqueue(record{usage: &event})
	return nil
}

func (s *AsyncSink) RecordAPICall(_ context.Context, log APICallLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = s.now().UTC()
	}
	s.enqueue(record{apiCall: &log})
	return nil
}

func (s *AsyncSink) enqueue(r record) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn("analytics sink closed, record dropped")
		return
	}
	select {
	case s.records <- r:
	default:
		s.logger.Warn("analytics buffer full, record dropped")
	}
}

func (s *AsyncSink) loop() {
	defer close(s.done)
	for r := range s.records {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var err error
		switch {
		case r.usage != nil:
			err = s.store.InsertUsage(ctx, *r.usage)
		case r.apiCall != nil:
			err = s.store.InsertAPICall(ctx, *r.apiCall)
		}
		cancel()
		if err != nil {
			s.logger.Warn("analytics write failed", slog.Any("error", err))
		}
	}
}

// Close stops accepting records and waits for buffered ones to be written or ctx to end.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.records)
	}
	s.mu.Unlock()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
