package events

import (
	"context"
	"log/slog"
	"sync"
)

// LogSink writes events as structured log lines.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(ctx context.Context, batch []Event) error {
	for _, e := range batch {
		s.logger.InfoContext(ctx, "security event",
			"event_id", e.ID,
			"event_type", e.Type,
			"tenant_id", e.TenantID,
			"user_id", e.UserID,
			"verification_type", e.VerificationType,
			"application_id", e.ApplicationID,
			"request_id", e.RequestID,
		)
	}
	return nil
}

func (s *LogSink) Close() error { return nil }

// MemorySink keeps delivered events; tests read them back.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *MemorySink) Close() error { return nil }

// Events returns a copy of everything written so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
