package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Severity ranks an audit entry.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is the append-only audit record produced by every security-relevant transition.
type Event struct {
	ID         string    `json:"id" db:"id"`
	Timestamp  time.Time `json:"timestamp" db:"occurred_at"`
	Action     string    `json:"action" db:"action"`
	ActorID    string    `json:"actor_id,omitempty" db:"actor_id"`
	TargetID   string    `json:"target_id,omitempty" db:"target_id"`
	TargetType string    `json:"target_type,omitempty" db:"target_type"`
	Severity   Severity  `json:"severity" db:"severity"`
	Message    string    `json:"message,omitempty" db:"message"`
	SourceAddr string    `json:"source_addr,omitempty" db:"source_addr"`
	Path       string    `json:"path,omitempty" db:"path"`
	Success    bool      `json:"success" db:"success"`
}

// Sink persists or forwards audit events. Errors are reported to the dispatcher, which
// logs and counts them; they never reach the caller of the audited operation.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Record(context.Context, Event) error { return nil }

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Record(ctx context.Context, event Event) error {
	select {
	case s.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Record(_ context.Context, event Event) error {
	if s == nil || s.writer == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.writer.Write(data)
	return err
}

// ZapSink writes each event as one structured log line.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger.Named("audit")}
}

func (s *ZapSink) Record(_ context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("id", event.ID),
		zap.Time("timestamp", event.Timestamp),
		zap.String("action", event.Action),
		zap.String("actor_id", event.ActorID),
		zap.String("target_id", event.TargetID),
		zap.String("target_type", event.TargetType),
		zap.String("source_addr", event.SourceAddr),
		zap.String("path", event.Path),
		zap.Bool("success", event.Success),
	}
	switch event.Severity {
	case SeverityCritical:
		s.logger.Error(event.Message, fields...)
	case SeverityWarning:
		s.logger.Warn(event.Message, fields...)
	default:
		s.logger.Info(event.Message, fields...)
	}
	return nil
}
