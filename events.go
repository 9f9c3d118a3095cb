package goGate

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// SecurityEvent is the append-only record every subsystem writes. The core
// only ever inserts events; it never updates or deletes one after emission.
type SecurityEvent struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id,omitempty"`
	EventType string            `json:"event_type"`
	Severity  Severity          `json:"severity"`
	Message   string            `json:"message,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	IPAddress string            `json:"ip_address,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// EventSink receives emitted security events. Implementations must be safe
// for concurrent use; the engine's dispatcher calls Emit from one goroutine
// but applications may share sinks.
type EventSink interface {
	Emit(ctx context.Context, event SecurityEvent)
}

// NoOpSink drops security events.
type NoOpSink struct{}

// Emit describes the emit operation and its observable behavior.
func (NoOpSink) Emit(context.Context, SecurityEvent) {}

// ChannelSink writes security events into a buffered channel.
type ChannelSink struct {
	events chan SecurityEvent
}

// NewChannelSink describes the newchannelsink operation and its observable behavior.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan SecurityEvent, buffer),
	}
}

// Emit describes the emit operation and its observable behavior.
func (s *ChannelSink) Emit(ctx context.Context, event SecurityEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events describes the events operation and its observable behavior.
func (s *ChannelSink) Events() <-chan SecurityEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink describes the newjsonwritersink operation and its observable behavior.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Emit describes the emit operation and its observable behavior.
func (s *JSONWriterSink) Emit(ctx context.Context, event SecurityEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
