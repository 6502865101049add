package events

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/MrEthical07/goCartes/session"
	"github.com/rs/zerolog"
)

// Type names a session notification.
type Type string

const (
	TypeLogin            Type = "login"
	TypeLogout           Type = "logout"
	TypeSessionExpired   Type = "session-expired"
	TypePermissionDenied Type = "permission-denied"
	TypeNetworkError     Type = "network-error"
	TypeTimeout          Type = "timeout"
)

// Reasons attached to session-expired and logout events.
const (
	ReasonUnauthorized   = "unauthorized"
	ReasonRefreshFailed  = "refresh_failed"
	ReasonRestoreFailed  = "restore_failed"
	ReasonUserLogout     = "user_logout"
	ReasonClientShutdown = "client_shutdown"
)

// Event is one session notification.
type Event struct {
	Type      Type          `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Reason    string        `json:"reason,omitempty"`
	User      *session.User `json:"user,omitempty"`
	Err       error         `json:"-"`
	Error     string        `json:"error,omitempty"`
}

// Sink receives emitted events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
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
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	if event.Err != nil && event.Error == "" {
		event.Error = event.Err.Error()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(append(data, '\n'))
}

// LogSink records events through zerolog.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, event Event) {
	level := zerolog.InfoLevel
	switch event.Type {
	case TypeSessionExpired, TypePermissionDenied, TypeNetworkError, TypeTimeout:
		level = zerolog.WarnLevel
	}
	e := s.logger.WithLevel(level).Str("event", string(event.Type))
	if event.Reason != "" {
		e = e.Str("reason", event.Reason)
	}
	if event.User != nil {
		e = e.Str("user", event.User.Username)
	}
	if event.Err != nil {
		e = e.Err(event.Err)
	}
	e.Msg("session event")
}

// MultiSink forwards each event to every non-nil sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}
