package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goCartes/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

type recordSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordSink) Emit(_ context.Context, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordSink) Types() []Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Type, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

func TestDispatcherInlineDeliversImmediately(t *testing.T) {
	rec := &recordSink{}
	d := NewDispatcher(Config{}, rec)
	defer d.Close()

	d.Emit(context.Background(), Event{Type: TypeLogin})
	d.Emit(context.Background(), Event{Type: TypeLogout})

	assert.Equal(t, []Type{TypeLogin, TypeLogout}, rec.Types())
}

func TestDispatcherAsyncPreservesOrderAndDrainsOnClose(t *testing.T) {
	rec := &recordSink{}
	d := NewDispatcher(Config{Async: true, BufferSize: 16}, rec)

	want := []Type{TypeLogin, TypeTimeout, TypeNetworkError, TypeSessionExpired}
	for _, typ := range want {
		d.Emit(context.Background(), Event{Type: typ})
	}
	d.Close()

	assert.Equal(t, want, rec.Types())

	d.Emit(context.Background(), Event{Type: TypeLogout})
	assert.Len(t, rec.Types(), len(want))
}

func TestDispatcherDropIfFullCountsDrops(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Async: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{Type: TypeLogin})
	}
	assert.Greater(t, d.Dropped(), uint64(0))

	close(sink.gate)
	d.Close()
}

func TestDispatcherBlockingRespectsContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Async: true, BufferSize: 1}, sink)

	d.Emit(context.Background(), Event{Type: TypeLogin})
	d.Emit(context.Background(), Event{Type: TypeLogin})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{Type: TypeLogin})
	assert.Equal(t, uint64(1), d.Dropped())

	close(sink.gate)
	d.Close()
}

func TestDispatcherCloseLeavesNothingQueued(t *testing.T) {
	for round := 0; round < 50; round++ {
		rec := &recordSink{}
		d := NewDispatcher(Config{Async: true, BufferSize: 4}, rec)

		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < 50; j++ {
					d.Emit(context.Background(), Event{Type: TypeLogin})
				}
			}()
		}
		close(start)
		d.Close()
		wg.Wait()

		require.Zero(t, len(d.ch), "round %d", round)
		delivered := len(rec.Types())
		d.Emit(context.Background(), Event{Type: TypeLogout})
		assert.Zero(t, len(d.ch))
		assert.Len(t, rec.Types(), delivered)
	}
}

func TestNilDispatcherIsSafe(t *testing.T) {
	var d *Dispatcher
	d.Emit(context.Background(), Event{Type: TypeLogin})
	d.Close()
	assert.Zero(t, d.Dropped())
}

func TestFanoutSubscribeAndUnsubscribe(t *testing.T) {
	f := NewFanout()
	var got []string

	unsubA := f.Subscribe(func(e Event) { got = append(got, "a:"+string(e.Type)) })
	unsubB := f.Subscribe(func(e Event) { got = append(got, "b:"+string(e.Type)) })
	require.Equal(t, 2, f.Len())

	f.Emit(context.Background(), Event{Type: TypeLogin})
	unsubA()
	unsubA()
	f.Emit(context.Background(), Event{Type: TypeLogout})
	unsubB()

	assert.Equal(t, []string{"a:login", "b:login", "b:logout"}, got)
	assert.Zero(t, f.Len())
	assert.NotPanics(t, func() { f.Subscribe(nil)() })
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONWriterSink(&buf)
	s.Emit(context.Background(), Event{
		Type:   TypeSessionExpired,
		Reason: ReasonRefreshFailed,
		User:   &session.User{ID: 1, Username: "alice"},
		Err:    errors.New("boom"),
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &decoded))
	assert.Equal(t, "session-expired", decoded["type"])
	assert.Equal(t, "refresh_failed", decoded["reason"])
	assert.Equal(t, "boom", decoded["error"])
}

func TestLogSinkAndMultiSink(t *testing.T) {
	var buf bytes.Buffer
	rec := &recordSink{}
	m := MultiSink{NewLogSink(zerolog.New(&buf)), nil, rec}

	m.Emit(context.Background(), Event{Type: TypePermissionDenied, Reason: "cartes.delete"})

	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"event":"permission-denied"`)
	assert.Equal(t, []Type{TypePermissionDenied}, rec.Types())
}
