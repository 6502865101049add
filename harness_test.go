package goCartes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goCartes/internal/stubapi"
	"github.com/MrEthical07/goCartes/session"
	"github.com/stretchr/testify/require"
)

const testPassword = "x"

var (
	alice = session.User{ID: 1, FullName: "Alice Kouassi", Username: "alice", Email: "alice@cartes.test", Agency: "Abidjan", Role: session.RoleAdministrator}
	bob   = session.User{ID: 2, FullName: "Bob Yao", Username: "bob", Agency: "Bouaké", Role: session.RoleOperator}
	carol = session.User{ID: 3, FullName: "Carol N'Guessan", Username: "carol", Role: session.RoleChief}
	dave  = session.User{ID: 4, FullName: "Dave Koné", Username: "dave", Role: session.RoleSupervisor}
)

func seedCartes() []map[string]any {
	return []map[string]any{
		{"NOM": "KOFFI", "PRENOMS": "Jean", "SITE DE RETRAIT": "Cocody", "RANGEMENT": "A1"},
		{"NOM": "DIALLO", "PRENOMS": "Awa", "SITE DE RETRAIT": "Cocody", "DELIVRANCE": "OUI"},
		{"NOM": "TRAORE", "PRENOMS": "Issa", "SITE DE RETRAIT": "Yopougon", "NUMERO DE LOT": "L-17"},
	}
}

func newStub(t *testing.T) *stubapi.Server {
	t.Helper()
	stub, err := stubapi.New(stubapi.Config{
		Accounts: []stubapi.Account{
			{Password: testPassword, User: alice},
			{Password: testPassword, User: bob},
			{Password: testPassword, User: carol},
			{Password: testPassword, User: dave},
			{Password: testPassword, Disabled: true, User: session.User{ID: 5, Username: "eve", Role: session.RoleOperator}},
		},
		Cartes:   seedCartes(),
		TokenTTL: time.Hour,
	})
	require.NoError(t, err)
	return stub
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTimer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Fire runs the callback as the runtime would, even when stopped, so tests can
// reproduce a timer that fired just before Stop.
func (t *fakeTimer) Fire() {
	t.fn()
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (f *fakeTimers) afterFunc(d time.Duration, fn func()) stopper {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{delay: d, fn: fn}
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeTimers) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *fakeTimers) Last() *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.timers) == 0 {
		return nil
	}
	return f.timers[len(f.timers)-1]
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) Of(typ EventType) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type sleepLog struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepLog) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type harness struct {
	client  *Client
	storage *session.MemoryStorage
	clock   *fakeClock
	timers  *fakeTimers
	events  *eventLog
	sleeps  *sleepLog
}

// newHarness builds a client against handler with inline event delivery, a fixed
// clock, recorded timers and instant sleeps.
func newHarness(t *testing.T, handler http.Handler, mutate ...func(*Builder)) *harness {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return newHarnessURL(t, srv.URL, session.NewMemoryStorage(), mutate...)
}

func newHarnessURL(t *testing.T, baseURL string, storage *session.MemoryStorage, mutate ...func(*Builder)) *harness {
	t.Helper()
	h := &harness{
		storage: storage,
		clock:   &fakeClock{now: time.Now()},
		timers:  &fakeTimers{},
		events:  &eventLog{},
		sleeps:  &sleepLog{},
	}

	cfg := DefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.API.Timeout = 5 * time.Second
	cfg.Events.Async = false
	cfg.Metrics.EnableLatencyHistograms = true

	b := New().WithConfig(cfg).WithStorage(storage).withClock(h.clock.Now)
	for _, m := range mutate {
		m(b)
	}
	c, err := b.Build()
	require.NoError(t, err)
	c.afterFunc = h.timers.afterFunc
	c.sleep = h.sleeps.sleep
	c.Subscribe(h.events.record)
	t.Cleanup(func() { _ = c.Close() })

	h.client = c
	return h
}

func (h *harness) login(t *testing.T, username string) *User {
	t.Helper()
	u, err := h.client.Login(context.Background(), username, testPassword)
	require.NoError(t, err)
	return u
}
