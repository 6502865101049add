package goCartes

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/MrEthical07/goCartes/api"
	"github.com/MrEthical07/goCartes/cache"
	"github.com/MrEthical07/goCartes/internal/events"
	"github.com/MrEthical07/goCartes/internal/flows"
	"github.com/MrEthical07/goCartes/permission"
	"github.com/MrEthical07/goCartes/session"
	"github.com/rs/zerolog"
)

// stopper is the part of *time.Timer the refresh schedule uses.
type stopper interface {
	Stop() bool
}

func realAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// Client is the admin-side API client: session lifecycle, cached reads and card
// management. Methods are safe to call from multiple goroutines.
type Client struct {
	config  Config
	logger  zerolog.Logger
	api     *api.Client
	store   *session.Store
	cache   *cache.Cache
	roles   *permission.RoleManager
	metrics *Metrics
	fanout  *events.Fanout
	events  *events.Dispatcher
	flows   flows.Deps

	now       func() time.Time
	afterFunc func(time.Duration, func()) stopper
	sleep     func(context.Context, time.Duration) error

	// lifecycle is canceled by Close; background refreshes run under it.
	lifecycle context.Context
	cancel    context.CancelFunc

	mu sync.Mutex
	// current is nil when no operator is logged in.
	current *session.Session
	// generation changes on every login, logout, restore and expiry. A refresh
	// started under an older generation must not touch the session.
	generation uint64
	timer      stopper
	refreshAt  time.Time
	closed     bool
}

// Config returns a copy of the resolved configuration.
func (c *Client) Config() Config {
	return cloneConfig(c.config)
}

// BaseURL is the API root every path is resolved against, /api included.
func (c *Client) BaseURL() string {
	return c.api.BaseURL()
}

// MetricsSnapshot copies the in-process counters.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// EventsDropped counts events lost because the delivery buffer was full.
func (c *Client) EventsDropped() uint64 {
	return c.events.Dropped()
}

// Subscribe registers fn for every session event. The returned function removes it
// and can be called more than once.
func (c *Client) Subscribe(fn func(Event)) func() {
	return c.fanout.Subscribe(fn)
}

// Close stops the refresh schedule and flushes pending events. Persisted
// credentials are kept for the next [Client.Initialize].
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.generation++
	c.stopTimerLocked()
	c.mu.Unlock()

	c.cancel()
	c.events.Close()
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = c.now()
	}
	if event.Err != nil && event.Error == "" {
		event.Error = api.Message(event.Err)
	}
	c.events.Emit(context.WithoutCancel(ctx), event)
}

/*
====================================
REQUEST HOOKS
====================================
*/

// handleUnauthorized ends the session after a 401 on an authenticated request.
// Concurrent 401s for the same token end it once; a 401 for a token that has
// already been replaced is ignored.
func (c *Client) handleUnauthorized(ctx context.Context, sentToken string, apiErr *api.Error) {
	c.mu.Lock()
	if c.current == nil || (sentToken != "" && sentToken != c.current.Token) {
		c.mu.Unlock()
		return
	}
	user := c.current.User
	clearErr := c.endSessionLocked(context.WithoutCancel(ctx))
	c.mu.Unlock()

	if clearErr != nil {
		c.logger.Error().Err(clearErr).Msg("clear credentials after 401")
	}
	c.cache.InvalidateAll()
	c.metrics.Inc(MetricSessionExpired)
	c.emit(ctx, Event{
		Type:   EventSessionExpired,
		Reason: events.ReasonUnauthorized,
		User:   user,
		Err:    apiErr,
	})
}

func (c *Client) handleForbidden(ctx context.Context, apiErr *api.Error) {
	c.metrics.Inc(MetricPermissionDenied)
	c.emit(ctx, Event{Type: EventPermissionDenied, User: c.CurrentUser(), Err: apiErr})
}

func (c *Client) handleNetworkError(ctx context.Context, apiErr *api.Error) {
	c.metrics.Inc(MetricNetworkError)
	c.emit(ctx, Event{Type: EventNetworkError, Err: apiErr})
}

func (c *Client) handleTimeout(ctx context.Context, apiErr *api.Error) {
	c.metrics.Inc(MetricTimeout)
	c.emit(ctx, Event{Type: EventTimeout, Err: apiErr})
}

func (c *Client) observeResponse(method, path string, status int, elapsed time.Duration) {
	c.metrics.Inc(MetricRequest)
	c.metrics.Observe(MetricRequestLatency, elapsed)
	if status == 0 || (status >= 400 && status != http.StatusNotFound) {
		c.metrics.Inc(MetricRequestFailure)
	}
}

// retryPolicy is the configured policy with the client's sleep and metrics.
func (c *Client) retryPolicy() api.RetryPolicy {
	return api.RetryPolicy{
		Attempts:  c.config.Retry.Attempts,
		BaseDelay: c.config.Retry.BaseDelay,
		Sleep:     c.sleep,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			c.metrics.Inc(MetricRetry)
			c.logger.Debug().Int("attempt", attempt).Dur("delay", delay).Err(err).Msg("retrying request")
		},
	}
}
