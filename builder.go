package goCartes

import (
	"context"
	"net/http"
	"time"

	"github.com/MrEthical07/goCartes/api"
	"github.com/MrEthical07/goCartes/cache"
	"github.com/MrEthical07/goCartes/internal/events"
	"github.com/MrEthical07/goCartes/internal/flows"
	"github.com/MrEthical07/goCartes/jwt"
	"github.com/MrEthical07/goCartes/permission"
	"github.com/MrEthical07/goCartes/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles a [Client].
//
// Builder instances are intended to be configured during initialization and then
// used once.
type Builder struct {
	config Config

	storage    session.Storage
	redis      redis.UniversalClient
	httpClient *http.Client
	logger     *zerolog.Logger
	eventSink  EventSink
	roles      *permission.RoleManager
	now        func() time.Time

	built bool
}

// New starts a Builder from [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBaseURL sets the backend origin.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.API.BaseURL = baseURL
	return b
}

// WithStorage sets where credentials persist. The default keeps them in memory.
func (b *Builder) WithStorage(storage session.Storage) *Builder {
	b.storage = storage
	return b
}

// WithRedis persists credentials in Redis under Config.Session.RedisPrefix. It is
// ignored when WithStorage is also used.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithHTTPClient sets the transport used for every request.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithEventSink receives every event after subscribers.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	return b
}

// WithRoles replaces [permission.DefaultPolicy].
func (b *Builder) WithRoles(roles *permission.RoleManager) *Builder {
	b.roles = roles
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// withClock sets the time source of expiry computations and the read cache.
func (b *Builder) withClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the client. A Builder can be built
// only once.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}
	logger = logger.With().Str("component", "gocartes").Logger()

	now := b.now
	if now == nil {
		now = time.Now
	}

	roles := b.roles
	if roles == nil {
		roles = permission.DefaultPolicy()
	}

	apiClient, err := api.New(api.Config{
		BaseURL:       cfg.API.BaseURL,
		Timeout:       cfg.API.EffectiveTimeout(),
		ClientName:    cfg.App.Name,
		ClientVersion: cfg.App.Version,
		Debug:         cfg.API.Debug,
		Tracing:       cfg.Tracing.Enabled,
		HTTPClient:    b.httpClient,
		Logger:        &logger,
	})
	if err != nil {
		return nil, err
	}

	storage := b.storage
	if storage == nil && b.redis != nil {
		storage = session.NewRedisStorage(b.redis, cfg.Session.RedisPrefix, cfg.Session.RedisTTL)
	}
	if storage == nil {
		storage = session.NewMemoryStorage()
	}
	store := session.NewStore(storage, cfg.Session.TokenKey, cfg.Session.UserKey)
	store.SetTokenSink(apiClient)

	metrics := NewMetrics(cfg.Metrics)

	readCache := cache.New(cache.Config{
		TTL: cfg.Cache.TTL,
		Now: now,
		Hooks: cache.Hooks{
			OnHit:  func(string) { metrics.Inc(MetricCacheHit) },
			OnMiss: func(string) { metrics.Inc(MetricCacheMiss) },
			OnInvalidate: func([]string) {
				metrics.Inc(MetricCacheInvalidation)
			},
		},
	})

	fanout := events.NewFanout()
	sinks := events.MultiSink{fanout, events.NewLogSink(logger)}
	if b.eventSink != nil {
		sinks = append(sinks, b.eventSink)
	}
	dispatcher := events.NewDispatcher(events.Config{
		Async:      cfg.Events.Async,
		BufferSize: cfg.Events.BufferSize,
		DropIfFull: cfg.Events.DropIfFull,
	}, sinks)

	lifecycle, cancel := context.WithCancel(context.Background())

	c := &Client{
		config:    cfg,
		logger:    logger,
		api:       apiClient,
		store:     store,
		cache:     readCache,
		roles:     roles,
		metrics:   metrics,
		fanout:    fanout,
		events:    dispatcher,
		now:       now,
		afterFunc: realAfterFunc,
		sleep:     api.Sleep,
		lifecycle: lifecycle,
		cancel:    cancel,
	}
	c.flows = flows.Deps{
		Login:   flows.LoginDeps{API: apiClient, Now: now, ExpiresIn: jwt.ExpiresIn},
		Logout:  flows.LogoutDeps{API: apiClient},
		Refresh: flows.RefreshDeps{API: apiClient, Now: now, ExpiresIn: jwt.ExpiresIn},
		Restore: flows.RestoreDeps{API: apiClient, Now: now, ExpiresIn: jwt.ExpiresIn},
	}
	apiClient.SetHooks(api.Hooks{
		OnUnauthorized: c.handleUnauthorized,
		OnForbidden:    c.handleForbidden,
		OnNetworkError: c.handleNetworkError,
		OnTimeout:      c.handleTimeout,
		OnResponse:     c.observeResponse,
	})

	b.built = true
	return c, nil
}
