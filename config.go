package goCartes

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goCartes/session"
)

// Config is the complete client configuration.
//
// Config instances are resolved once at startup and then treated as immutable.
type Config struct {
	API        APIConfig
	App        AppConfig
	Session    SessionConfig
	Cache      CacheConfig
	Retry      RetryConfig
	Statistics StatisticsConfig
	Import     ImportConfig
	Events     EventsConfig
	Metrics    MetricsConfig
	Tracing    TracingConfig
}

/*
====================================
API CONFIG
====================================
*/

// Profile selects the default request timeout.
type Profile string

const (
	ProfileDevelopment Profile = "development"
	ProfileDefault     Profile = "default"
	ProfileProduction  Profile = "production"
)

// Timeout returns the request timeout associated with p.
func (p Profile) Timeout() time.Duration {
	switch p {
	case ProfileDevelopment:
		return 30 * time.Second
	case ProfileProduction:
		return 10 * time.Second
	default:
		return 20 * time.Second
	}
}

func (p Profile) valid() bool {
	switch p {
	case ProfileDevelopment, ProfileDefault, ProfileProduction:
		return true
	}
	return false
}

// APIConfig locates the backend.
type APIConfig struct {
	// BaseURL is the backend origin; the /api prefix is added by the client.
	BaseURL string
	// Timeout overrides the profile timeout when > 0.
	Timeout time.Duration
	Profile Profile
	// Debug logs every request and response at debug level.
	Debug bool
}

// EffectiveTimeout returns Timeout, or the profile timeout when Timeout is unset.
func (c APIConfig) EffectiveTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return c.Profile.Timeout()
}

// AppConfig identifies the client to the backend.
type AppConfig struct {
	Name    string
	Version string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls credential storage and refresh scheduling.
type SessionConfig struct {
	TokenKey string
	UserKey  string
	// RefreshLead is how long before expiry the refresh fires.
	RefreshLead time.Duration
	// MinRefreshDelay floors the refresh delay for short-lived tokens.
	MinRefreshDelay time.Duration
	// ValidateOnRestore checks a restored session against the backend.
	ValidateOnRestore bool
	// RedisPrefix and RedisTTL apply when the Builder receives a Redis client.
	RedisPrefix string
	RedisTTL    time.Duration
}

/*
====================================
READ PATH CONFIG
====================================
*/

type CacheConfig struct {
	TTL time.Duration
}

type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
}

// StatisticsConfig controls the forced recomputation path.
type StatisticsConfig struct {
	// SettleDelay is the wait between POST /statistiques/refresh and the re-read.
	SettleDelay time.Duration
}

// ImportConfig bounds accepted spreadsheet uploads.
type ImportConfig struct {
	MaxFileSize       int64
	AllowedExtensions []string
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// EventsConfig controls notification delivery.
type EventsConfig struct {
	Async      bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// TracingConfig enables otelhttp spans on backend requests. Endpoint is the OTLP
// gRPC collector used by binaries that install a tracer provider; empty means the
// global provider is left alone.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	Insecure    bool
}

/*
====================================
DEFAULTS
====================================
*/

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://localhost:3000",
			Profile: ProfileDefault,
		},
		App: AppConfig{
			Name:    "goCartes",
			Version: "1.0.0",
		},
		Session: SessionConfig{
			TokenKey:          session.DefaultTokenKey,
			UserKey:           session.DefaultUserKey,
			RefreshLead:       300 * time.Second,
			MinRefreshDelay:   5 * time.Second,
			ValidateOnRestore: true,
			RedisPrefix:       "cartes",
		},
		Cache: CacheConfig{
			TTL: 5 * time.Minute,
		},
		Retry: RetryConfig{
			Attempts:  3,
			BaseDelay: time.Second,
		},
		Statistics: StatisticsConfig{
			SettleDelay: time.Second,
		},
		Import: ImportConfig{
			MaxFileSize:       10 << 20,
			AllowedExtensions: []string{".xlsx", ".xls"},
		},
		Events: EventsConfig{
			Async:      true,
			BufferSize: 64,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Tracing: TracingConfig{
			ServiceName: "gocartes",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Import.AllowedExtensions = append([]string(nil), cfg.Import.AllowedExtensions...)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	// API
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("API BaseURL is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("API BaseURL must be an absolute http(s) URL")
	}
	if c.API.Timeout < 0 {
		return errors.New("API Timeout must be >= 0")
	}
	if !c.API.Profile.valid() {
		return errors.New("API Profile must be development, default or production")
	}

	// App
	if strings.TrimSpace(c.App.Name) == "" {
		return errors.New("App Name is required")
	}

	// Session
	if c.Session.TokenKey == "" || c.Session.UserKey == "" {
		return errors.New("Session TokenKey and UserKey are required")
	}
	if c.Session.TokenKey == c.Session.UserKey {
		return errors.New("Session TokenKey and UserKey must differ")
	}
	if c.Session.RefreshLead < 0 {
		return errors.New("Session RefreshLead must be >= 0")
	}
	if c.Session.MinRefreshDelay <= 0 {
		return errors.New("Session MinRefreshDelay must be > 0")
	}
	if c.Session.RedisTTL < 0 {
		return errors.New("Session RedisTTL must be >= 0")
	}

	// Read path
	if c.Cache.TTL <= 0 {
		return errors.New("Cache TTL must be > 0")
	}
	if c.Retry.Attempts < 1 || c.Retry.Attempts > 10 {
		return errors.New("Retry Attempts must be between 1 and 10")
	}
	if c.Retry.BaseDelay < 0 {
		return errors.New("Retry BaseDelay must be >= 0")
	}
	if c.Statistics.SettleDelay < 0 {
		return errors.New("Statistics SettleDelay must be >= 0")
	}
	if c.Import.MaxFileSize <= 0 {
		return errors.New("Import MaxFileSize must be > 0")
	}
	if len(c.Import.AllowedExtensions) == 0 {
		return errors.New("Import AllowedExtensions must not be empty")
	}
	for _, ext := range c.Import.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			return errors.New("Import AllowedExtensions entries must start with a dot")
		}
	}

	// Observability
	if c.Events.Async && c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be > 0 when Async is true")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}
	if c.Tracing.Enabled && strings.TrimSpace(c.Tracing.ServiceName) == "" {
		return errors.New("Tracing ServiceName is required when tracing is enabled")
	}

	return nil
}
