package goCartes

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"sigs.k8s.io/yaml"
)

// Environment variables read by [ConfigFromEnv].
const (
	EnvAPIURL     = "CARTES_API_URL"
	EnvTimeout    = "CARTES_TIMEOUT"
	EnvProfile    = "CARTES_PROFILE"
	EnvDebug      = "CARTES_DEBUG"
	EnvAppName    = "CARTES_APP_NAME"
	EnvAppVersion = "CARTES_APP_VERSION"
	EnvMetrics    = "CARTES_METRICS"
	EnvTracing    = "CARTES_TRACING"

	EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPInsecure = "OTEL_EXPORTER_OTLP_INSECURE"
)

type envMapping struct {
	EnvKey string
	Setter func(*Config, string) error
}

func buildEnvMappings() []envMapping {
	return []envMapping{
		{EnvAPIURL, func(c *Config, v string) error {
			c.API.BaseURL = strings.TrimRight(v, "/")
			return nil
		}},
		{EnvProfile, func(c *Config, v string) error {
			p := Profile(strings.ToLower(strings.TrimSpace(v)))
			if !p.valid() {
				return fmt.Errorf("unknown profile %q", v)
			}
			c.API.Profile = p
			return nil
		}},
		{EnvTimeout, func(c *Config, v string) error {
			d, err := parseTimeout(v)
			if err != nil {
				return err
			}
			c.API.Timeout = d
			return nil
		}},
		{EnvDebug, func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			c.API.Debug = b
			return err
		}},
		{EnvAppName, func(c *Config, v string) error {
			c.App.Name = v
			return nil
		}},
		{EnvAppVersion, func(c *Config, v string) error {
			c.App.Version = v
			return nil
		}},
		{EnvMetrics, func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			c.Metrics.Enabled = b
			return err
		}},
		{EnvTracing, func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			c.Tracing.Enabled = b
			return err
		}},
		{EnvOTLPEndpoint, func(c *Config, v string) error {
			c.Tracing.Endpoint = strings.TrimSpace(v)
			return nil
		}},
		{EnvOTLPInsecure, func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			c.Tracing.Insecure = b
			return err
		}},
	}
}

// parseTimeout accepts a Go duration ("15s") or a bare number of milliseconds.
func parseTimeout(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("negative timeout %q", v)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", v, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative timeout %q", v)
	}
	return d, nil
}

// ConfigFromEnv starts from the defaults, loads envFile (or ./.env when envFile is
// empty and the file exists) and applies the CARTES_* variables. Variables already
// set in the process environment win over the file.
func ConfigFromEnv(envFile string) (Config, error) {
	cfg := defaultConfig()
	if err := loadEnvFile(envFile); err != nil {
		return cfg, err
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadEnvFile(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) error {
	for _, mapping := range buildEnvMappings() {
		if val := os.Getenv(mapping.EnvKey); val != "" {
			if err := mapping.Setter(cfg, val); err != nil {
				return fmt.Errorf("failed to set %s: %w", mapping.EnvKey, err)
			}
		}
	}
	return nil
}

// fileConfig is the YAML shape of a config file. Durations are Go duration strings.
type fileConfig struct {
	API struct {
		BaseURL string `json:"baseURL"`
		Timeout string `json:"timeout"`
		Profile string `json:"profile"`
		Debug   *bool  `json:"debug"`
	} `json:"api"`
	App struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"app"`
	Session struct {
		TokenKey          string `json:"tokenKey"`
		UserKey           string `json:"userKey"`
		RefreshLead       string `json:"refreshLead"`
		MinRefreshDelay   string `json:"minRefreshDelay"`
		ValidateOnRestore *bool  `json:"validateOnRestore"`
		RedisPrefix       string `json:"redisPrefix"`
		RedisTTL          string `json:"redisTTL"`
	} `json:"session"`
	Cache struct {
		TTL string `json:"ttl"`
	} `json:"cache"`
	Retry struct {
		Attempts  int    `json:"attempts"`
		BaseDelay string `json:"baseDelay"`
	} `json:"retry"`
	Statistics struct {
		SettleDelay string `json:"settleDelay"`
	} `json:"statistics"`
	Import struct {
		MaxFileSize       int64    `json:"maxFileSize"`
		AllowedExtensions []string `json:"allowedExtensions"`
	} `json:"import"`
	Events struct {
		Async      *bool `json:"async"`
		BufferSize int   `json:"bufferSize"`
		DropIfFull *bool `json:"dropIfFull"`
	} `json:"events"`
	Metrics struct {
		Enabled                 *bool `json:"enabled"`
		EnableLatencyHistograms *bool `json:"enableLatencyHistograms"`
	} `json:"metrics"`
	Tracing struct {
		Enabled     *bool  `json:"enabled"`
		ServiceName string `json:"serviceName"`
		Endpoint    string `json:"endpoint"`
		Insecure    *bool  `json:"insecure"`
	} `json:"tracing"`
}

// LoadConfigFile reads a YAML file over the defaults. Absent fields keep their
// default values.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfigYAML(data)
}

// ParseConfigYAML is [LoadConfigFile] on an in-memory document.
func ParseConfigYAML(data []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.UnmarshalStrict(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg := defaultConfig()
	var errs []error
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setBool := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	setDuration := func(dst *time.Duration, field, v string) {
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		*dst = d
	}

	setString(&cfg.API.BaseURL, fc.API.BaseURL)
	setDuration(&cfg.API.Timeout, "api.timeout", fc.API.Timeout)
	if fc.API.Profile != "" {
		cfg.API.Profile = Profile(strings.ToLower(fc.API.Profile))
	}
	setBool(&cfg.API.Debug, fc.API.Debug)

	setString(&cfg.App.Name, fc.App.Name)
	setString(&cfg.App.Version, fc.App.Version)

	setString(&cfg.Session.TokenKey, fc.Session.TokenKey)
	setString(&cfg.Session.UserKey, fc.Session.UserKey)
	setDuration(&cfg.Session.RefreshLead, "session.refreshLead", fc.Session.RefreshLead)
	setDuration(&cfg.Session.MinRefreshDelay, "session.minRefreshDelay", fc.Session.MinRefreshDelay)
	setBool(&cfg.Session.ValidateOnRestore, fc.Session.ValidateOnRestore)
	setString(&cfg.Session.RedisPrefix, fc.Session.RedisPrefix)
	setDuration(&cfg.Session.RedisTTL, "session.redisTTL", fc.Session.RedisTTL)

	setDuration(&cfg.Cache.TTL, "cache.ttl", fc.Cache.TTL)
	if fc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = fc.Retry.Attempts
	}
	setDuration(&cfg.Retry.BaseDelay, "retry.baseDelay", fc.Retry.BaseDelay)
	setDuration(&cfg.Statistics.SettleDelay, "statistics.settleDelay", fc.Statistics.SettleDelay)
	if fc.Import.MaxFileSize != 0 {
		cfg.Import.MaxFileSize = fc.Import.MaxFileSize
	}
	if len(fc.Import.AllowedExtensions) > 0 {
		cfg.Import.AllowedExtensions = fc.Import.AllowedExtensions
	}

	setBool(&cfg.Events.Async, fc.Events.Async)
	if fc.Events.BufferSize != 0 {
		cfg.Events.BufferSize = fc.Events.BufferSize
	}
	setBool(&cfg.Events.DropIfFull, fc.Events.DropIfFull)
	setBool(&cfg.Metrics.Enabled, fc.Metrics.Enabled)
	setBool(&cfg.Metrics.EnableLatencyHistograms, fc.Metrics.EnableLatencyHistograms)
	setBool(&cfg.Tracing.Enabled, fc.Tracing.Enabled)
	setString(&cfg.Tracing.ServiceName, fc.Tracing.ServiceName)
	setString(&cfg.Tracing.Endpoint, fc.Tracing.Endpoint)
	setBool(&cfg.Tracing.Insecure, fc.Tracing.Insecure)

	if len(errs) > 0 {
		return Config{}, errs[0]
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
