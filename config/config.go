package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/c360/recordcache/adapter"
	"github.com/c360/recordcache/errors"
	"github.com/c360/recordcache/ingest"
	"github.com/c360/recordcache/pkg/cache"
	"github.com/c360/recordcache/pkg/retry"
	"github.com/c360/recordcache/pkg/tlsutil"
	"github.com/c360/recordcache/storage/kvmirror"
	"github.com/c360/recordcache/upstream"
)

// Config is the complete recordcache configuration.
type Config struct {
	Version  string         `json:"version,omitempty"`
	Upstream UpstreamConfig `json:"upstream"`
	Stores   StoresConfig   `json:"stores"`
	Merge    MergeConfig    `json:"merge"`
	Refetch  RefetchConfig  `json:"refetch"`
	Mirror   MirrorConfig   `json:"mirror"`
	Gateway  GatewayConfig  `json:"gateway"`
	Logging  LoggingConfig  `json:"logging"`
}

// UpstreamConfig points at the REST backend.
type UpstreamConfig struct {
	BaseURL      string               `json:"base_url"`
	APIVersion   string               `json:"api_version,omitempty"`
	Token        string               `json:"token,omitempty"`
	Timeout      Duration             `json:"timeout,omitempty"`
	MaxBodyBytes int64                `json:"max_body_bytes,omitempty"`
	MaxAttempts  int                  `json:"max_attempts,omitempty"`
	TLS          tlsutil.ClientConfig `json:"tls,omitempty"`
}

// StoresConfig sizes the normalized stores.
type StoresConfig struct {
	Records   cache.Config `json:"records"`
	Datasets  cache.Config `json:"datasets"`
	Templates cache.Config `json:"templates"`
	// ErrorTTL bounds how long a stored 404 is served; zero keeps it.
	ErrorTTL Duration `json:"error_ttl,omitempty"`
}

// MergeConfig tunes conflict resolution.
type MergeConfig struct {
	TrackedFieldDepth int      `json:"tracked_field_depth,omitempty"`
	SupportedEntities []string `json:"supported_entities,omitempty"`
}

// RefetchConfig sizes the background refetch pool.
type RefetchConfig struct {
	Workers       int     `json:"workers"`
	QueueSize     int     `json:"queue_size"`
	RatePerSecond float64 `json:"rate_per_second"`
	Burst         int     `json:"burst"`
}

// MirrorConfig enables persistence of merged records to NATS KV.
type MirrorConfig struct {
	Enabled      bool                 `json:"enabled"`
	URLs         []string             `json:"urls,omitempty"`
	Bucket       string               `json:"bucket,omitempty"`
	Username     string               `json:"username,omitempty"`
	Password     string               `json:"password,omitempty"`
	Token        string               `json:"token,omitempty"`
	TLS          *tlsutil.ClientConfig `json:"tls,omitempty"`
	QueueSize    int                  `json:"queue_size,omitempty"`
	WriteTimeout Duration             `json:"write_timeout,omitempty"`
	// ReconnectWait is the pause between NATS reconnect attempts.
	ReconnectWait Duration `json:"reconnect_wait,omitempty"`
	// Restore loads the mirrored records into the store at startup.
	Restore bool `json:"restore"`
}

// GatewayConfig configures the HTTP listener.
type GatewayConfig struct {
	Addr            string               `json:"addr"`
	ReadTimeout     Duration             `json:"read_timeout,omitempty"`
	WriteTimeout    Duration             `json:"write_timeout,omitempty"`
	ShutdownTimeout Duration             `json:"shutdown_timeout,omitempty"`
	TLS             tlsutil.ServerConfig `json:"tls,omitempty"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns the built-in configuration every file is layered onto.
func Default() *Config {
	up := upstream.DefaultConfig()
	ad := adapter.DefaultConfig()
	mirror := kvmirror.DefaultConfig()
	return &Config{
		Upstream: UpstreamConfig{
			APIVersion:   up.APIVersion,
			Timeout:      Duration(up.Timeout),
			MaxBodyBytes: up.MaxBodyBytes,
			MaxAttempts:  up.Retry.MaxAttempts,
		},
		Stores: StoresConfig{
			Records:   ad.Records,
			Datasets:  ad.Datasets,
			Templates: ad.Templates,
			ErrorTTL:  Duration(ad.ErrorTTL),
		},
		Refetch: RefetchConfig{
			Workers:       ad.Refetch.Workers,
			QueueSize:     ad.Refetch.QueueSize,
			RatePerSecond: ad.Refetch.RatePerSecond,
			Burst:         ad.Refetch.Burst,
		},
		Mirror: MirrorConfig{
			URLs:         []string{"nats://localhost:4222"},
			Bucket:       "recordcache",
			QueueSize:    mirror.QueueSize,
			WriteTimeout: Duration(mirror.WriteTimeout),
			Restore:      true,
		},
		Gateway: GatewayConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(60 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Validate checks cross-field constraints the schema cannot express.
func (c *Config) Validate() error {
	if c.Upstream.BaseURL == "" {
		return invalid("upstream.base_url is required")
	}
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return invalid(fmt.Sprintf("upstream.base_url %q is not an absolute URL", c.Upstream.BaseURL))
	}
	if err := validateTLSVersion(c.Upstream.TLS.MinVersion); err != nil {
		return invalid("upstream.tls.min_version: " + err.Error())
	}

	for name, store := range map[string]cache.Config{
		"records": c.Stores.Records, "datasets": c.Stores.Datasets, "templates": c.Stores.Templates,
	} {
		if err := store.Validate(); err != nil {
			return invalid(fmt.Sprintf("stores.%s: %v", name, err))
		}
	}

	if c.Refetch.Workers < 1 {
		return invalid("refetch.workers must be at least 1")
	}
	if c.Refetch.QueueSize < 1 {
		return invalid("refetch.queue_size must be at least 1")
	}

	if c.Mirror.Enabled {
		if len(c.Mirror.URLs) == 0 {
			return invalid("mirror.urls is required when the mirror is enabled")
		}
		if c.Mirror.Bucket == "" {
			return invalid("mirror.bucket is required when the mirror is enabled")
		}
	}

	if c.Gateway.Addr == "" {
		return invalid("gateway.addr is required")
	}
	if tls := c.Gateway.TLS; tls.Enabled {
		if tls.CertFile == "" || tls.KeyFile == "" {
			return invalid("gateway.tls.cert_file and key_file are required when TLS is enabled")
		}
		if err := validateTLSVersion(tls.MinVersion); err != nil {
			return invalid("gateway.tls.min_version: " + err.Error())
		}
	}

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return invalid(err.Error())
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return invalid(fmt.Sprintf("logging.format %q must be json or text", c.Logging.Format))
	}
	return nil
}

func invalid(msg string) error {
	return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate", msg)
}

// validateTLSVersion accepts an empty version or "1.2" / "1.3".
func validateTLSVersion(version string) error {
	switch version {
	case "", "1.2", "1.3":
		return nil
	default:
		return fmt.Errorf("invalid TLS version %q (must be \"1.2\" or \"1.3\")", version)
	}
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging.level %q must be debug, info, warn or error", level)
	}
}

// UpstreamClientConfig converts the upstream section into an upstream.Config.
func (c *Config) UpstreamClientConfig() upstream.Config {
	out := upstream.DefaultConfig()
	out.BaseURL = c.Upstream.BaseURL
	out.Token = c.Upstream.Token
	out.TLS = c.Upstream.TLS
	if c.Upstream.APIVersion != "" {
		out.APIVersion = c.Upstream.APIVersion
	}
	if c.Upstream.Timeout > 0 {
		out.Timeout = c.Upstream.Timeout.Std()
	}
	if c.Upstream.MaxBodyBytes > 0 {
		out.MaxBodyBytes = c.Upstream.MaxBodyBytes
	}
	if c.Upstream.MaxAttempts > 0 {
		out.Retry = retry.DefaultConfig()
		out.Retry.MaxAttempts = c.Upstream.MaxAttempts
	}
	return out
}

// AdapterConfig converts the store, merge and refetch sections.
func (c *Config) AdapterConfig() adapter.Config {
	up := c.UpstreamClientConfig()
	return adapter.Config{
		Records:   c.Stores.Records,
		Datasets:  c.Stores.Datasets,
		Templates: c.Stores.Templates,
		ErrorTTL:  c.Stores.ErrorTTL.Std(),
		// One coalesced fetch may spend every retry attempt.
		FetchTimeout: up.Timeout * time.Duration(max(up.Retry.MaxAttempts, 1)),
		Refetch: adapter.RefetchConfig{
			Workers:       c.Refetch.Workers,
			QueueSize:     c.Refetch.QueueSize,
			RatePerSecond: c.Refetch.RatePerSecond,
			Burst:         c.Refetch.Burst,
		},
		Ingest: ingest.Config{
			TrackedFieldDepth: c.Merge.TrackedFieldDepth,
			SupportedEntities: c.Merge.SupportedEntities,
		},
	}
}

// MirrorWriterConfig converts the mirror queue settings.
func (c *Config) MirrorWriterConfig() kvmirror.Config {
	return kvmirror.Config{QueueSize: c.Mirror.QueueSize, WriteTimeout: c.Mirror.WriteTimeout.Std()}
}

// Redacted returns a copy with credentials masked, for logging.
func (c *Config) Redacted() *Config {
	clone := c.Clone()
	mask := func(s *string) {
		if *s != "" {
			*s = "***"
		}
	}
	mask(&clone.Upstream.Token)
	mask(&clone.Mirror.Token)
	mask(&clone.Mirror.Password)
	return clone
}

// Clone deep-copies the configuration.
func (c *Config) Clone() *Config {
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// String returns an indented JSON rendering with credentials masked.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return string(data)
}
