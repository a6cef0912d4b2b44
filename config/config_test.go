package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/recordcache/errors"
	"github.com/c360/recordcache/pkg/cache"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestLoader(env map[string]string) *Loader {
	l := NewLoader()
	l.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return l
}

func TestDefault_RequiresUpstream(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, err.Error(), "upstream.base_url")

	cfg.Upstream.BaseURL = "https://example.my.salesforce.com"
	assert.NoError(t, cfg.Validate())
}

func TestLoader_JSONLayer(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "base.json", `{
		"upstream": {"base_url": "https://api.example.com", "timeout": "10s", "max_attempts": 5},
		"stores": {"records": {"enabled": true, "strategy": "lru", "max_size": 500}, "error_ttl": "1d"},
		"merge": {"supported_entities": ["Account", "Opportunity"]}
	}`)

	l := newTestLoader(nil)
	l.EnableValidation(true)
	cfg, err := l.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.Upstream.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Upstream.Timeout.Std())
	assert.Equal(t, 24*time.Hour, cfg.Stores.ErrorTTL.Std())
	assert.Equal(t, cache.StrategyLRU, cfg.Stores.Records.Strategy)
	assert.Equal(t, 500, cfg.Stores.Records.MaxSize)
	// Untouched sections keep their defaults.
	assert.Equal(t, cache.StrategySimple, cfg.Stores.Datasets.Strategy)
	assert.Equal(t, Default().Refetch, cfg.Refetch)
	assert.Equal(t, ":8080", cfg.Gateway.Addr)

	up := cfg.UpstreamClientConfig()
	assert.Equal(t, 10*time.Second, up.Timeout)
	assert.Equal(t, 5, up.Retry.MaxAttempts)

	ad := cfg.AdapterConfig()
	assert.Equal(t, []string{"Account", "Opportunity"}, ad.Ingest.SupportedEntities)
	assert.Equal(t, 24*time.Hour, ad.ErrorTTL)
	assert.Equal(t, 500, ad.Records.MaxSize)
	assert.Equal(t, 50*time.Second, ad.FetchTimeout, "upstream timeout times attempts")
}

func TestLoader_YAMLOverridesJSON(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.json", `{
		"upstream": {"base_url": "https://api.example.com"},
		"refetch": {"workers": 2, "queue_size": 64, "rate_per_second": 5, "burst": 1}
	}`)
	override := writeFile(t, dir, "prod.yaml", `
refetch:
  workers: 8
mirror:
  enabled: true
  urls: ["nats://nats-1:4222", "nats://nats-2:4222"]
  bucket: records_prod
  write_timeout: 2s
  reconnect_wait: 3s
logging:
  level: debug
  format: text
`)

	l := newTestLoader(nil)
	l.AddLayer(base)
	l.AddLayer(override)
	l.EnableValidation(true)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Refetch.Workers)
	assert.Equal(t, 64, cfg.Refetch.QueueSize, "deep merge keeps sibling keys from the base layer")
	assert.True(t, cfg.Mirror.Enabled)
	assert.Equal(t, []string{"nats://nats-1:4222", "nats://nats-2:4222"}, cfg.Mirror.URLs)
	assert.Equal(t, 3*time.Second, cfg.Mirror.ReconnectWait.Std())
	assert.Equal(t, 2*time.Second, cfg.MirrorWriterConfig().WriteTimeout)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoader_SchemaRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.json", `{"upstream": {"base_url": "https://x", "retries": 3}}`)

	_, err := newTestLoader(nil).LoadFile(path)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, err.Error(), "retries")
}

func TestLoader_SchemaRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"strategy": `{"stores": {"records": {"strategy": "ttl"}}}`,
		"duration": `{"upstream": {"timeout": "soon"}}`,
		"workers":  `{"refetch": {"workers": 0}}`,
		"level":    `{"logging": {"level": "trace"}}`,
		"bucket":   `{"mirror": {"bucket": "has.dot"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "cfg.json", body)
			_, err := newTestLoader(nil).LoadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestLoader_EnvOverrides(t *testing.T) {
	path := writeFile(t, t.TempDir(), "cfg.json", `{"upstream": {"base_url": "https://file.example.com"}}`)
	l := newTestLoader(map[string]string{
		"RECORDCACHE_UPSTREAM_BASE_URL": "https://env.example.com",
		"RECORDCACHE_UPSTREAM_TOKEN":    "secret",
		"RECORDCACHE_MIRROR_ENABLED":    "true",
		"RECORDCACHE_MIRROR_URLS":       "nats://a:4222,nats://b:4222",
		"RECORDCACHE_LOG_LEVEL":         "warn",
	})
	l.EnableValidation(true)
	cfg, err := l.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.Upstream.BaseURL)
	assert.Equal(t, "secret", cfg.Upstream.Token)
	assert.True(t, cfg.Mirror.Enabled)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.Mirror.URLs)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoader_EnvBoolMustParse(t *testing.T) {
	l := newTestLoader(map[string]string{"RECORDCACHE_MIRROR_ENABLED": "sometimes"})
	_, err := l.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RECORDCACHE_MIRROR_ENABLED")
}

func TestLoader_RejectsUnsupportedExtension(t *testing.T) {
	path := writeFile(t, t.TempDir(), "cfg.toml", `upstream = {}`)
	_, err := newTestLoader(nil).LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON or YAML")
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte("upstream:\n  base_url: https://api.example.com\n"), true)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.Upstream.BaseURL)

	_, err = Parse([]byte(`{"upstream": {"base_url": "not a url"}}`), false)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Upstream.BaseURL = "https://api.example.com"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative base url", func(c *Config) { c.Upstream.BaseURL = "/services" }, "absolute URL"},
		{"lru without size", func(c *Config) { c.Stores.Templates = cache.Config{Enabled: true, Strategy: cache.StrategyLRU} }, "stores.templates"},
		{"mirror without bucket", func(c *Config) { c.Mirror.Enabled = true; c.Mirror.Bucket = "" }, "mirror.bucket"},
		{"mirror without urls", func(c *Config) { c.Mirror.Enabled = true; c.Mirror.URLs = nil }, "mirror.urls"},
		{"gateway tls without cert", func(c *Config) { c.Gateway.TLS.Enabled = true }, "cert_file"},
		{"bad tls version", func(c *Config) { c.Upstream.TLS.MinVersion = "1.0" }, "min_version"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"no refetch workers", func(c *Config) { c.Refetch.Workers = 0 }, "refetch.workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDuration_JSON(t *testing.T) {
	var v struct {
		A Duration `json:"a"`
		B Duration `json:"b"`
		C Duration `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": "90s", "b": "14d", "c": 1000}`), &v))
	assert.Equal(t, 90*time.Second, v.A.Std())
	assert.Equal(t, 14*24*time.Hour, v.B.Std())
	assert.Equal(t, time.Microsecond, v.C.Std())

	out, err := json.Marshal(v.A)
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`"fortnight"`), &v.A))
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Upstream.Token = "s3cr3t-value"
	cfg.Mirror.Password = "pw"

	red := cfg.Redacted()
	assert.Equal(t, "***", red.Upstream.Token)
	assert.Equal(t, "***", red.Mirror.Password)
	assert.Empty(t, red.Mirror.Token)
	assert.Equal(t, "s3cr3t-value", cfg.Upstream.Token, "original untouched")
	assert.NotContains(t, cfg.String(), "s3cr3t-value")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, "WARN", lvl.String())

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}
