package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/recordcache/errors"
)

// DefaultEnvPrefix prefixes the environment overrides.
const DefaultEnvPrefix = "RECORDCACHE"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPrefix: DefaultEnvPrefix,
		lookupEnv: os.LookupEnv,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables Config.Validate after loading
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges the defaults, every layer and the environment overrides.
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "load "+path)
		}
		merged = deepMergeMaps(merged, raw)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "encode merged config")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "decode merged config")
	}

	if err := l.applyEnvOverrides(&cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "apply environment")
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// Parse decodes a single JSON or YAML document onto the defaults without
// environment overrides, then validates it.
func Parse(data []byte, yamlFormat bool) (*Config, error) {
	raw, err := decodeLayer(data, yamlFormat)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "Parse", "decode document")
	}
	merged, err := toMap(Default())
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Parse", "encode defaults")
	}
	encoded, err := json.Marshal(deepMergeMaps(merged, raw))
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Parse", "encode merged config")
	}
	var cfg Config
	if err := json.Unmarshal(encoded, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Parse", "decode merged config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadRaw reads one layer file as a generic map checked against the schema.
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeLayer(data, formatOf(path) == formatYAML)
}

func decodeLayer(data []byte, yamlFormat bool) (map[string]any, error) {
	var raw map[string]any
	if yamlFormat {
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		// Round-trip through JSON so YAML and JSON layers share one shape.
		encoded, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("invalid YAML structure: %w", err)
		}
		data = encoded
	}
	if err := validateJSONDepth(data); err != nil {
		return nil, fmt.Errorf("invalid JSON structure: %w", err)
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	removeNilValues(raw)
	if err := validateDocument(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

func removeNilValues(m map[string]any) {
	for k, v := range m {
		if v == nil {
			delete(m, k)
		} else if nested, ok := v.(map[string]any); ok {
			removeNilValues(nested)
		}
	}
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	str := func(suffix string, dst *string) error {
		key := l.envPrefix + "_" + suffix
		val, ok := l.lookupEnv(key)
		if !ok || val == "" {
			return nil
		}
		if err := validateEnvVar(key, val); err != nil {
			return err
		}
		*dst = val
		return nil
	}
	boolean := func(suffix string, dst *bool) error {
		var raw string
		if err := str(suffix, &raw); err != nil || raw == "" {
			return err
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s_%s: %w", l.envPrefix, suffix, err)
		}
		*dst = v
		return nil
	}

	var urls string
	steps := []func() error{
		func() error { return str("UPSTREAM_BASE_URL", &cfg.Upstream.BaseURL) },
		func() error { return str("UPSTREAM_TOKEN", &cfg.Upstream.Token) },
		func() error { return str("UPSTREAM_API_VERSION", &cfg.Upstream.APIVersion) },
		func() error { return boolean("MIRROR_ENABLED", &cfg.Mirror.Enabled) },
		func() error { return str("MIRROR_URLS", &urls) },
		func() error { return str("MIRROR_BUCKET", &cfg.Mirror.Bucket) },
		func() error { return str("MIRROR_USERNAME", &cfg.Mirror.Username) },
		func() error { return str("MIRROR_PASSWORD", &cfg.Mirror.Password) },
		func() error { return str("MIRROR_TOKEN", &cfg.Mirror.Token) },
		func() error { return str("GATEWAY_ADDR", &cfg.Gateway.Addr) },
		func() error { return str("LOG_LEVEL", &cfg.Logging.Level) },
		func() error { return str("LOG_FORMAT", &cfg.Logging.Format) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	if urls != "" {
		cfg.Mirror.URLs = strings.Split(urls, ",")
	}
	return nil
}
