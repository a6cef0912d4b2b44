// Package config loads and validates recordcache configuration.
//
// A configuration is built in layers: the built-in defaults, then every file
// added with AddLayer (JSON or YAML, merged key by key so a later layer only
// replaces what it names), then RECORDCACHE_* environment variables. Each file
// is checked against the embedded JSON schema before it is merged, and
// Config.Validate enforces the cross-field rules afterwards.
//
// # Basic Usage
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.yaml")
//	loader.AddLayer("config/production.json") // Overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//	    return err
//	}
//	svc, err := adapter.NewService(cfg.AdapterConfig(), deps)
//
// Durations accept Go duration strings ("30s", "5m"), a day suffix ("14d")
// or integer nanoseconds.
//
// # Environment Overrides
//
//	RECORDCACHE_UPSTREAM_BASE_URL, RECORDCACHE_UPSTREAM_TOKEN,
//	RECORDCACHE_UPSTREAM_API_VERSION, RECORDCACHE_MIRROR_ENABLED,
//	RECORDCACHE_MIRROR_URLS (comma separated), RECORDCACHE_MIRROR_BUCKET,
//	RECORDCACHE_MIRROR_USERNAME, RECORDCACHE_MIRROR_PASSWORD,
//	RECORDCACHE_MIRROR_TOKEN, RECORDCACHE_GATEWAY_ADDR,
//	RECORDCACHE_LOG_LEVEL, RECORDCACHE_LOG_FORMAT
//
// # Security
//
// Config files are size limited, must be regular files, may not escape the
// working directory through relative parent references and must carry a
// .json, .yaml or .yml extension. Nesting depth is bounded.
package config
