package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPaths     []string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ShowVersion     bool
	Validate        bool
}

type stringList []string

func (s *stringList) String() string { return fmt.Sprint([]string(*s)) }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// parseFlags parses args. Repeated --config flags are layered in order; the
// RECORDCACHE_CONFIG variable supplies the single default layer.
func parseFlags(args []string, stderr io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var paths stringList
	fs.Var(&paths, "config", "Path to a JSON or YAML configuration file, repeatable (env: RECORDCACHE_CONFIG)")
	fs.Var(&paths, "c", "Shorthand for --config")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("RECORDCACHE_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error; overrides the config file (env: RECORDCACHE_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("RECORDCACHE_LOG_FORMAT", ""),
		"Log format: json, text; overrides the config file (env: RECORDCACHE_LOG_FORMAT)")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("RECORDCACHE_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: RECORDCACHE_SHUTDOWN_TIMEOUT)")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.Validate, "validate",
		getEnvBool("RECORDCACHE_VALIDATE", false),
		"Validate configuration and exit")

	fs.Usage = func() { printDetailedHelp(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.ConfigPaths = paths
	if len(cfg.ConfigPaths) == 0 {
		if path := getEnv("RECORDCACHE_CONFIG", ""); path != "" {
			cfg.ConfigPaths = []string{path}
		}
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion {
		return nil
	}
	for _, path := range cfg.ConfigPaths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("config file not found: %s", path)
		}
	}
	if cfg.LogLevel != "" && !contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "" && !contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}
	return nil
}

func printDetailedHelp(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(w, `%s - normalized record cache in front of a REST backend

Usage: %s [options]

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Examples:
  # Run with a base config and an environment override layer
  %s --config=configs/base.yaml --config=configs/prod.json

  # Run with debug logging
  %s --config=configs/base.yaml --log-level=debug --log-format=text

  # Validate configuration only
  %s --config=configs/base.yaml --validate

Version: %s
Build: %s
`, appName, appName, appName, Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
