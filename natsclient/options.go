package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/recordcache/metric"
	"github.com/c360/recordcache/pkg/tlsutil"
)

// ClientOption configures a Client in NewClient.
type ClientOption func(*Client) error

// Auth holds mirror credentials. A token wins over username and password.
type Auth struct {
	Token    string
	Username string
	Password string
}

func (a Auth) option() nats.Option {
	switch {
	case a.Token != "":
		return nats.Token(a.Token)
	case a.Username != "" && a.Password != "":
		return nats.UserInfo(a.Username, a.Password)
	}
	return nil
}

// WithAuth sets the credentials presented on connect.
func WithAuth(a Auth) ClientOption {
	return func(c *Client) error {
		c.auth = a
		return nil
	}
}

// WithTLS builds the TLS settings from the shared client TLS config.
func WithTLS(cfg tlsutil.ClientConfig) ClientOption {
	return func(c *Client) error {
		tlsConfig, err := tlsutil.LoadClientTLSConfig(cfg)
		if err != nil {
			return err
		}
		c.tlsOpt = nats.Secure(tlsConfig)
		return nil
	}
}

// WithReconnect sets the reconnect budget, -1 for unlimited, and the pause
// between attempts. A zero wait keeps the default.
func WithReconnect(maxAttempts int, wait time.Duration) ClientOption {
	return func(c *Client) error {
		if wait < 0 {
			return fmt.Errorf("reconnect wait cannot be negative, got %v", wait)
		}
		c.maxReconnects = maxAttempts
		if wait > 0 {
			c.reconnectWait = wait
		}
		return nil
	}
}

// WithCircuitBreaker opens the circuit every threshold consecutive failures and
// caps its doubling backoff at maxBackoff.
func WithCircuitBreaker(threshold int32, maxBackoff time.Duration) ClientOption {
	return func(c *Client) error {
		if threshold < 1 {
			return fmt.Errorf("circuit breaker threshold must be at least 1, got %d", threshold)
		}
		if maxBackoff < initialBackoff {
			return fmt.Errorf("max backoff must be at least %v, got %v", initialBackoff, maxBackoff)
		}
		c.circuitThreshold, c.maxBackoff = threshold, maxBackoff
		return nil
	}
}

// WithTimeout bounds the dial. WithDrainTimeout bounds Close.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.timeout = d
		return nil
	}
}

func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.drainTimeout = d
		return nil
	}
}

// WithName is the connection name the server shows in its monitoring.
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithLogger replaces slog.Default(). nil is ignored.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithMetrics drives the mirror_connected gauge.
func WithMetrics(metrics *metric.Metrics) ClientOption {
	return func(c *Client) error {
		c.metrics = metrics
		return nil
	}
}

// WithHealthChangeCallback observes every up/down transition.
func WithHealthChangeCallback(fn func(healthy bool)) ClientOption {
	return func(c *Client) error {
		c.onHealthChange = fn
		return nil
	}
}
