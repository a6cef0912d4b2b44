package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/recordcache/errors"
	"github.com/c360/recordcache/metric"
)

// ConnectionStatus is the lifecycle state of the mirror connection.
type ConnectionStatus int32

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrCircuitOpen  = errors.ErrCircuitOpen
)

// Status is a point-in-time view of the connection for health checks.
type Status struct {
	Status          ConnectionStatus
	FailureCount    int32
	LastFailureTime time.Time
	Backoff         time.Duration
	RTT             time.Duration
}

// Client owns one NATS connection and its JetStream context for the record
// mirror. Repeated connect or bucket failures trip a circuit breaker; while it
// is open Connect and KeyValue fail fast with ErrCircuitOpen.
type Client struct {
	url    string
	logger *slog.Logger
	status atomic.Int32

	// Options, fixed after NewClient.
	circuitThreshold int32
	maxBackoff       time.Duration
	maxReconnects    int
	reconnectWait    time.Duration
	timeout          time.Duration
	drainTimeout     time.Duration
	auth             Auth
	tlsOpt           nats.Option
	clientName       string
	metrics          *metric.Metrics
	onHealthChange   func(bool)

	breaker *breaker

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream

	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient prepares a client for url, a comma separated server list. It
// does not connect.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:              url,
		logger:           slog.Default(),
		circuitThreshold: 5,
		maxBackoff:       time.Minute,
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
		timeout:          5 * time.Second,
		drainTimeout:     30 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	c.logger = c.logger.With("component", "natsclient")
	c.breaker = newBreaker(c.circuitThreshold, c.maxBackoff)
	return c, nil
}

// URL returns the configured server list.
func (m *Client) URL() string {
	return m.url
}

// Status returns the current connection status.
func (m *Client) Status() ConnectionStatus {
	return ConnectionStatus(m.status.Load())
}

func (m *Client) setStatus(s ConnectionStatus) {
	m.status.Store(int32(s))
}

// IsHealthy reports whether the connection is up.
func (m *Client) IsHealthy() bool {
	return m.Status() == StatusConnected
}

// Failures returns the failures since the last success.
func (m *Client) Failures() int32 {
	return m.breaker.failures()
}

// Backoff returns how long the circuit stays open the next time it trips.
func (m *Client) Backoff() time.Duration {
	return m.breaker.currentBackoff()
}

// Snapshot returns the connection status with breaker state and RTT.
func (m *Client) Snapshot() Status {
	s := Status{
		Status:          m.Status(),
		FailureCount:    m.breaker.failures(),
		LastFailureTime: m.breaker.last(),
		Backoff:         m.breaker.currentBackoff(),
	}
	if rtt, err := m.RTT(); err == nil {
		s.RTT = rtt
	}
	return s
}

func (m *Client) recordFailure() {
	trip, wait, total := m.breaker.fail(time.Now())
	if !trip {
		return
	}
	current := m.Status()
	if current == StatusCircuitOpen {
		m.logger.Warn("circuit breaker still open", "backoff", m.breaker.currentBackoff())
		return
	}
	if m.status.CompareAndSwap(int32(current), int32(StatusCircuitOpen)) {
		m.logger.Warn("circuit breaker opened", "failures", total, "backoff", wait)
		m.notifyHealth(false)
		time.AfterFunc(wait, m.halfOpen)
	}
}

func (m *Client) resetCircuit() {
	m.breaker.reset()
	m.status.CompareAndSwap(int32(StatusCircuitOpen), int32(StatusDisconnected))
}

// halfOpen lets the next Connect through once the backoff has elapsed.
func (m *Client) halfOpen() {
	if m.status.CompareAndSwap(int32(StatusCircuitOpen), int32(StatusDisconnected)) {
		m.logger.Debug("circuit breaker half-open")
	}
}

// Open connects and waits up to settle for the connection to report healthy.
// Any failure closes the client, so a failed Open leaves nothing to clean up.
func (m *Client) Open(ctx context.Context, settle time.Duration) error {
	if err := m.Connect(ctx); err != nil {
		_ = m.Close(ctx)
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, settle)
	defer cancel()
	if err := m.WaitForConnection(waitCtx); err != nil {
		_ = m.Close(ctx)
		return err
	}
	return nil
}

// WaitForConnection blocks until the client is connected or ctx is done.
func (m *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if m.IsHealthy() {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.WrapTransient(ctx.Err(), "Client", "WaitForConnection", "wait for connection")
		case <-ticker.C:
		}
	}
}

func (m *Client) connectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(m.maxReconnects),
		nats.ReconnectWait(m.reconnectWait),
		nats.PingInterval(30 * time.Second),
		nats.Timeout(m.timeout),
		nats.DrainTimeout(m.drainTimeout),
		nats.DisconnectErrHandler(m.handleDisconnect),
		nats.ReconnectHandler(m.handleReconnect),
		nats.ClosedHandler(m.handleClosed),
		nats.ErrorHandler(m.handleError),
	}
	if auth := m.auth.option(); auth != nil {
		opts = append(opts, auth)
	}
	if m.tlsOpt != nil {
		opts = append(opts, m.tlsOpt)
	}
	if m.clientName != "" {
		opts = append(opts, nats.Name(m.clientName))
	}
	return opts
}

// dial connects in the background so ctx can abandon a slow handshake. An
// abandoned connection is closed when it eventually arrives.
func (m *Client) dial(ctx context.Context) (*nats.Conn, error) {
	type dialed struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan dialed, 1)
	go func() {
		conn, err := nats.Connect(m.url, m.connectionOptions()...)
		done <- dialed{conn, err}
	}()

	select {
	case d := <-done:
		return d.conn, d.err
	case <-ctx.Done():
		go func() {
			if late := <-done; late.conn != nil {
				late.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Connect dials the servers and sets up JetStream.
func (m *Client) Connect(ctx context.Context) error {
	if m.Status() == StatusCircuitOpen {
		return ErrCircuitOpen
	}
	m.setStatus(StatusConnecting)
	m.logger.Info("connecting to NATS", "url", m.url)

	conn, err := m.dial(ctx)
	var js jetstream.JetStream
	if err == nil {
		if js, err = jetstream.New(conn); err != nil {
			conn.Close()
		}
	}
	if err != nil {
		m.recordFailure()
		if m.Status() == StatusCircuitOpen {
			return ErrCircuitOpen
		}
		m.setStatus(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "establish connection")
	}

	m.mu.Lock()
	m.conn, m.js = conn, js
	m.mu.Unlock()

	m.setStatus(StatusConnected)
	m.resetCircuit()
	m.logger.Info("connected to NATS", "url", m.url)
	m.notifyHealth(true)
	return nil
}

// Close drains and closes the connection. Later calls are no-ops.
func (m *Client) Close(ctx context.Context) error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	if m.closed.Swap(true) {
		return nil
	}

	m.mu.Lock()
	conn := m.conn
	m.conn, m.js = nil, nil
	m.auth = Auth{}
	m.mu.Unlock()

	defer m.setStatus(StatusDisconnected)
	if conn == nil {
		return nil
	}
	defer conn.Close()

	timeout := m.drainTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, max(time.Until(deadline), 0))
	}
	drained := make(chan error, 1)
	go func() { drained <- conn.Drain() }()

	select {
	case err := <-drained:
		return errors.Wrap(err, "Client", "Close", "drain connection")
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("drain timeout after %v", timeout), "Client", "Close", "drain connection")
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "Client", "Close", "drain connection")
	}
}

// RTT returns the round-trip time to the connected server.
func (m *Client) RTT() (time.Duration, error) {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil || !conn.IsConnected() {
		return 0, ErrNotConnected
	}
	return conn.RTT()
}

// JetStream returns the JetStream context of the current connection.
func (m *Client) JetStream() (jetstream.JetStream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.js == nil {
		return nil, ErrNotConnected
	}
	return m.js, nil
}

// KeyValue opens the bucket named in cfg, creating it when it does not exist.
func (m *Client) KeyValue(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	if m.Status() == StatusCircuitOpen {
		return nil, ErrCircuitOpen
	}
	js, err := m.JetStream()
	if err != nil {
		return nil, err
	}

	bucket, err := js.KeyValue(ctx, cfg.Bucket)
	if stderrors.Is(err, jetstream.ErrBucketNotFound) {
		bucket, err = js.CreateKeyValue(ctx, cfg)
		if stderrors.Is(err, jetstream.ErrBucketExists) {
			bucket, err = js.KeyValue(ctx, cfg.Bucket)
		} else if err == nil {
			m.logger.Info("created KV bucket", "bucket", cfg.Bucket)
		}
	}
	if err != nil {
		m.recordFailure()
		return nil, errors.WrapTransient(err, "Client", "KeyValue", "open bucket "+cfg.Bucket)
	}
	m.resetCircuit()
	return bucket, nil
}

// DeleteKeyValue removes a bucket; a missing bucket is not an error.
func (m *Client) DeleteKeyValue(ctx context.Context, name string) error {
	js, err := m.JetStream()
	if err != nil {
		return err
	}
	if err := js.DeleteKeyValue(ctx, name); err != nil && !stderrors.Is(err, jetstream.ErrBucketNotFound) {
		return errors.WrapTransient(err, "Client", "DeleteKeyValue", "delete bucket "+name)
	}
	return nil
}

func (m *Client) notifyHealth(healthy bool) {
	m.metrics.SetMirrorConnected(healthy)
	if m.onHealthChange != nil {
		go m.onHealthChange(healthy)
	}
}

func (m *Client) handleDisconnect(_ *nats.Conn, err error) {
	if m.closed.Load() {
		return
	}
	m.setStatus(StatusReconnecting)
	m.logger.Warn("NATS disconnected", "error", err)
	m.notifyHealth(false)
}

func (m *Client) handleReconnect(_ *nats.Conn) {
	m.setStatus(StatusConnected)
	m.resetCircuit()
	m.logger.Info("NATS reconnected")
	m.notifyHealth(true)
}

func (m *Client) handleClosed(_ *nats.Conn) {
	m.setStatus(StatusDisconnected)
	m.notifyHealth(false)
}

func (m *Client) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	m.logger.Error("NATS error", "error", err)
}
