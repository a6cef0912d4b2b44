package natsclient

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const natsImage = "nats:2.11.7-alpine"

// TestClient pairs a throwaway JetStream server container with a Client
// already connected to it.
type TestClient struct {
	Client *Client
	URL    string
}

// TestOption adjusts NewTestClient.
type TestOption func(*testClientConfig)

type testClientConfig struct {
	buckets []string
	startup time.Duration
}

// WithKVBuckets creates the named buckets before the test starts.
func WithKVBuckets(names ...string) TestOption {
	return func(c *testClientConfig) { c.buckets = append(c.buckets, names...) }
}

// NewTestClient fails t when docker or the server is unavailable. Everything
// it starts is torn down through t.Cleanup.
func NewTestClient(t testing.TB, opts ...TestOption) *TestClient {
	t.Helper()
	cfg := testClientConfig{startup: 30 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()
	url := startServer(ctx, t, cfg.startup)

	client, err := NewClient(url,
		WithTimeout(5*time.Second),
		WithReconnect(0, 0),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("natsclient: %v", err)
	}
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Connect(dialCtx); err != nil {
		t.Fatalf("natsclient: connect %s: %v", url, err)
	}
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	tc := &TestClient{Client: client, URL: url}
	for _, name := range cfg.buckets {
		if _, err := tc.CreateKVBucket(ctx, name); err != nil {
			t.Fatalf("natsclient: bucket %s: %v", name, err)
		}
	}
	return tc
}

func startServer(ctx context.Context, t testing.TB, startup time.Duration) string {
	t.Helper()
	server, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        natsImage,
			ExposedPorts: []string{"4222/tcp", "8222/tcp"},
			Cmd:          []string{"-js", "-m", "8222"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("4222/tcp"),
				wait.ForHTTP("/healthz").WithPort("8222/tcp"),
			).WithDeadline(startup),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("natsclient: start %s: %v", natsImage, err)
	}
	t.Cleanup(func() { _ = server.Terminate(context.Background()) })

	host, err := server.Host(ctx)
	if err != nil {
		t.Fatalf("natsclient: container host: %v", err)
	}
	port, err := server.MappedPort(ctx, "4222/tcp")
	if err != nil {
		t.Fatalf("natsclient: container port: %v", err)
	}
	return "nats://" + net.JoinHostPort(host, port.Port())
}

// CreateKVBucket opens name, creating it with default settings if needed.
func (tc *TestClient) CreateKVBucket(ctx context.Context, name string) (jetstream.KeyValue, error) {
	return tc.Client.KeyValue(ctx, jetstream.KeyValueConfig{Bucket: name})
}
