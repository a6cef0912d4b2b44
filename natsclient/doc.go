// Package natsclient manages a NATS connection for the record mirror.
//
// Client wraps nats.Connect with a circuit breaker: after a configurable number
// of consecutive failures the circuit opens and Connect and KeyValue fail fast
// with ErrCircuitOpen until an exponential backoff elapses. Connection state is
// reported through an optional health callback and the mirror_connected gauge.
//
// KVStore adds per-operation timeouts, value size limits and retries on top of
// a JetStream key-value bucket:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//		natsclient.WithLogger(logger),
//		natsclient.WithMetrics(registry.CoreMetrics()))
//	if err != nil {
//		return err
//	}
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	bucket, err := client.KeyValue(ctx, jetstream.KeyValueConfig{Bucket: "records"})
//	if err != nil {
//		return err
//	}
//	kv := client.NewKVStore(bucket)
//
// NewTestClient starts a JetStream-enabled server with testcontainers for
// tests tagged integration.
package natsclient
