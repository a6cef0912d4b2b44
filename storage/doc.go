// Package storage defines the byte-oriented key-value backend used to persist
// merged records outside the process.
//
// Store keeps the backend contract small: Put, Get, List and Delete. Memory is
// an in-process implementation; kvmirror.BucketStore adapts a NATS JetStream
// key-value bucket. Cache keys contain characters NATS does not allow in KV
// keys, so callers pass them through EncodeKey first.
package storage
