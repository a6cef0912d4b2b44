// Package retry provides exponential backoff retry logic for transient failures.
//
// The upstream REST client retries 5xx and network failures; the KV mirror
// retries storage writes. Errors that will fail again (404s, decode errors)
// are wrapped with NonRetryable or rejected by Config.Retryable:
//
//	cfg := retry.DefaultConfig()
//	cfg.Retryable = errors.IsTransient
//	rec, err := retry.DoWithResult(ctx, cfg, func() (*record.Record, error) {
//	    return c.fetchRecord(ctx, url)
//	})
package retry
