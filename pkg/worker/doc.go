// Package worker provides a bounded, generic worker pool.
//
// The pool backs the background refetch dispatcher and the asynchronous
// persistence mirror. Work is submitted without blocking: when the queue is
// full Submit returns ErrQueueFull and the item is counted as dropped.
//
//	pool := worker.NewPool(4, 256, func(ctx context.Context, intent record.FetchIntent) error {
//		return refetch(ctx, intent)
//	}, worker.WithErrorHandler[record.FetchIntent](func(intent record.FetchIntent, err error) {
//		logger.Warn("refetch failed", "record_id", intent.RecordID, "error", err)
//	}))
//	if err := pool.Start(ctx); err != nil {
//		return err
//	}
//	defer pool.Stop(5 * time.Second)
//
// Processing errors never stop a worker; they are counted and handed to the
// optional error handler.
package worker
