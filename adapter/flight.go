package adapter

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/c360/recordcache/errors"
)

// flight coalesces concurrent upstream calls for the same key. The shared
// call runs detached from every caller and is bounded by timeout, so one
// caller giving up never fails the others. Each caller waits on its own ctx.
type flight struct {
	group   singleflight.Group
	timeout time.Duration
}

func (f *flight) do(ctx context.Context, component, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := f.group.DoChan(key, func() (any, error) {
		shared := context.WithoutCancel(ctx)
		if f.timeout > 0 {
			var cancel context.CancelFunc
			shared, cancel = context.WithTimeout(shared, f.timeout)
			defer cancel()
		}
		return fn(shared)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, errors.WrapTransient(ctx.Err(), component, "Get", "wait for upstream")
	}
}
