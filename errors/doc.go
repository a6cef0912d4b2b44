// Package errors provides standardized error handling for recordcache.
//
// # Overview
//
// Errors are sorted into three classes: Transient (temporary, retryable),
// Invalid (bad input, never retried) and Fatal (stop processing). The upstream
// client, the persistence mirror and the adapters use the class to decide
// whether to retry, to cache an error slot, or to give up.
//
// # Wrapping
//
// All wrapping follows "component.method: action failed: cause":
//
//	if err := kv.Put(ctx, key, data); err != nil {
//	    return errors.WrapTransient(err, "KVMirror", "Persist", "kv put")
//	}
//
// Classified errors keep errors.Is/errors.As working through the chain:
//
//	if errors.Is(err, errors.ErrRecordNotFound) {
//	    // cache the 404 as an error slot
//	}
//
// # Validation
//
// WrapInvalid accepts a nil cause and still returns an error, so validation
// code can report a failure without inventing a cause:
//
//	if id == "" {
//	    return errors.WrapInvalid(nil, "Records", "GetRecord", "record id is required")
//	}
package errors
