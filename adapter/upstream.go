package adapter

import (
	"context"
	"net/http"

	"github.com/c360/recordcache/errors"
	"github.com/c360/recordcache/record"
	"github.com/c360/recordcache/store"
	"github.com/c360/recordcache/upstream"
	"github.com/c360/recordcache/wave"
)

// RecordFetcher fetches a record by id.
type RecordFetcher interface {
	GetRecord(ctx context.Context, id string, fields, optionalFields []string) (*record.Record, error)
}

// Upstream is every fetch the adapters need.
type Upstream interface {
	RecordFetcher
	GetDataset(ctx context.Context, idOrName string) (*wave.Dataset, error)
	GetTemplate(ctx context.Context, idOrName string) (*wave.Template, error)
}

var _ Upstream = (*upstream.Client)(nil)

// errorFromEntry turns a stored error slot back into an error.
func errorFromEntry(component string, entry *store.ErrorEntry) error {
	statusErr := &upstream.StatusError{Endpoint: component, Status: entry.Status, Message: entry.Message}
	return errors.WrapInvalid(statusErr, component, "Get", "cached error")
}

// isNotFound reports whether err is an upstream 404.
func isNotFound(err error) bool {
	return upstream.StatusOf(err) == http.StatusNotFound
}
