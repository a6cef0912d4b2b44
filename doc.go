// Package recordcache is a data-provisioning layer between consumers and a
// REST record backend.
//
// Records fetched from the backend are normalized into a keyed store: every
// spanning record gets its own slot, and nested values are replaced by links.
// Writes to an existing slot go through a version-aware merge (package record):
//
//   - equal or unknown versions union their fields
//   - a newer version that knows every field of the older one replaces it
//   - otherwise the newer version wins, fields only the older version knew are
//     kept as pending, and a background refetch is scheduled for them
//
// Layout:
//
//	record/          record model, cache keys, version comparator, merger
//	store/           generic slot store over pkg/cache
//	ingest/          serialized ingestion pipeline and snapshot reads
//	bridge/          name to id bridging caches
//	adapter/         GetRecord, name-bridged dataset/template adapters, refetcher
//	upstream/        REST client
//	storage/         persistence store abstraction and the NATS KV mirror
//	natsclient/      NATS connection management and KV wrapper
//	gateway/         HTTP API
//	config/          layered JSON/YAML configuration
//	health/          /healthz aggregation
//	metric/          Prometheus registry and core metrics
//	errors/          classified errors
//	pkg/             cache, worker pool, retry and TLS helpers
//	cmd/recordcache  server binary
package recordcache
