// Package adapter exposes the typed read operations consumers call:
// GetRecord, and Get on the dataset and template adapters. Each adapter reads
// the store first and goes upstream only when the stored data cannot satisfy
// the request. Concurrent identical upstream fetches are collapsed into one.
//
// Merges that leave record fields pending produce fetch intents; the Refetcher
// runs them in the background on a rate-limited worker pool. A failed refetch
// leaves the fields pending until a later fetch succeeds.
package adapter
