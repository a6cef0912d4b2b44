// Package gateway exposes the record cache over HTTP.
//
// Routes:
//
//	GET  /records/{id}?fields=A.B,A.C&optionalFields=A.D
//	GET  /datasets/{idOrName}
//	GET  /templates/{idOrName}
//	GET  /cache/stats
//	POST /cache/reset
//	GET  /healthz
//	GET  /metrics
//
// Record reads answer with the snapshot state ("fulfilled", "pending",
// "unfulfilled") and the denormalized record. A stored upstream error is
// replayed with its original status. Every response carries an X-Request-ID,
// taken from the request when present.
//
// Error bodies never carry internal detail: invalid input maps to 400, a
// missing record to 404, transient failures to 503 (504 on timeouts) and
// other upstream failures to 502.
package gateway
