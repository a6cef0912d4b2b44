package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/recordcache/adapter"
	"github.com/c360/recordcache/errors"
	"github.com/c360/recordcache/health"
	"github.com/c360/recordcache/ingest"
	"github.com/c360/recordcache/metric"
	"github.com/c360/recordcache/record"
	"github.com/c360/recordcache/upstream"
	"github.com/c360/recordcache/wave"
)

// Service is the part of adapter.Service the gateway serves.
type Service interface {
	GetRecord(ctx context.Context, cfg adapter.GetRecordConfig) (ingest.Snapshot, error)
	GetDataset(ctx context.Context, idOrName string) (*wave.Dataset, error)
	GetTemplate(ctx context.Context, idOrName string) (*wave.Template, error)
	Reset() error
	Stats() adapter.Stats
}

var _ Service = (*adapter.Service)(nil)

// HandlerDeps are the collaborators of a Handler. Service and Logger are
// required.
type HandlerDeps struct {
	Service         Service
	Health          *health.Monitor
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
	// RequestTimeout bounds each request's upstream work; zero means none.
	RequestTimeout time.Duration
}

// Handler routes gateway requests.
type Handler struct {
	mux      *http.ServeMux
	service  Service
	health   *health.Monitor
	metrics  *metric.Metrics
	logger   *slog.Logger
	timeout  time.Duration
	started  time.Time
	requests RequestStats
}

// RequestStats counts served requests.
type RequestStats struct {
	Total   atomic.Uint64
	Success atomic.Uint64
	Failed  atomic.Uint64
}

// RecordResponse is the body of a record read.
type RecordResponse struct {
	Key           string         `json:"key"`
	State         string         `json:"state"`
	Record        *record.Record `json:"record,omitempty"`
	PendingFields []string       `json:"pendingFields,omitempty"`
	AbsentFields  []string       `json:"absentFields,omitempty"`
}

// StatsResponse is the body of /cache/stats.
type StatsResponse struct {
	adapter.Stats
	Gateway GatewayStats `json:"gateway"`
}

// GatewayStats reports request counters.
type GatewayStats struct {
	Requests      uint64  `json:"requests"`
	Succeeded     uint64  `json:"succeeded"`
	Failed        uint64  `json:"failed"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// NewHandler builds the router.
func NewHandler(deps HandlerDeps) (*Handler, error) {
	if deps.Service == nil {
		return nil, errors.WrapInvalid(nil, "Gateway", "NewHandler", "service is required")
	}
	if deps.Logger == nil {
		return nil, errors.WrapInvalid(nil, "Gateway", "NewHandler", "logger is required")
	}

	h := &Handler{
		mux:     http.NewServeMux(),
		service: deps.Service,
		health:  deps.Health,
		logger:  deps.Logger.With("component", "gateway"),
		timeout: deps.RequestTimeout,
		started: time.Now(),
	}
	if deps.MetricsRegistry != nil {
		h.metrics = deps.MetricsRegistry.CoreMetrics()
		h.mux.Handle("GET /metrics", deps.MetricsRegistry.Handler())
	}

	h.route("GET /records/{id}", h.handleRecord)
	h.route("GET /datasets/{idOrName}", h.handleDataset)
	h.route("GET /templates/{idOrName}", h.handleTemplate)
	h.route("GET /cache/stats", h.handleStats)
	h.route("POST /cache/reset", h.handleReset)
	h.route("GET /healthz", h.handleHealth)
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Stats returns the request counters.
func (h *Handler) Stats() GatewayStats {
	return GatewayStats{
		Requests:      h.requests.Total.Load(),
		Succeeded:     h.requests.Success.Load(),
		Failed:        h.requests.Failed.Load(),
		UptimeSeconds: time.Since(h.started).Seconds(),
	}
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) int

// route wraps fn with request ids, timeouts, counters and access logging.
func (h *Handler) route(pattern string, fn handlerFunc) {
	h.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := getOrGenerateRequestID(r)
		w.Header().Set("X-Request-ID", requestID)

		ctx := r.Context()
		if h.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.timeout)
			defer cancel()
		}

		h.requests.Total.Add(1)
		code := fn(w, r.WithContext(ctx))
		if code >= 400 {
			h.requests.Failed.Add(1)
		} else {
			h.requests.Success.Add(1)
		}
		h.metrics.RecordRequest(pattern, code, time.Since(start))
		h.logger.Debug("request served",
			"request_id", requestID, "method", r.Method, "path", r.URL.Path,
			"status", code, "duration", time.Since(start))
	})
}

// getOrGenerateRequestID extracts the request ID from headers or generates one.
func getOrGenerateRequestID(r *http.Request) string {
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		return reqID
	}
	return uuid.NewString()
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) int {
	query := r.URL.Query()
	cfg := adapter.GetRecordConfig{
		RecordID:       r.PathValue("id"),
		Fields:         splitList(query["fields"]),
		OptionalFields: splitList(query["optionalFields"]),
	}

	snap, err := h.service.GetRecord(r.Context(), cfg)
	if err != nil {
		return h.writeError(w, r, err)
	}

	switch snap.State {
	case ingest.StateError:
		status := snap.Error.Status
		if status < 400 {
			status = http.StatusBadGateway
		}
		return writeJSON(w, status, errorResponse{Error: http.StatusText(status), Status: status})
	case ingest.StateMissing:
		return writeJSON(w, http.StatusNotFound, errorResponse{Error: "resource not found", Status: http.StatusNotFound})
	}

	return writeJSON(w, http.StatusOK, RecordResponse{
		Key:           snap.Key,
		State:         snap.State.String(),
		Record:        snap.Data,
		PendingFields: snap.PendingFields,
		AbsentFields:  snap.AbsentFields,
	})
}

func (h *Handler) handleDataset(w http.ResponseWriter, r *http.Request) int {
	ds, err := h.service.GetDataset(r.Context(), r.PathValue("idOrName"))
	if err != nil {
		return h.writeError(w, r, err)
	}
	return writeJSON(w, http.StatusOK, ds)
}

func (h *Handler) handleTemplate(w http.ResponseWriter, r *http.Request) int {
	tpl, err := h.service.GetTemplate(r.Context(), r.PathValue("idOrName"))
	if err != nil {
		return h.writeError(w, r, err)
	}
	return writeJSON(w, http.StatusOK, tpl)
}

func (h *Handler) handleStats(w http.ResponseWriter, _ *http.Request) int {
	return writeJSON(w, http.StatusOK, StatsResponse{Stats: h.service.Stats(), Gateway: h.Stats()})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) int {
	if err := h.service.Reset(); err != nil {
		return h.writeError(w, r, err)
	}
	w.WriteHeader(http.StatusNoContent)
	return http.StatusNoContent
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) int {
	if h.health == nil {
		return writeJSON(w, http.StatusOK, health.NewHealthy("recordcache", "no checks registered"))
	}
	status := h.health.Check(r.Context(), "recordcache")
	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	return writeJSON(w, code, status)
}

// splitList accepts repeated and comma separated query values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// writeError logs err in full and writes a sanitized body.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) int {
	code := mapErrorToHTTPStatus(err)
	if code >= 500 {
		h.logger.Warn("request failed", "path", r.URL.Path, "status", code, "error", err)
	} else {
		h.logger.Debug("request rejected", "path", r.URL.Path, "status", code, "error", err)
	}
	return writeJSON(w, code, errorResponse{Error: sanitizeError(code), Status: code})
}

// mapErrorToHTTPStatus maps classified errors to HTTP status codes
func mapErrorToHTTPStatus(err error) int {
	if upstream.StatusOf(err) == http.StatusNotFound || stderrors.Is(err, errors.ErrRecordNotFound) {
		return http.StatusNotFound
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if stderrors.Is(err, errors.ErrUpstreamStatus) {
		return http.StatusBadGateway
	}
	switch errors.Classify(err) {
	case errors.ErrorInvalid:
		return http.StatusBadRequest
	case errors.ErrorTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// sanitizeError returns a safe error message for external clients
func sanitizeError(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "invalid request"
	case http.StatusNotFound:
		return "resource not found"
	case http.StatusGatewayTimeout:
		return "request timeout"
	case http.StatusServiceUnavailable:
		return "service temporarily unavailable"
	case http.StatusBadGateway:
		return "upstream error"
	default:
		return "internal server error"
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
	return code
}
