// Package upstream is the REST client for the record and wave endpoints.
package upstream

import (
	"context"
	stderrors "errors"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360/recordcache/errors"
	"github.com/c360/recordcache/metric"
	"github.com/c360/recordcache/pkg/retry"
	"github.com/c360/recordcache/pkg/tlsutil"
	"github.com/c360/recordcache/record"
	"github.com/c360/recordcache/wave"
)

// Endpoint labels used in logs and metrics.
const (
	EndpointRecords   = "records"
	EndpointDatasets  = "datasets"
	EndpointTemplates = "templates"
)

// RequestIDHeader carries a per-request id to the upstream.
const RequestIDHeader = "X-Request-ID"

// Config configures the upstream client.
type Config struct {
	BaseURL      string
	APIVersion   string
	Token        string
	Timeout      time.Duration
	MaxBodyBytes int64
	Retry        retry.Config
	TLS          tlsutil.ClientConfig
}

// DefaultConfig returns defaults for everything except BaseURL and Token.
func DefaultConfig() Config {
	return Config{
		APIVersion:   "v60.0",
		Timeout:      30 * time.Second,
		MaxBodyBytes: 8 << 20,
		Retry:        retry.DefaultConfig(),
	}
}

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Endpoint string
	Status   int
	Message  string
	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

// RetryDelay lets the retry loop wait as long as the server asked.
func (e *StatusError) RetryDelay() time.Duration {
	return e.RetryAfter
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream %s: HTTP %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("upstream %s: HTTP %d: %s", e.Endpoint, e.Status, e.Message)
}

// Unwrap maps the status onto the package sentinels.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return errors.ErrRecordNotFound
	case e.Status == http.StatusTooManyRequests:
		return errors.ErrRateLimited
	default:
		return errors.ErrUpstreamStatus
	}
}

// Client fetches records, datasets and templates.
type Client struct {
	baseURL    *url.URL
	apiVersion string
	token      string
	maxBody    int64
	retry      retry.Config
	http       *http.Client
	metrics    *metric.Metrics
	logger     *slog.Logger
}

// New creates a client. metrics may be nil.
func New(cfg Config, metrics *metric.Metrics, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "upstream", "New", "base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "upstream", "New",
			fmt.Sprintf("invalid base URL %q", cfg.BaseURL))
	}

	defaults := DefaultConfig()
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaults.APIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = defaults.Retry
	}
	cfg.Retry.Retryable = errors.IsTransient

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if base.Scheme == "https" {
		tlsConfig, err := tlsutil.LoadClientTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		httpClient.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    base,
		apiVersion: cfg.APIVersion,
		token:      cfg.Token,
		maxBody:    cfg.MaxBodyBytes,
		retry:      cfg.Retry,
		http:       httpClient,
		metrics:    metrics,
		logger:     logger.With("component", "upstream"),
	}, nil
}

// GetRecord fetches one record. Fields are qualified field names.
func (c *Client) GetRecord(ctx context.Context, id string, fields, optionalFields []string) (*record.Record, error) {
	query := url.Values{}
	if len(fields) > 0 {
		query.Set("fields", strings.Join(fields, ","))
	}
	if len(optionalFields) > 0 {
		query.Set("optionalFields", strings.Join(optionalFields, ","))
	}

	var out record.Record
	if err := c.get(ctx, EndpointRecords, "ui-api/records/"+url.PathEscape(id), query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetDataset fetches a dataset by id or developer name.
func (c *Client) GetDataset(ctx context.Context, idOrName string) (*wave.Dataset, error) {
	var out wave.Dataset
	if err := c.get(ctx, EndpointDatasets, "wave/datasets/"+url.PathEscape(idOrName), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTemplate fetches a template by id or developer name.
func (c *Client) GetTemplate(ctx context.Context, idOrName string) (*wave.Template, error) {
	var out wave.Template
	if err := c.get(ctx, EndpointTemplates, "wave/templates/"+url.PathEscape(idOrName), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	target := fmt.Sprintf("%s/services/data/%s/%s", c.baseURL.String(), c.apiVersion, path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	err := retry.Do(ctx, c.retry, func() error {
		return c.attempt(ctx, endpoint, target, out)
	})
	if err != nil {
		c.metrics.RecordError("upstream", errors.Classify(err).String())
		return err
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, endpoint, target string, out any) error {
	requestID := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return retry.NonRetryable(errors.WrapInvalid(err, "upstream", endpoint, "build request"))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordUpstream(endpoint, "error", time.Since(start))
		c.logger.Debug("upstream request failed", "endpoint", endpoint, "request_id", requestID, "error", err)
		return errors.WrapTransient(err, "upstream", endpoint, "send request")
	}
	defer resp.Body.Close()
	c.metrics.RecordUpstream(endpoint, statusClass(resp.StatusCode), time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return errors.WrapTransient(err, "upstream", endpoint, "read body")
	}
	if int64(len(body)) > c.maxBody {
		return retry.NonRetryable(errors.WrapInvalid(errors.ErrInvalidData, "upstream", endpoint,
			fmt.Sprintf("response exceeds %d bytes", c.maxBody)))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{
			Endpoint:   endpoint,
			Status:     resp.StatusCode,
			Message:    errorMessage(body),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
		c.logger.Debug("upstream returned error status",
			"endpoint", endpoint, "request_id", requestID, "status", resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return errors.WrapTransient(statusErr, "upstream", endpoint, "request")
		}
		return retry.NonRetryable(errors.WrapInvalid(statusErr, "upstream", endpoint, "request"))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return retry.NonRetryable(errors.WrapInvalid(err, "upstream", endpoint, "decode response"))
	}
	return nil
}

// errorMessage extracts the first message from a UI API error body:
// [{"errorCode":"NOT_FOUND","message":"..."}] or {"message":"..."}.
func errorMessage(body []byte) string {
	var list []struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &list) == nil && len(list) > 0 {
		return list[0].Message
	}
	var single struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &single) == nil {
		return single.Message
	}
	return ""
}

// retryAfter parses the delay-seconds form of Retry-After.
func retryAfter(value string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func statusClass(status int) string {
	return fmt.Sprintf("%dxx", status/100)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var statusErr *StatusError
	if stderrors.As(err, &statusErr) {
		return statusErr.Status
	}
	return 0
}
