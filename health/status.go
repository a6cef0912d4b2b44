package health

import (
	"regexp"
	"time"

	"github.com/c360/recordcache/errors"
)

// Status levels.
const (
	StateHealthy   = "healthy"
	StateDegraded  = "degraded"
	StateUnhealthy = "unhealthy"
)

// redactions are applied in order. URLs go first so their paths and ports
// are not rewritten piecemeal.
var redactions = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?:https?|nats|tls|wss?)://[^\s]+`), "[URL]"},
	{regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`), "[PATH]"},
	{regexp.MustCompile(`[A-Z]:\\[^:\s]+`), "[PATH]"},
	{regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`), "[IP]"},
	{regexp.MustCompile(`:\d{2,5}\b`), "[PORT]"},
	{regexp.MustCompile(`(?i)(?:password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`), "[REDACTED]"},
}

// Status represents the health status of a component or of the whole process.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics carries optional counters for a component.
type Metrics struct {
	Uptime     time.Duration `json:"uptime,omitempty"`
	ErrorCount int           `json:"error_count"`
	Entries    int           `json:"entries,omitempty"`
	QueueDepth int           `json:"queue_depth,omitempty"`
	Dropped    int64         `json:"dropped,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == StateHealthy
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == StateDegraded
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == StateUnhealthy
}

// WithMetrics returns a copy carrying metrics.
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// WithSubStatus returns a copy with subStatus appended.
func (s Status) WithSubStatus(subStatus Status) Status {
	newSubStatuses := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(newSubStatuses, s.SubStatuses)
	s.SubStatuses = append(newSubStatuses, subStatus)
	return s
}

// sanitizeErrorMessage strips URLs, paths, addresses and credentials so
// upstream or NATS errors can be exposed on an unauthenticated endpoint.
func sanitizeErrorMessage(msg string) string {
	for _, r := range redactions {
		msg = r.pattern.ReplaceAllString(msg, r.replacement)
	}
	return msg
}

// FromError maps the outcome of a check onto a Status: nil is healthy, a
// transient error is degraded and anything else is unhealthy. The message is
// sanitized.
func FromError(name string, err error, healthyMessage string) Status {
	switch {
	case err == nil:
		return NewHealthy(name, healthyMessage)
	case errors.IsTransient(err):
		return NewDegraded(name, sanitizeErrorMessage(err.Error()))
	default:
		return NewUnhealthy(name, sanitizeErrorMessage(err.Error()))
	}
}

func newStatus(component, state, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StateHealthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a healthy status.
func NewHealthy(component, message string) Status {
	return newStatus(component, StateHealthy, message)
}

// NewDegraded creates a degraded status.
func NewDegraded(component, message string) Status {
	return newStatus(component, StateDegraded, message)
}

// NewUnhealthy creates an unhealthy status.
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StateUnhealthy, message)
}

// Aggregate combines sub-statuses under component. The worst sub-status
// decides the result; no sub-statuses means healthy.
func Aggregate(component string, subStatuses []Status) Status {
	worst := StateHealthy
	for _, sub := range subStatuses {
		switch {
		case sub.IsUnhealthy():
			worst = StateUnhealthy
		case sub.IsDegraded() && worst == StateHealthy:
			worst = StateDegraded
		}
	}

	var message string
	switch {
	case len(subStatuses) == 0:
		message = "no components registered"
	case worst == StateUnhealthy:
		message = "one or more components are unhealthy"
	case worst == StateDegraded:
		message = "one or more components are degraded"
	default:
		message = "all components are healthy"
	}

	status := newStatus(component, worst, message)
	if len(subStatuses) > 0 {
		status.SubStatuses = append([]Status(nil), subStatuses...)
	}
	return status
}
