package modular

import (
	"fmt"
	"time"
)

// HealthStatus is the aggregated health of a registered module.
type HealthStatus int

const (
	// HealthStatusUnknown means no check has run yet.
	HealthStatusUnknown HealthStatus = iota
	HealthStatusHealthy
	HealthStatusDegraded
	HealthStatusUnhealthy
)

// String returns the lower-case name of the status.
func (s HealthStatus) String() string {
	switch s {
	case HealthStatusHealthy:
		return "healthy"
	case HealthStatusDegraded:
		return "degraded"
	case HealthStatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// IsHealthy returns true if the status represents a healthy state.
func (s HealthStatus) IsHealthy() bool {
	return s == HealthStatusHealthy
}

// MarshalText encodes the status by name.
func (s HealthStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *HealthStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "healthy":
		*s = HealthStatusHealthy
	case "degraded":
		*s = HealthStatusDegraded
	case "unhealthy":
		*s = HealthStatusUnhealthy
	case "unknown", "":
		*s = HealthStatusUnknown
	default:
		return fmt.Errorf("%w: unknown health status %q", ErrHealthCheckFailure, text)
	}
	return nil
}

// Severity ranks the impact of a failing check.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// CheckResult is the outcome of one health probe.
type CheckResult struct {
	Passed    bool          `json:"passed"`
	Severity  Severity      `json:"severity"`
	Message   string        `json:"message,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
	Duration  time.Duration `json:"duration"`
}

// AggregateHealth applies the severity policy: any failed error-severity
// check is unhealthy, else any failed warning is degraded, else healthy.
func AggregateHealth(results map[string]CheckResult) HealthStatus {
	degraded := false
	for _, r := range results {
		if r.Passed {
			continue
		}
		switch r.Severity {
		case SeverityError:
			return HealthStatusUnhealthy
		case SeverityWarning:
			degraded = true
		}
	}
	if degraded {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}
