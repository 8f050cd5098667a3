package store

import (
	"context"
	"time"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
)

// Audit actions written by the registry.
const (
	ActionModuleRegistered   = "module_registered"
	ActionModuleDeregistered = "module_deregistered"
	ActionModuleEvicted      = "module_evicted"
	ActionRegistrationFailed = "module_registration_failed"
)

// AuditEntry is one audited action.
type AuditEntry struct {
	UserID       string         `json:"user_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Description  string         `json:"description"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// AuditSink records audit entries.
type AuditSink interface {
	LogAction(ctx context.Context, entry AuditEntry) error
}

// LoggerAuditSink writes audit entries to a logger.
type LoggerAuditSink struct {
	logger modular.Logger
}

// NewLoggerAuditSink returns a sink that logs at info level.
func NewLoggerAuditSink(logger modular.Logger) *LoggerAuditSink {
	if logger == nil {
		logger = modular.NopLogger{}
	}
	return &LoggerAuditSink{logger: logger}
}

func (s *LoggerAuditSink) LogAction(_ context.Context, e AuditEntry) error {
	s.logger.Info("Audit",
		"action", e.Action,
		"user", e.UserID,
		"resourceType", e.ResourceType,
		"resource", e.ResourceID,
		"description", e.Description,
		"metadata", e.Metadata,
	)
	return nil
}
