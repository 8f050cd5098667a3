package registry

import (
	"time"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/validator"
)

// RegistrationRequest tracks one submitted registration until it is
// terminal.
type RegistrationRequest struct {
	RequestID         string                 `json:"request_id"`
	Metadata          modular.ModuleMetadata `json:"metadata"`
	RequesterID       string                 `json:"requester_id"`
	Status            modular.RequestState   `json:"status"`
	ValidationResults *validator.Results     `json:"validation_results,omitempty"`
	ErrorMessage      string                 `json:"error_message,omitempty"`
	AutoActivate      bool                   `json:"auto_activate"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`

	instance modular.Module
	done     chan struct{}
}

// RegistrationMetrics counts usage of a registered module.
type RegistrationMetrics struct {
	RegisteredAt       time.Time     `json:"registered_at"`
	LastAccessed       time.Time     `json:"last_accessed"`
	AccessCount        int64         `json:"access_count"`
	HealthChecks       int64         `json:"health_checks"`
	ProcessingDuration time.Duration `json:"processing_duration"`
}

// ModuleRegistration is the live record of a registered module.
type ModuleRegistration struct {
	Metadata           modular.ModuleMetadata         `json:"metadata"`
	RegistrationID     string                         `json:"registration_id"`
	RequesterID        string                         `json:"requester_id"`
	Status             modular.ModuleStatus           `json:"status"`
	Health             modular.HealthStatus           `json:"health"`
	HealthCheckResults map[string]modular.CheckResult `json:"health_check_results,omitempty"`
	IsLoaded           bool                           `json:"is_loaded"`
	LoadOrder          []string                       `json:"load_order,omitempty"`
	Metrics            RegistrationMetrics            `json:"metrics"`

	instance modular.Module
}

// RegistrationResult is the terminal outcome of a request. Results are kept
// in a bounded history.
type RegistrationResult struct {
	RequestID   string               `json:"request_id"`
	ModuleID    string               `json:"module_id"`
	State       modular.RequestState `json:"state"`
	Success     bool                 `json:"success"`
	Message     string               `json:"message"`
	Kind        modular.ErrorKind    `json:"error_kind,omitempty"`
	Errors      []string             `json:"errors,omitempty"`
	Warnings    []string             `json:"warnings,omitempty"`
	LoadOrder   []string             `json:"load_order,omitempty"`
	CompletedAt time.Time            `json:"completed_at"`
}

// ModuleStatusView is returned by GetModuleStatus.
type ModuleStatusView struct {
	ModuleID           string                         `json:"module_id"`
	Name               string                         `json:"name"`
	Version            string                         `json:"version"`
	Type               modular.ModuleType             `json:"module_type"`
	Namespace          string                         `json:"namespace"`
	Status             modular.ModuleStatus           `json:"status"`
	Health             modular.HealthStatus           `json:"health"`
	HealthCheckResults map[string]modular.CheckResult `json:"health_check_results,omitempty"`
	IsLoaded           bool                           `json:"is_loaded"`
	LoadOrder          []string                       `json:"load_order,omitempty"`
	Dependencies       []string                       `json:"dependencies"`
	Dependents         []string                       `json:"dependents"`
	Routes             []string                       `json:"routes"`
	Metrics            RegistrationMetrics            `json:"metrics"`
}

// ModuleSummary is one entry of a discovery listing.
type ModuleSummary struct {
	ModuleID    string               `json:"module_id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Version     string               `json:"version"`
	Type        modular.ModuleType   `json:"module_type"`
	Status      modular.ModuleStatus `json:"status"`
	Health      modular.HealthStatus `json:"health"`
	Tags        []string             `json:"tags,omitempty"`
}

// DiscoveryQuery filters DiscoverModules. Empty fields match everything.
type DiscoveryQuery struct {
	// Search matches id, name or description, case-insensitively.
	Search string
	// Tags must all be present on the module.
	Tags []string
	Type modular.ModuleType
}

// UnregisterResult is the outcome of UnregisterModule.
type UnregisterResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// MemoryStats reports the registry's bounded collections.
type MemoryStats struct {
	RegisteredModules       int   `json:"registered_modules"`
	MaxRegisteredModules    int   `json:"max_registered_modules"`
	PendingRegistrations    int   `json:"pending_registrations"`
	MaxPendingRegistrations int   `json:"max_pending_registrations"`
	HistoryEntries          int   `json:"history_entries"`
	BackgroundTasks         int   `json:"background_tasks"`
	TaskFailures            int64 `json:"task_failures"`
	RouteMetrics            int   `json:"route_metrics"`
	ResolverCacheSize       int   `json:"resolver_cache_size"`
}

// RegisterOption customizes one registration.
type RegisterOption func(*RegistrationRequest)

// WithAutoActivate overrides the configured auto-activate flag.
func WithAutoActivate(auto bool) RegisterOption {
	return func(r *RegistrationRequest) { r.AutoActivate = auto }
}

// WithInstance supplies an already constructed module, bypassing the loader.
func WithInstance(m modular.Module) RegisterOption {
	return func(r *RegistrationRequest) { r.instance = m }
}
