// Package store persists module registrations and audit entries. A memory
// backend serves tests and single-process use; the SQLite backend keeps
// records across restarts.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
)

var (
	ErrRecordExists   = errors.New("module record already exists")
	ErrRecordNotFound = errors.New("module record not found")
	ErrUnknownDriver  = errors.New("unknown store driver")
)

// ModuleRecord is the persisted form of a registered module.
type ModuleRecord struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	Description        string         `json:"description"`
	Version            string         `json:"version"`
	ModuleType         string         `json:"module_type"`
	Status             string         `json:"status"`
	EntryPoint         string         `json:"entry_point"`
	ConfigSchema       map[string]any `json:"config_schema,omitempty"`
	DefaultConfig      map[string]any `json:"default_config,omitempty"`
	Dependencies       []string       `json:"dependencies"`
	APIEndpoints       []string       `json:"api_endpoints"`
	FrontendComponents []string       `json:"frontend_components"`
	CreatedBy          string         `json:"created_by"`
	CreatedAt          time.Time      `json:"created_at"`
}

// RecordFromMetadata builds the record stored for a successful registration.
// Endpoints are stored as paths without their method.
func RecordFromMetadata(m modular.ModuleMetadata, status modular.ModuleStatus, createdBy string, now time.Time) ModuleRecord {
	paths := make([]string, 0, len(m.APIEndpoints))
	for _, decl := range m.APIEndpoints {
		paths = append(paths, modular.ParseEndpoint(decl).Path)
	}
	return ModuleRecord{
		ID:                 m.ID,
		Name:               m.Name,
		Description:        m.Description,
		Version:            m.Version,
		ModuleType:         string(m.Type),
		Status:             string(status),
		EntryPoint:         m.EntryPoint,
		ConfigSchema:       m.ConfigSchema,
		DefaultConfig:      m.DefaultConfig,
		Dependencies:       m.DependencyIDs(),
		APIEndpoints:       paths,
		FrontendComponents: append([]string{}, m.FrontendComponents...),
		CreatedBy:          createdBy,
		CreatedAt:          now.UTC(),
	}
}

// ModuleStore is the persistence collaborator of the registry.
type ModuleStore interface {
	Create(ctx context.Context, rec ModuleRecord) error
	// FindByID returns nil and no error when id is unknown.
	FindByID(ctx context.Context, id string) (*ModuleRecord, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]ModuleRecord, error)
}

// Backend bundles the stores opened for one driver.
type Backend struct {
	Modules ModuleStore
	Audit   AuditSink
	// Metrics is nil for the memory driver.
	Metrics *SQLStore
	close   func() error
}

// Close releases the backend's resources.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Open builds the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg modular.StoreConfig, logger modular.Logger) (*Backend, error) {
	switch cfg.Driver {
	case "", "memory":
		return &Backend{Modules: NewMemoryStore(), Audit: NewLoggerAuditSink(logger)}, nil
	case "sqlite":
		s, err := OpenSQLite(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		return &Backend{Modules: s, Audit: s, Metrics: s, close: s.Close}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
