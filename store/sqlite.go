package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/routing"
)

type migration struct {
	id  string
	sql string
}

var migrations = []migration{
	{id: "0001_modules", sql: `
		CREATE TABLE modules (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			version TEXT NOT NULL,
			module_type TEXT NOT NULL,
			status TEXT NOT NULL,
			entry_point TEXT NOT NULL DEFAULT '',
			config_schema TEXT,
			default_config TEXT,
			dependencies TEXT NOT NULL,
			api_endpoints TEXT NOT NULL,
			frontend_components TEXT NOT NULL,
			created_by TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`},
	{id: "0002_audit_log", sql: `
		CREATE TABLE audit_log (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			action TEXT NOT NULL,
			resource_type TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			description TEXT NOT NULL,
			metadata TEXT,
			created_at TEXT NOT NULL
		)`},
	{id: "0003_route_metrics", sql: `
		CREATE TABLE route_metrics_snapshots (
			taken_at TEXT NOT NULL,
			route_key TEXT NOT NULL,
			module_id TEXT NOT NULL,
			call_count INTEGER NOT NULL,
			total_duration_ms REAL NOT NULL,
			error_count INTEGER NOT NULL,
			last_called TEXT NOT NULL
		)`},
}

// SQLStore implements ModuleStore, AuditSink and routing.MetricsSink on
// one SQLite database.
type SQLStore struct {
	db     *sql.DB
	logger modular.Logger
	now    func() time.Time
}

var (
	_ ModuleStore         = (*SQLStore)(nil)
	_ AuditSink           = (*SQLStore)(nil)
	_ routing.MetricsSink = (*SQLStore)(nil)
)

// OpenSQLite opens dsn and applies pending migrations. Use "file::memory:"
// for a throwaway database.
func OpenSQLite(ctx context.Context, dsn string, logger modular.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = modular.NopLogger{}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", modular.ErrPersistenceFailure, dsn, err)
	}
	// SQLite allows a single writer; an in-memory database also lives on
	// exactly one connection.
	db.SetMaxOpenConns(1)

	s := &SQLStore{db: db, logger: logger, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("%w: create migrations table: %w", modular.ErrPersistenceFailure, err)
	}

	applied := make(map[string]bool)
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("%w: query migrations: %w", modular.ErrPersistenceFailure, err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("%w: scan migration: %w", modular.ErrPersistenceFailure, err)
		}
		applied[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: iterate migrations: %w", modular.ErrPersistenceFailure, err)
	}

	for _, m := range migrations {
		if applied[m.id] {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return err
		}
		s.logger.Debug("Applied migration", "migration", m.id)
	}
	return nil
}

func (s *SQLStore) apply(ctx context.Context, m migration) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin migration %s: %w", modular.ErrPersistenceFailure, m.id, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, m.sql); err != nil {
		return fmt.Errorf("%w: migration %s: %w", modular.ErrPersistenceFailure, m.id, err)
	}
	if _, err = tx.ExecContext(ctx, "INSERT INTO schema_migrations (id, applied_at) VALUES (?, ?)", m.id, s.now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("%w: record migration %s: %w", modular.ErrPersistenceFailure, m.id, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit migration %s: %w", modular.ErrPersistenceFailure, m.id, err)
	}
	return nil
}

func (s *SQLStore) Create(ctx context.Context, rec ModuleRecord) error {
	schema, err := marshalNullable(rec.ConfigSchema)
	if err != nil {
		return err
	}
	defaults, err := marshalNullable(rec.DefaultConfig)
	if err != nil {
		return err
	}
	deps, _ := json.Marshal(nonNil(rec.Dependencies))
	endpoints, _ := json.Marshal(nonNil(rec.APIEndpoints))
	components, _ := json.Marshal(nonNil(rec.FrontendComponents))

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO modules (id, name, description, version, module_type, status, entry_point,
			config_schema, default_config, dependencies, api_endpoints, frontend_components,
			created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		rec.ID, rec.Name, rec.Description, rec.Version, rec.ModuleType, rec.Status, rec.EntryPoint,
		schema, defaults, string(deps), string(endpoints), string(components),
		rec.CreatedBy, rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: insert module %s: %w", modular.ErrPersistenceFailure, rec.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRecordExists, rec.ID)
	}
	return nil
}

const selectModule = `SELECT id, name, description, version, module_type, status, entry_point,
	config_schema, default_config, dependencies, api_endpoints, frontend_components,
	created_by, created_at FROM modules`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*ModuleRecord, error) {
	var (
		rec                         ModuleRecord
		schema, defaults            sql.NullString
		deps, endpoints, components string
		createdAt                   string
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Description, &rec.Version, &rec.ModuleType, &rec.Status,
		&rec.EntryPoint, &schema, &defaults, &deps, &endpoints, &components, &rec.CreatedBy, &createdAt); err != nil {
		return nil, err
	}
	if schema.Valid {
		if err := json.Unmarshal([]byte(schema.String), &rec.ConfigSchema); err != nil {
			return nil, fmt.Errorf("decode config_schema: %w", err)
		}
	}
	if defaults.Valid {
		if err := json.Unmarshal([]byte(defaults.String), &rec.DefaultConfig); err != nil {
			return nil, fmt.Errorf("decode default_config: %w", err)
		}
	}
	lists := []struct {
		raw string
		dst *[]string
	}{
		{deps, &rec.Dependencies},
		{endpoints, &rec.APIEndpoints},
		{components, &rec.FrontendComponents},
	}
	for _, l := range lists {
		if err := json.Unmarshal([]byte(l.raw), l.dst); err != nil {
			return nil, fmt.Errorf("decode list column: %w", err)
		}
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	rec.CreatedAt = t
	return &rec, nil
}

func (s *SQLStore) FindByID(ctx context.Context, id string) (*ModuleRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, selectModule+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find module %s: %w", modular.ErrPersistenceFailure, id, err)
	}
	return rec, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM modules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%w: delete module %s: %w", modular.ErrPersistenceFailure, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return nil
}

// List returns every record ordered by id.
func (s *SQLStore) List(ctx context.Context) ([]ModuleRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectModule+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("%w: list modules: %w", modular.ErrPersistenceFailure, err)
	}
	defer rows.Close()

	var out []ModuleRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan module: %w", modular.ErrPersistenceFailure, err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate modules: %w", modular.ErrPersistenceFailure, err)
	}
	return out, nil
}

// LogAction appends an audit entry.
func (s *SQLStore) LogAction(ctx context.Context, e AuditEntry) error {
	meta, err := marshalNullable(e.Metadata)
	if err != nil {
		return err
	}
	at := e.CreatedAt
	if at.IsZero() {
		at = s.now()
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (user_id, action, resource_type, resource_id, description, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Action, e.ResourceType, e.ResourceID, e.Description, meta, at.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("%w: write audit entry: %w", modular.ErrPersistenceFailure, err)
	}
	return nil
}

// AuditLog returns the most recent entries for resourceID, newest first.
// An empty resourceID returns entries for every resource.
func (s *SQLStore) AuditLog(ctx context.Context, resourceID string, limit int) ([]AuditEntry, error) {
	query := "SELECT user_id, action, resource_type, resource_id, description, metadata, created_at FROM audit_log"
	var args []any
	if resourceID != "" {
		query += " WHERE resource_id = ?"
		args = append(args, resourceID)
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query audit log: %w", modular.ErrPersistenceFailure, err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e         AuditEntry
			meta      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.UserID, &e.Action, &e.ResourceType, &e.ResourceID, &e.Description, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan audit entry: %w", modular.ErrPersistenceFailure, err)
		}
		if meta.Valid {
			_ = json.Unmarshal([]byte(meta.String), &e.Metadata)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// WriteMetrics stores a route metrics snapshot in one transaction.
func (s *SQLStore) WriteMetrics(ctx context.Context, snapshot map[string]routing.RouteMetricsView) (err error) {
	if len(snapshot) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin metrics snapshot: %w", modular.ErrPersistenceFailure, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	takenAt := s.now().UTC().Format(time.RFC3339Nano)
	for key, m := range snapshot {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO route_metrics_snapshots (taken_at, route_key, module_id, call_count, total_duration_ms, error_count, last_called)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			takenAt, key, m.ModuleID, m.CallCount, m.TotalDurationMs, m.ErrorCount, m.LastCalled.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("%w: write metrics for %s: %w", modular.ErrPersistenceFailure, key, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit metrics snapshot: %w", modular.ErrPersistenceFailure, err)
	}
	return nil
}

// MetricsSnapshotCount returns the number of stored snapshot rows.
func (s *SQLStore) MetricsSnapshotCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM route_metrics_snapshots").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count metrics snapshots: %w", modular.ErrPersistenceFailure, err)
	}
	return n, nil
}

func marshalNullable(v map[string]any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("%w: encode json column: %w", modular.ErrPersistenceFailure, err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
