// Package database provides database connection management and utilities.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Supported driver names.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// PrimaryDatasource is the name of the datasource opened from DB_CONNECTION_STRING.
const PrimaryDatasource = "primary"

// Config holds database configuration settings.
type Config struct {
	Driver             string
	ConnectionString   string
	MaxOpenConnections int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// Connect establishes a database connection with the given configuration.
func Connect(cfg Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Datasource is a named connection pool. Identifier is the value preflight
// breakers are keyed on and never leaves the process unhashed.
type Datasource struct {
	Name       string
	Driver     string
	Identifier string
	DB         *sql.DB
}

// Registry resolves tenant datasource names to connection pools. Tenants on the
// shared database use PrimaryDatasource; dedicated databases are registered by name.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]*Datasource
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]*Datasource)}
}

// Register adds or replaces a datasource.
func (r *Registry) Register(ds *Datasource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[ds.Name] = ds
}

// Get returns the named datasource. An empty name resolves to the primary.
func (r *Registry) Get(name string) (*Datasource, bool) {
	if name == "" {
		name = PrimaryDatasource
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ds, ok := r.sources[name]
	return ds, ok
}

// All returns every registered datasource.
func (r *Registry) All() []*Datasource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Datasource, 0, len(r.sources))
	for _, ds := range r.sources {
		out = append(out, ds)
	}
	return out
}

// Close closes every non-primary pool. The primary is owned by the caller that opened it.
func (r *Registry) Close(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, ds := range r.sources {
		if name == PrimaryDatasource || ds.DB == nil {
			continue
		}
		if err := ds.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close datasource %s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close datasources: %v", errs)
	}
	return nil
}

// ParseDatasources parses "name=dsn" pairs separated by ";" as used by DB_EXTRA_DATASOURCES.
func ParseDatasources(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, dsn, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" || strings.TrimSpace(dsn) == "" {
			return nil, fmt.Errorf("invalid datasource entry %q", part)
		}
		if name == PrimaryDatasource {
			return nil, fmt.Errorf("datasource name %q is reserved", name)
		}
		out[name] = strings.TrimSpace(dsn)
	}
	return out, nil
}
