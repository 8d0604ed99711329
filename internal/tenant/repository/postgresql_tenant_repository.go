// Package repository provides tenant persistence for PostgreSQL and MySQL.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/allisson/tenantconfig/internal/database"
	apperrors "github.com/allisson/tenantconfig/internal/errors"
	"github.com/allisson/tenantconfig/internal/tenant/domain"
)

// PostgreSQLTenantRepository handles tenant persistence for PostgreSQL.
type PostgreSQLTenantRepository struct {
	db *sql.DB
}

// NewPostgreSQLTenantRepository creates a new PostgreSQLTenantRepository.
func NewPostgreSQLTenantRepository(db *sql.DB) *PostgreSQLTenantRepository {
	return &PostgreSQLTenantRepository{db: db}
}

// Create inserts a new tenant.
func (r *PostgreSQLTenantRepository) Create(ctx context.Context, t *domain.Tenant) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO tenants (id, name, datasource, active, created_at)
			  VALUES ($1, $2, $3, $4, $5)`

	_, err := querier.ExecContext(ctx, query, t.ID, t.Name, t.Datasource, t.Active, t.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrTenantAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create tenant")
	}
	return nil
}

// GetByID retrieves a tenant by ID.
func (r *PostgreSQLTenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, name, datasource, active, created_at FROM tenants WHERE id = $1`

	var t domain.Tenant
	err := querier.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.Name, &t.Datasource, &t.Active, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get tenant")
	}
	return &t, nil
}

// ListActive returns every active tenant ordered by ID.
func (r *PostgreSQLTenantRepository) ListActive(ctx context.Context) ([]*domain.Tenant, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, name, datasource, active, created_at FROM tenants WHERE active = TRUE ORDER BY id`

	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list tenants")
	}
	defer func() { _ = rows.Close() }()

	var tenants []*domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Datasource, &t.Active, &t.CreatedAt); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan tenant")
		}
		tenants = append(tenants, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate tenants")
	}
	return tenants, nil
}
