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

// MySQLTenantRepository handles tenant persistence for MySQL. IDs are stored as BINARY(16).
type MySQLTenantRepository struct {
	db *sql.DB
}

// NewMySQLTenantRepository creates a new MySQLTenantRepository.
func NewMySQLTenantRepository(db *sql.DB) *MySQLTenantRepository {
	return &MySQLTenantRepository{db: db}
}

// Create inserts a new tenant.
func (r *MySQLTenantRepository) Create(ctx context.Context, t *domain.Tenant) error {
	querier := database.GetTx(ctx, r.db)

	id, err := t.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal UUID")
	}

	query := `INSERT INTO tenants (id, name, datasource, active, created_at) VALUES (?, ?, ?, ?, ?)`

	if _, err := querier.ExecContext(ctx, query, id, t.Name, t.Datasource, t.Active, t.CreatedAt); err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrTenantAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create tenant")
	}
	return nil
}

// GetByID retrieves a tenant by ID.
func (r *MySQLTenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal UUID")
	}

	query := `SELECT id, name, datasource, active, created_at FROM tenants WHERE id = ?`

	t, err := scanMySQLTenant(querier.QueryRowContext(ctx, query, idBytes))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get tenant")
	}
	return t, nil
}

// ListActive returns every active tenant ordered by ID.
func (r *MySQLTenantRepository) ListActive(ctx context.Context) ([]*domain.Tenant, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, name, datasource, active, created_at FROM tenants WHERE active = TRUE ORDER BY id`

	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list tenants")
	}
	defer func() { _ = rows.Close() }()

	var tenants []*domain.Tenant
	for rows.Next() {
		t, err := scanMySQLTenant(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan tenant")
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate tenants")
	}
	return tenants, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMySQLTenant(row rowScanner) (*domain.Tenant, error) {
	var (
		t       domain.Tenant
		idBytes []byte
	)
	if err := row.Scan(&idBytes, &t.Name, &t.Datasource, &t.Active, &t.CreatedAt); err != nil {
		return nil, err
	}
	if err := t.ID.UnmarshalBinary(idBytes); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal UUID")
	}
	return &t, nil
}
