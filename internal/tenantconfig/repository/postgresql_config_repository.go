// Package repository implements tenant and platform configuration persistence
// for PostgreSQL and MySQL.
//
// Every method runs on the transaction carried by ctx when there is one, so the
// rotation job can lock and rewrite a tenant's records atomically.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/allisson/tenantconfig/internal/database"
	apperrors "github.com/allisson/tenantconfig/internal/errors"
	"github.com/allisson/tenantconfig/internal/tenantconfig/domain"
)

const configColumns = `tenant_id, config_key, value_plain, secret_ciphertext, wrapped_dek, updated_at`

// PostgreSQLConfigRepository handles tenant_configs for PostgreSQL.
type PostgreSQLConfigRepository struct {
	db *sql.DB
}

// NewPostgreSQLConfigRepository creates a new PostgreSQLConfigRepository.
func NewPostgreSQLConfigRepository(db *sql.DB) *PostgreSQLConfigRepository {
	return &PostgreSQLConfigRepository{db: db}
}

// Upsert inserts the record or replaces every value column of the existing one.
func (r *PostgreSQLConfigRepository) Upsert(ctx context.Context, record *domain.ConfigRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO tenant_configs (` + configColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  ON CONFLICT (tenant_id, config_key) DO UPDATE SET
			  	value_plain = EXCLUDED.value_plain,
			  	secret_ciphertext = EXCLUDED.secret_ciphertext,
			  	wrapped_dek = EXCLUDED.wrapped_dek,
			  	updated_at = EXCLUDED.updated_at`

	_, err := querier.ExecContext(
		ctx,
		query,
		record.TenantID,
		string(record.Key),
		nullBytes(record.ValuePlain),
		nullString(record.SecretCiphertext),
		nullString(record.WrappedDek),
		record.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert config")
	}
	return nil
}

// Get returns the record for tenantID and key.
func (r *PostgreSQLConfigRepository) Get(ctx context.Context, tenantID uuid.UUID, key domain.Key) (*domain.ConfigRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + configColumns + ` FROM tenant_configs WHERE tenant_id = $1 AND config_key = $2`

	record, err := scanPostgreSQLConfig(querier.QueryRowContext(ctx, query, tenantID, string(key)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrConfigNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get config")
	}
	return record, nil
}

// GetMany returns the existing records among keys in a single query.
func (r *PostgreSQLConfigRepository) GetMany(
	ctx context.Context,
	tenantID uuid.UUID,
	keys []domain.Key,
) ([]*domain.ConfigRecord, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	querier := database.GetTx(ctx, r.db)

	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = string(k)
	}

	query := `SELECT ` + configColumns + ` FROM tenant_configs
			  WHERE tenant_id = $1 AND config_key = ANY($2)
			  ORDER BY config_key`

	rows, err := querier.QueryContext(ctx, query, tenantID, pq.Array(names))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get configs")
	}
	return collectPostgreSQLConfigs(rows)
}

// Delete removes the record and reports whether one existed.
func (r *PostgreSQLConfigRepository) Delete(ctx context.Context, tenantID uuid.UUID, key domain.Key) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM tenant_configs WHERE tenant_id = $1 AND config_key = $2`

	result, err := querier.ExecContext(ctx, query, tenantID, string(key))
	if err != nil {
		return false, apperrors.Wrap(err, "failed to delete config")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to get affected rows")
	}
	return affected > 0, nil
}

// List returns every record of the tenant ordered by key.
func (r *PostgreSQLConfigRepository) List(ctx context.Context, tenantID uuid.UUID) ([]*domain.ConfigRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + configColumns + ` FROM tenant_configs WHERE tenant_id = $1 ORDER BY config_key`

	rows, err := querier.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list configs")
	}
	return collectPostgreSQLConfigs(rows)
}

// ListEncryptedForUpdate locks and returns the tenant's encrypted records.
// It must run inside a transaction.
func (r *PostgreSQLConfigRepository) ListEncryptedForUpdate(
	ctx context.Context,
	tenantID uuid.UUID,
) ([]*domain.ConfigRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + configColumns + ` FROM tenant_configs
			  WHERE tenant_id = $1 AND wrapped_dek IS NOT NULL
			  ORDER BY config_key
			  FOR UPDATE`

	rows, err := querier.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to lock encrypted configs")
	}
	return collectPostgreSQLConfigs(rows)
}

// UpdateWrappedDek replaces only the wrapped DEK of a record.
func (r *PostgreSQLConfigRepository) UpdateWrappedDek(
	ctx context.Context,
	tenantID uuid.UUID,
	key domain.Key,
	wrappedDek string,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE tenant_configs SET wrapped_dek = $1 WHERE tenant_id = $2 AND config_key = $3`

	result, err := querier.ExecContext(ctx, query, wrappedDek, tenantID, string(key))
	if err != nil {
		return apperrors.Wrap(err, "failed to update wrapped dek")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to get affected rows")
	}
	if affected == 0 {
		return domain.ErrConfigNotFound
	}
	return nil
}

func scanPostgreSQLConfig(row rowScanner) (*domain.ConfigRecord, error) {
	var (
		record     domain.ConfigRecord
		key        string
		plain      sql.NullString
		ciphertext sql.NullString
		wrappedDek sql.NullString
	)
	if err := row.Scan(&record.TenantID, &key, &plain, &ciphertext, &wrappedDek, &record.UpdatedAt); err != nil {
		return nil, err
	}
	fillRecord(&record, key, plain, ciphertext, wrappedDek)
	return &record, nil
}

func collectPostgreSQLConfigs(rows *sql.Rows) ([]*domain.ConfigRecord, error) {
	defer func() { _ = rows.Close() }()

	var records []*domain.ConfigRecord
	for rows.Next() {
		record, err := scanPostgreSQLConfig(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan config")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate configs")
	}
	return records, nil
}
