package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/allisson/tenantconfig/internal/database"
	apperrors "github.com/allisson/tenantconfig/internal/errors"
	"github.com/allisson/tenantconfig/internal/tenantconfig/domain"
)

// MySQLConfigRepository handles tenant_configs for MySQL. Tenant IDs are BINARY(16).
type MySQLConfigRepository struct {
	db *sql.DB
}

// NewMySQLConfigRepository creates a new MySQLConfigRepository.
func NewMySQLConfigRepository(db *sql.DB) *MySQLConfigRepository {
	return &MySQLConfigRepository{db: db}
}

// Upsert inserts the record or replaces every value column of the existing one.
func (r *MySQLConfigRepository) Upsert(ctx context.Context, record *domain.ConfigRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	querier := database.GetTx(ctx, r.db)

	tenantID, err := record.TenantID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal UUID")
	}

	query := `INSERT INTO tenant_configs (` + configColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
			  	value_plain = VALUES(value_plain),
			  	secret_ciphertext = VALUES(secret_ciphertext),
			  	wrapped_dek = VALUES(wrapped_dek),
			  	updated_at = VALUES(updated_at)`

	_, err = querier.ExecContext(
		ctx,
		query,
		tenantID,
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
func (r *MySQLConfigRepository) Get(ctx context.Context, tenantID uuid.UUID, key domain.Key) (*domain.ConfigRecord, error) {
	querier := database.GetTx(ctx, r.db)

	id, err := tenantID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal UUID")
	}

	query := `SELECT ` + configColumns + ` FROM tenant_configs WHERE tenant_id = ? AND config_key = ?`

	record, err := scanMySQLConfig(querier.QueryRowContext(ctx, query, id, string(key)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrConfigNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get config")
	}
	return record, nil
}

// GetMany returns the existing records among keys in a single query.
func (r *MySQLConfigRepository) GetMany(
	ctx context.Context,
	tenantID uuid.UUID,
	keys []domain.Key,
) ([]*domain.ConfigRecord, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	querier := database.GetTx(ctx, r.db)

	id, err := tenantID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal UUID")
	}

	args := make([]any, 0, len(keys)+1)
	args = append(args, id)
	for _, k := range keys {
		args = append(args, string(k))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")

	query := `SELECT ` + configColumns + ` FROM tenant_configs
			  WHERE tenant_id = ? AND config_key IN (` + placeholders + `)
			  ORDER BY config_key`

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get configs")
	}
	return collectMySQLConfigs(rows)
}

// Delete removes the record and reports whether one existed.
func (r *MySQLConfigRepository) Delete(ctx context.Context, tenantID uuid.UUID, key domain.Key) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	id, err := tenantID.MarshalBinary()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal UUID")
	}

	result, err := querier.ExecContext(ctx, `DELETE FROM tenant_configs WHERE tenant_id = ? AND config_key = ?`, id, string(key))
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
func (r *MySQLConfigRepository) List(ctx context.Context, tenantID uuid.UUID) ([]*domain.ConfigRecord, error) {
	querier := database.GetTx(ctx, r.db)

	id, err := tenantID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal UUID")
	}

	query := `SELECT ` + configColumns + ` FROM tenant_configs WHERE tenant_id = ? ORDER BY config_key`

	rows, err := querier.QueryContext(ctx, query, id)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list configs")
	}
	return collectMySQLConfigs(rows)
}

// ListEncryptedForUpdate locks and returns the tenant's encrypted records.
// It must run inside a transaction.
func (r *MySQLConfigRepository) ListEncryptedForUpdate(
	ctx context.Context,
	tenantID uuid.UUID,
) ([]*domain.ConfigRecord, error) {
	querier := database.GetTx(ctx, r.db)

	id, err := tenantID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal UUID")
	}

	query := `SELECT ` + configColumns + ` FROM tenant_configs
			  WHERE tenant_id = ? AND wrapped_dek IS NOT NULL
			  ORDER BY config_key
			  FOR UPDATE`

	rows, err := querier.QueryContext(ctx, query, id)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to lock encrypted configs")
	}
	return collectMySQLConfigs(rows)
}

// UpdateWrappedDek replaces only the wrapped DEK of a record.
func (r *MySQLConfigRepository) UpdateWrappedDek(
	ctx context.Context,
	tenantID uuid.UUID,
	key domain.Key,
	wrappedDek string,
) error {
	querier := database.GetTx(ctx, r.db)

	id, err := tenantID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal UUID")
	}

	query := `UPDATE tenant_configs SET wrapped_dek = ? WHERE tenant_id = ? AND config_key = ?`

	result, err := querier.ExecContext(ctx, query, wrappedDek, id, string(key))
	if err != nil {
		return apperrors.Wrap(err, "failed to update wrapped dek")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to get affected rows")
	}
	// MySQL reports zero affected rows when the new value equals the old one.
	if affected == 0 {
		var exists int
		err := querier.QueryRowContext(ctx,
			`SELECT 1 FROM tenant_configs WHERE tenant_id = ? AND config_key = ?`, id, string(key)).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrConfigNotFound
		}
		if err != nil {
			return apperrors.Wrap(err, "failed to check config")
		}
	}
	return nil
}

func scanMySQLConfig(row rowScanner) (*domain.ConfigRecord, error) {
	var (
		record     domain.ConfigRecord
		tenantID   []byte
		key        string
		plain      sql.NullString
		ciphertext sql.NullString
		wrappedDek sql.NullString
	)
	if err := row.Scan(&tenantID, &key, &plain, &ciphertext, &wrappedDek, &record.UpdatedAt); err != nil {
		return nil, err
	}
	if err := record.TenantID.UnmarshalBinary(tenantID); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal UUID")
	}
	fillRecord(&record, key, plain, ciphertext, wrappedDek)
	return &record, nil
}

func collectMySQLConfigs(rows *sql.Rows) ([]*domain.ConfigRecord, error) {
	defer func() { _ = rows.Close() }()

	var records []*domain.ConfigRecord
	for rows.Next() {
		record, err := scanMySQLConfig(rows)
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
