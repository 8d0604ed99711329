package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/allisson/tenantconfig/internal/database"
	apperrors "github.com/allisson/tenantconfig/internal/errors"
	"github.com/allisson/tenantconfig/internal/tenantconfig/domain"
)

const globalColumns = `config_key, value_plain, secret_ciphertext, wrapped_dek, updated_at`

// PostgreSQLGlobalConfigRepository handles global_configs for PostgreSQL.
type PostgreSQLGlobalConfigRepository struct {
	db *sql.DB
}

// NewPostgreSQLGlobalConfigRepository creates a new PostgreSQLGlobalConfigRepository.
func NewPostgreSQLGlobalConfigRepository(db *sql.DB) *PostgreSQLGlobalConfigRepository {
	return &PostgreSQLGlobalConfigRepository{db: db}
}

// Get returns the record stored under key.
func (r *PostgreSQLGlobalConfigRepository) Get(ctx context.Context, key string) (*domain.GlobalConfigRecord, error) {
	querier := database.GetTx(ctx, r.db)
	query := `SELECT ` + globalColumns + ` FROM global_configs WHERE config_key = $1`
	return getGlobalConfig(querier.QueryRowContext(ctx, query, key))
}

// Upsert inserts or replaces the record.
func (r *PostgreSQLGlobalConfigRepository) Upsert(ctx context.Context, record *domain.GlobalConfigRecord) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO global_configs (` + globalColumns + `) VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (config_key) DO UPDATE SET
			  	value_plain = EXCLUDED.value_plain,
			  	secret_ciphertext = EXCLUDED.secret_ciphertext,
			  	wrapped_dek = EXCLUDED.wrapped_dek,
			  	updated_at = EXCLUDED.updated_at`

	return upsertGlobalConfig(ctx, querier, query, record)
}

// ListEncryptedForUpdate locks and returns every encrypted global record.
func (r *PostgreSQLGlobalConfigRepository) ListEncryptedForUpdate(ctx context.Context) ([]*domain.GlobalConfigRecord, error) {
	return listEncryptedGlobalConfigs(ctx, database.GetTx(ctx, r.db))
}

// UpdateWrappedDek replaces only the wrapped DEK of a record.
func (r *PostgreSQLGlobalConfigRepository) UpdateWrappedDek(ctx context.Context, key, wrappedDek string) error {
	querier := database.GetTx(ctx, r.db)
	query := `UPDATE global_configs SET wrapped_dek = $1 WHERE config_key = $2`
	if _, err := querier.ExecContext(ctx, query, wrappedDek, key); err != nil {
		return apperrors.Wrap(err, "failed to update global wrapped dek")
	}
	return nil
}

// MySQLGlobalConfigRepository handles global_configs for MySQL.
type MySQLGlobalConfigRepository struct {
	db *sql.DB
}

// NewMySQLGlobalConfigRepository creates a new MySQLGlobalConfigRepository.
func NewMySQLGlobalConfigRepository(db *sql.DB) *MySQLGlobalConfigRepository {
	return &MySQLGlobalConfigRepository{db: db}
}

// Get returns the record stored under key.
func (r *MySQLGlobalConfigRepository) Get(ctx context.Context, key string) (*domain.GlobalConfigRecord, error) {
	querier := database.GetTx(ctx, r.db)
	query := `SELECT ` + globalColumns + ` FROM global_configs WHERE config_key = ?`
	return getGlobalConfig(querier.QueryRowContext(ctx, query, key))
}

// Upsert inserts or replaces the record.
func (r *MySQLGlobalConfigRepository) Upsert(ctx context.Context, record *domain.GlobalConfigRecord) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO global_configs (` + globalColumns + `) VALUES (?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
			  	value_plain = VALUES(value_plain),
			  	secret_ciphertext = VALUES(secret_ciphertext),
			  	wrapped_dek = VALUES(wrapped_dek),
			  	updated_at = VALUES(updated_at)`

	return upsertGlobalConfig(ctx, querier, query, record)
}

// ListEncryptedForUpdate locks and returns every encrypted global record.
func (r *MySQLGlobalConfigRepository) ListEncryptedForUpdate(ctx context.Context) ([]*domain.GlobalConfigRecord, error) {
	return listEncryptedGlobalConfigs(ctx, database.GetTx(ctx, r.db))
}

// UpdateWrappedDek replaces only the wrapped DEK of a record.
func (r *MySQLGlobalConfigRepository) UpdateWrappedDek(ctx context.Context, key, wrappedDek string) error {
	querier := database.GetTx(ctx, r.db)
	query := `UPDATE global_configs SET wrapped_dek = ? WHERE config_key = ?`
	if _, err := querier.ExecContext(ctx, query, wrappedDek, key); err != nil {
		return apperrors.Wrap(err, "failed to update global wrapped dek")
	}
	return nil
}

func getGlobalConfig(row rowScanner) (*domain.GlobalConfigRecord, error) {
	record, err := scanGlobalConfig(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrConfigNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get global config")
	}
	return record, nil
}

func upsertGlobalConfig(ctx context.Context, querier database.Querier, query string, record *domain.GlobalConfigRecord) error {
	_, err := querier.ExecContext(
		ctx,
		query,
		record.Key,
		nullBytes(record.ValuePlain),
		nullString(record.SecretCiphertext),
		nullString(record.WrappedDek),
		record.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert global config")
	}
	return nil
}

func listEncryptedGlobalConfigs(ctx context.Context, querier database.Querier) ([]*domain.GlobalConfigRecord, error) {
	query := `SELECT ` + globalColumns + ` FROM global_configs
			  WHERE wrapped_dek IS NOT NULL
			  ORDER BY config_key
			  FOR UPDATE`

	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to lock global configs")
	}
	defer func() { _ = rows.Close() }()

	var records []*domain.GlobalConfigRecord
	for rows.Next() {
		record, err := scanGlobalConfig(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan global config")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate global configs")
	}
	return records, nil
}

func scanGlobalConfig(row rowScanner) (*domain.GlobalConfigRecord, error) {
	var (
		record     domain.GlobalConfigRecord
		plain      sql.NullString
		ciphertext sql.NullString
		wrappedDek sql.NullString
	)
	if err := row.Scan(&record.Key, &plain, &ciphertext, &wrappedDek, &record.UpdatedAt); err != nil {
		return nil, err
	}
	fillGlobalRecord(&record, plain, ciphertext, wrappedDek)
	return &record, nil
}
