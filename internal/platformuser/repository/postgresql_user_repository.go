// Package repository provides platform user persistence for PostgreSQL and MySQL.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/allisson/tenantconfig/internal/database"
	apperrors "github.com/allisson/tenantconfig/internal/errors"
	"github.com/allisson/tenantconfig/internal/platformuser/domain"
)

// PostgreSQLUserRepository handles platform user persistence for PostgreSQL.
type PostgreSQLUserRepository struct {
	db *sql.DB
}

// NewPostgreSQLUserRepository creates a new PostgreSQLUserRepository.
func NewPostgreSQLUserRepository(db *sql.DB) *PostgreSQLUserRepository {
	return &PostgreSQLUserRepository{db: db}
}

// Create inserts a new platform user.
func (r *PostgreSQLUserRepository) Create(ctx context.Context, user *domain.User) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO platform_users (id, name, email, password_hash, mfa_secret, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := querier.ExecContext(ctx, query,
		user.ID, user.Name, user.Email, user.PasswordHash, nullString(user.MFASecret), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrUserAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create platform user")
	}
	return nil
}

// GetByEmail retrieves a platform user by email.
func (r *PostgreSQLUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, name, email, password_hash, mfa_secret, created_at, updated_at
			  FROM platform_users WHERE email = $1`

	var (
		user      domain.User
		mfaSecret sql.NullString
	)
	err := querier.QueryRowContext(ctx, query, email).Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &mfaSecret, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get platform user by email")
	}
	user.MFASecret = mfaSecret.String
	return &user, nil
}

// ListMFASecrets returns every enrolled MFA secret.
func (r *PostgreSQLUserRepository) ListMFASecrets(ctx context.Context) ([]domain.MFASecretRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, mfa_secret FROM platform_users WHERE mfa_secret IS NOT NULL ORDER BY id`

	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list mfa secrets")
	}
	defer func() { _ = rows.Close() }()

	var records []domain.MFASecretRecord
	for rows.Next() {
		var rec domain.MFASecretRecord
		if err := rows.Scan(&rec.UserID, &rec.MFASecret); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan mfa secret")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate mfa secrets")
	}
	return records, nil
}

// UpdateMFASecret replaces the sealed MFA secret of a user.
func (r *PostgreSQLUserRepository) UpdateMFASecret(ctx context.Context, userID uuid.UUID, sealed string) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE platform_users SET mfa_secret = $1, updated_at = NOW() WHERE id = $2`

	result, err := querier.ExecContext(ctx, query, sealed, userID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update mfa secret")
	}
	return requireAffected(result)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to get affected rows")
	}
	if affected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
