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

// MySQLUserRepository handles platform user persistence for MySQL. IDs are stored as BINARY(16).
type MySQLUserRepository struct {
	db *sql.DB
}

// NewMySQLUserRepository creates a new MySQLUserRepository.
func NewMySQLUserRepository(db *sql.DB) *MySQLUserRepository {
	return &MySQLUserRepository{db: db}
}

// Create inserts a new platform user.
func (r *MySQLUserRepository) Create(ctx context.Context, user *domain.User) error {
	querier := database.GetTx(ctx, r.db)

	id, err := user.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal UUID")
	}

	query := `INSERT INTO platform_users (id, name, email, password_hash, mfa_secret, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(ctx, query,
		id, user.Name, user.Email, user.PasswordHash, nullString(user.MFASecret), user.CreatedAt, user.UpdatedAt,
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
func (r *MySQLUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, name, email, password_hash, mfa_secret, created_at, updated_at
			  FROM platform_users WHERE email = ?`

	var (
		user      domain.User
		idBytes   []byte
		mfaSecret sql.NullString
	)
	err := querier.QueryRowContext(ctx, query, email).Scan(
		&idBytes, &user.Name, &user.Email, &user.PasswordHash, &mfaSecret, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get platform user by email")
	}
	if err := user.ID.UnmarshalBinary(idBytes); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal UUID")
	}
	user.MFASecret = mfaSecret.String
	return &user, nil
}

// ListMFASecrets returns every enrolled MFA secret.
func (r *MySQLUserRepository) ListMFASecrets(ctx context.Context) ([]domain.MFASecretRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, mfa_secret FROM platform_users WHERE mfa_secret IS NOT NULL ORDER BY id`

	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list mfa secrets")
	}
	defer func() { _ = rows.Close() }()

	var records []domain.MFASecretRecord
	for rows.Next() {
		var (
			rec     domain.MFASecretRecord
			idBytes []byte
		)
		if err := rows.Scan(&idBytes, &rec.MFASecret); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan mfa secret")
		}
		if err := rec.UserID.UnmarshalBinary(idBytes); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal UUID")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate mfa secrets")
	}
	return records, nil
}

// UpdateMFASecret replaces the sealed MFA secret of a user.
func (r *MySQLUserRepository) UpdateMFASecret(ctx context.Context, userID uuid.UUID, sealed string) error {
	querier := database.GetTx(ctx, r.db)

	id, err := userID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal UUID")
	}

	query := `UPDATE platform_users SET mfa_secret = ?, updated_at = NOW() WHERE id = ?`

	result, err := querier.ExecContext(ctx, query, sealed, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to update mfa secret")
	}
	return requireAffected(result)
}
