// Package domain defines platform operators: back office staff who act across
// tenants. Their MFA seed is sealed directly under the KEK.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/allisson/tenantconfig/internal/errors"
)

// User is a platform operator.
type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	// MFASecret is the sealed TOTP seed. Empty when MFA is not enrolled.
	MFASecret string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MFASecretRecord is the slice of a user row key rotation touches.
type MFASecretRecord struct {
	UserID    uuid.UUID
	MFASecret string
}

var (
	// ErrUserNotFound indicates the requested platform user does not exist.
	ErrUserNotFound = errors.Wrap(errors.ErrNotFound, "platform user not found")

	// ErrUserAlreadyExists indicates a platform user with the same email already exists.
	ErrUserAlreadyExists = errors.Wrap(errors.ErrConflict, "platform user already exists")

	// ErrInvalidCredentials indicates a wrong email and password pair.
	ErrInvalidCredentials = errors.Wrap(errors.ErrUnauthorized, "invalid credentials")

	// ErrMFANotEnrolled indicates the user has no MFA secret.
	ErrMFANotEnrolled = errors.Wrap(errors.ErrNotFound, "mfa not enrolled")
)
