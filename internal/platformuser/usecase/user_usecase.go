// Package usecase implements platform user registration, authentication and MFA enrollment.
package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/allisson/go-pwdhash"
	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/allisson/tenantconfig/internal/database"
	apperrors "github.com/allisson/tenantconfig/internal/errors"
	"github.com/allisson/tenantconfig/internal/platformuser/domain"
	appValidation "github.com/allisson/tenantconfig/internal/validation"
)

// CreateUserInput contains the input data for creating a platform user.
type CreateUserInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	// MFASecret is an optional TOTP seed, sealed before it is stored.
	MFASecret string `json:"mfa_secret"`
}

// UseCase defines the platform user operations.
type UseCase interface {
	CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error)
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	RevealMFASecret(ctx context.Context, email string) (string, error)
}

// UserRepository defines platform user persistence.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ListMFASecrets(ctx context.Context) ([]domain.MFASecretRecord, error)
	UpdateMFASecret(ctx context.Context, userID uuid.UUID, sealed string) error
}

// FieldSealer seals single values directly under the KEK.
type FieldSealer interface {
	EncryptWithKEK(plaintext []byte) (string, error)
	DecryptWithKEK(ciphertext string) ([]byte, error)
}

// UserUseCase handles platform user business logic.
type UserUseCase struct {
	txManager      database.TxManager
	userRepo       UserRepository
	sealer         FieldSealer
	passwordHasher *pwdhash.PasswordHasher
}

// NewUserUseCase creates a new UserUseCase.
func NewUserUseCase(txManager database.TxManager, userRepo UserRepository, sealer FieldSealer) (*UserUseCase, error) {
	hasher, err := pwdhash.New(pwdhash.WithPolicy(pwdhash.PolicyInteractive))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create password hasher")
	}
	return &UserUseCase{
		txManager:      txManager,
		userRepo:       userRepo,
		sealer:         sealer,
		passwordHasher: hasher,
	}, nil
}

func validateCreateUserInput(input CreateUserInput) error {
	err := validation.ValidateStruct(&input,
		validation.Field(&input.Name,
			validation.Required.Error("name is required"),
			appValidation.NotBlank,
			validation.Length(1, 255).Error("name must be between 1 and 255 characters"),
		),
		validation.Field(&input.Email,
			validation.Required.Error("email is required"),
			appValidation.NotBlank,
			appValidation.Email,
			validation.Length(5, 255).Error("email must be between 5 and 255 characters"),
		),
		validation.Field(&input.Password,
			validation.Required.Error("password is required"),
			validation.Length(12, 128).Error("password must be between 12 and 128 characters"),
			appValidation.PasswordStrength{
				MinLength:      12,
				RequireUpper:   true,
				RequireLower:   true,
				RequireNumber:  true,
				RequireSpecial: true,
			},
		),
		validation.Field(&input.MFASecret, validation.Length(16, 128)),
	)
	return appValidation.WrapValidationError(err)
}

// CreateUser registers a platform operator. The password is hashed and the
// MFA secret, if any, is sealed under the KEK.
func (uc *UserUseCase) CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	if err := validateCreateUserInput(input); err != nil {
		return nil, err
	}

	hashedPassword, err := uc.passwordHasher.Hash([]byte(input.Password))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to hash password")
	}

	var sealedMFA string
	if input.MFASecret != "" {
		sealedMFA, err = uc.sealer.EncryptWithKEK([]byte(input.MFASecret))
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to seal mfa secret")
		}
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.Must(uuid.NewV7()),
		Name:         strings.TrimSpace(input.Name),
		Email:        normalizeEmail(input.Email),
		PasswordHash: hashedPassword,
		MFASecret:    sealedMFA,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		return uc.userRepo.Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks an email and password pair. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (uc *UserUseCase) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := uc.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if apperrors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := uc.passwordHasher.Verify([]byte(password), user.PasswordHash)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to verify password")
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}
	return user, nil
}

// GetUserByEmail retrieves a platform user by email.
func (uc *UserUseCase) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return uc.userRepo.GetByEmail(ctx, normalizeEmail(email))
}

// RevealMFASecret opens the sealed MFA secret of a user. Secrets sealed under
// the secondary KEK still open during a rotation window.
func (uc *UserUseCase) RevealMFASecret(ctx context.Context, email string) (string, error) {
	user, err := uc.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", err
	}
	if user.MFASecret == "" {
		return "", domain.ErrMFANotEnrolled
	}
	secret, err := uc.sealer.DecryptWithKEK(user.MFASecret)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to open mfa secret")
	}
	return string(secret), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
