// Package usecase implements tenant registration and lookup.
package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/allisson/tenantconfig/internal/database"
	"github.com/allisson/tenantconfig/internal/tenant/domain"
	appValidation "github.com/allisson/tenantconfig/internal/validation"
)

// CreateTenantInput contains the data required to register a tenant.
type CreateTenantInput struct {
	Name       string
	Datasource string
}

// TenantRepository defines tenant persistence.
type TenantRepository interface {
	Create(ctx context.Context, tenant *domain.Tenant) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)
	ListActive(ctx context.Context) ([]*domain.Tenant, error)
}

// UseCase defines tenant operations.
type UseCase interface {
	CreateTenant(ctx context.Context, input CreateTenantInput) (*domain.Tenant, error)
	GetTenant(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)
	ListActiveTenants(ctx context.Context) ([]*domain.Tenant, error)
}

type tenantUseCase struct {
	repo TenantRepository
}

// NewTenantUseCase creates a tenant UseCase.
func NewTenantUseCase(repo TenantRepository) UseCase {
	return &tenantUseCase{repo: repo}
}

func (uc *tenantUseCase) CreateTenant(ctx context.Context, input CreateTenantInput) (*domain.Tenant, error) {
	err := validation.ValidateStruct(&input,
		validation.Field(&input.Name,
			validation.Required.Error("name is required"),
			appValidation.NotBlank,
			validation.Length(1, 255),
		),
		validation.Field(&input.Datasource, validation.Length(0, 64)),
	)
	if err != nil {
		return nil, appValidation.WrapValidationError(err)
	}

	datasource := strings.TrimSpace(input.Datasource)
	if datasource == "" {
		datasource = database.PrimaryDatasource
	}

	tenant := &domain.Tenant{
		ID:         uuid.Must(uuid.NewV7()),
		Name:       strings.TrimSpace(input.Name),
		Datasource: datasource,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := uc.repo.Create(ctx, tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}

func (uc *tenantUseCase) GetTenant(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	return uc.repo.GetByID(ctx, id)
}

func (uc *tenantUseCase) ListActiveTenants(ctx context.Context) ([]*domain.Tenant, error) {
	return uc.repo.ListActive(ctx)
}
