package commands

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	cryptoService "github.com/allisson/tenantconfig/internal/crypto/service"
	"github.com/allisson/tenantconfig/internal/database"
	platformDomain "github.com/allisson/tenantconfig/internal/platformuser/domain"
	platformUseCase "github.com/allisson/tenantconfig/internal/platformuser/usecase"
	"github.com/allisson/tenantconfig/internal/rotation"
	tenantDomain "github.com/allisson/tenantconfig/internal/tenant/domain"
	tenantUseCase "github.com/allisson/tenantconfig/internal/tenant/usecase"
)

type MockKMSService struct {
	mock.Mock
}

func (m *MockKMSService) OpenKeeper(ctx context.Context, uri string) (cryptoService.KMSKeeper, error) {
	args := m.Called(ctx, uri)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(cryptoService.KMSKeeper), args.Error(1)
}

type MockKMSKeeper struct {
	mock.Mock
}

func (m *MockKMSKeeper) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	args := m.Called(ctx, plaintext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockKMSKeeper) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	args := m.Called(ctx, ciphertext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockKMSKeeper) Close() error {
	return m.Called().Error(0)
}

type MockKeyRotator struct {
	mock.Mock
}

func (m *MockKeyRotator) RotateEncryptionKeys(ctx context.Context) (*rotation.Report, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rotation.Report), args.Error(1)
}

func (m *MockKeyRotator) StageNewKey(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockKeyRotator) CleanupExpiredKeys(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockTenantUseCase struct {
	mock.Mock
}

func (m *MockTenantUseCase) CreateTenant(
	ctx context.Context,
	input tenantUseCase.CreateTenantInput,
) (*tenantDomain.Tenant, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tenantDomain.Tenant), args.Error(1)
}

func (m *MockTenantUseCase) GetTenant(ctx context.Context, id uuid.UUID) (*tenantDomain.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tenantDomain.Tenant), args.Error(1)
}

func (m *MockTenantUseCase) ListActiveTenants(ctx context.Context) ([]*tenantDomain.Tenant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*tenantDomain.Tenant), args.Error(1)
}

type MockUserUseCase struct {
	mock.Mock
}

func (m *MockUserUseCase) CreateUser(
	ctx context.Context,
	input platformUseCase.CreateUserInput,
) (*platformDomain.User, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*platformDomain.User), args.Error(1)
}

func (m *MockUserUseCase) Authenticate(ctx context.Context, email, password string) (*platformDomain.User, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*platformDomain.User), args.Error(1)
}

func (m *MockUserUseCase) GetUserByEmail(ctx context.Context, email string) (*platformDomain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*platformDomain.User), args.Error(1)
}

func (m *MockUserUseCase) RevealMFASecret(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

type staticProber map[string]error

func (p staticProber) ProbeAll(_ context.Context, _ []*database.Datasource) map[string]error {
	return p
}
