package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/allisson/tenantconfig/internal/database"
	apperrors "github.com/allisson/tenantconfig/internal/errors"
	tenantDomain "github.com/allisson/tenantconfig/internal/tenant/domain"
	"github.com/allisson/tenantconfig/internal/tenantconfig/domain"
)

// DatasourceStore is the config persistence a routed repository delegates to.
type DatasourceStore interface {
	Upsert(ctx context.Context, record *domain.ConfigRecord) error
	Get(ctx context.Context, tenantID uuid.UUID, key domain.Key) (*domain.ConfigRecord, error)
	GetMany(ctx context.Context, tenantID uuid.UUID, keys []domain.Key) ([]*domain.ConfigRecord, error)
	Delete(ctx context.Context, tenantID uuid.UUID, key domain.Key) (bool, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*domain.ConfigRecord, error)
	ListEncryptedForUpdate(ctx context.Context, tenantID uuid.UUID) ([]*domain.ConfigRecord, error)
	UpdateWrappedDek(ctx context.Context, tenantID uuid.UUID, key domain.Key, wrappedDek string) error
}

// TenantResolver returns the tenant that owns a config row.
type TenantResolver interface {
	GetTenant(ctx context.Context, id uuid.UUID) (*tenantDomain.Tenant, error)
}

// Datasources resolves datasource names.
type Datasources interface {
	Get(name string) (*database.Datasource, bool)
}

// ForDatasource returns the driver specific config repository for ds.
func ForDatasource(ds *database.Datasource) (DatasourceStore, error) {
	switch ds.Driver {
	case database.DriverPostgres:
		return NewPostgreSQLConfigRepository(ds.DB), nil
	case database.DriverMySQL:
		return NewMySQLConfigRepository(ds.DB), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", ds.Driver)
	}
}

// RoutedConfigRepository sends each call to the datasource of the tenant it
// targets, so tenants on dedicated databases read and write their own rows.
type RoutedConfigRepository struct {
	tenants     TenantResolver
	datasources Datasources

	mu     sync.Mutex
	stores map[string]DatasourceStore
}

// NewRoutedConfigRepository creates a RoutedConfigRepository.
func NewRoutedConfigRepository(tenants TenantResolver, datasources Datasources) *RoutedConfigRepository {
	return &RoutedConfigRepository{
		tenants:     tenants,
		datasources: datasources,
		stores:      make(map[string]DatasourceStore),
	}
}

func (r *RoutedConfigRepository) Upsert(ctx context.Context, record *domain.ConfigRecord) error {
	store, err := r.storeFor(ctx, record.TenantID)
	if err != nil {
		return err
	}
	return store.Upsert(ctx, record)
}

func (r *RoutedConfigRepository) Get(
	ctx context.Context,
	tenantID uuid.UUID,
	key domain.Key,
) (*domain.ConfigRecord, error) {
	store, err := r.storeFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return store.Get(ctx, tenantID, key)
}

func (r *RoutedConfigRepository) GetMany(
	ctx context.Context,
	tenantID uuid.UUID,
	keys []domain.Key,
) ([]*domain.ConfigRecord, error) {
	store, err := r.storeFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return store.GetMany(ctx, tenantID, keys)
}

func (r *RoutedConfigRepository) Delete(ctx context.Context, tenantID uuid.UUID, key domain.Key) (bool, error) {
	store, err := r.storeFor(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return store.Delete(ctx, tenantID, key)
}

func (r *RoutedConfigRepository) List(ctx context.Context, tenantID uuid.UUID) ([]*domain.ConfigRecord, error) {
	store, err := r.storeFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return store.List(ctx, tenantID)
}

// Store returns the repository bound to ds, reusing one instance per datasource.
func (r *RoutedConfigRepository) Store(ds *database.Datasource) (DatasourceStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if store, ok := r.stores[ds.Name]; ok {
		return store, nil
	}
	store, err := ForDatasource(ds)
	if err != nil {
		return nil, err
	}
	r.stores[ds.Name] = store
	return store, nil
}

func (r *RoutedConfigRepository) storeFor(ctx context.Context, tenantID uuid.UUID) (DatasourceStore, error) {
	tenant, err := r.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	ds, ok := r.datasources.Get(tenant.Datasource)
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "unknown datasource %q", tenant.Datasource)
	}
	return r.Store(ds)
}
