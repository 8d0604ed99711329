package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/tenantconfig/internal/database"
	apperrors "github.com/allisson/tenantconfig/internal/errors"
	tenantDomain "github.com/allisson/tenantconfig/internal/tenant/domain"
	"github.com/allisson/tenantconfig/internal/tenantconfig/domain"
)

type tenantMap map[uuid.UUID]*tenantDomain.Tenant

func (m tenantMap) GetTenant(_ context.Context, id uuid.UUID) (*tenantDomain.Tenant, error) {
	if tenant, ok := m[id]; ok {
		return tenant, nil
	}
	return nil, tenantDomain.ErrTenantNotFound
}

func TestRoutedConfigRepository(t *testing.T) {
	ctx := context.Background()
	pgDB, pgMock := newMock(t)
	myDB, myMock := newMock(t)

	registry := database.NewRegistry()
	registry.Register(&database.Datasource{Name: database.PrimaryDatasource, Driver: database.DriverPostgres, DB: pgDB})
	registry.Register(&database.Datasource{Name: "eu-1", Driver: database.DriverMySQL, DB: myDB})

	shared := uuid.Must(uuid.NewV7())
	dedicated := uuid.Must(uuid.NewV7())
	orphan := uuid.Must(uuid.NewV7())
	tenants := tenantMap{
		shared:    {ID: shared, Active: true},
		dedicated: {ID: dedicated, Datasource: "eu-1", Active: true},
		orphan:    {ID: orphan, Datasource: "gone", Active: true},
	}
	repo := NewRoutedConfigRepository(tenants, registry)

	t.Run("shared tenant uses the primary", func(t *testing.T) {
		pgMock.ExpectExec(regexp.QuoteMeta("DELETE FROM tenant_configs WHERE tenant_id = $1")).
			WithArgs(shared, "tax.rules").
			WillReturnResult(sqlmock.NewResult(0, 1))

		deleted, err := repo.Delete(ctx, shared, domain.KeyTaxRules)
		require.NoError(t, err)
		assert.True(t, deleted)
	})

	t.Run("dedicated tenant uses its datasource", func(t *testing.T) {
		idBytes, err := dedicated.MarshalBinary()
		require.NoError(t, err)
		myMock.ExpectExec(regexp.QuoteMeta("DELETE FROM tenant_configs WHERE tenant_id = ?")).
			WithArgs(idBytes, "mail.smtp").
			WillReturnResult(sqlmock.NewResult(0, 0))

		deleted, err := repo.Delete(ctx, dedicated, domain.KeyMailSMTP)
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("unknown datasource", func(t *testing.T) {
		_, err := repo.List(ctx, orphan)
		assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	})

	t.Run("unknown tenant", func(t *testing.T) {
		_, err := repo.Get(ctx, uuid.Must(uuid.NewV7()), domain.KeyTaxRules)
		assert.ErrorIs(t, err, tenantDomain.ErrTenantNotFound)
	})

	t.Run("stores are reused per datasource", func(t *testing.T) {
		ds, _ := registry.Get("eu-1")
		first, err := repo.Store(ds)
		require.NoError(t, err)
		second, err := repo.Store(ds)
		require.NoError(t, err)
		assert.Same(t, first, second)
	})

	assert.NoError(t, pgMock.ExpectationsWereMet())
	assert.NoError(t, myMock.ExpectationsWereMet())
}

func TestForDatasource_UnsupportedDriver(t *testing.T) {
	_, err := ForDatasource(&database.Datasource{Name: "x", Driver: "sqlite"})
	assert.Error(t, err)
}
