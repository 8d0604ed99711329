package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/tenantconfig/internal/tenant/domain"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestPostgreSQLTenantRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLTenantRepository(db)
	tenant := &domain.Tenant{
		ID:         uuid.Must(uuid.NewV7()),
		Name:       "acme",
		Datasource: "primary",
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tenants")).
			WithArgs(tenant.ID, "acme", "primary", true, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(context.Background(), tenant))
	})

	t.Run("duplicate", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tenants")).
			WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "tenants_name_key"`))

		err := repo.Create(context.Background(), tenant)
		assert.ErrorIs(t, err, domain.ErrTenantAlreadyExists)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLTenantRepository_GetByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLTenantRepository(db)
	id := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM tenants WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "datasource", "active", "created_at"}).
			AddRow(id.String(), "acme", "eu-dedicated", true, now))

	tenant, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, tenant.ID)
	assert.Equal(t, "eu-dedicated", tenant.Datasource)

	mock.ExpectQuery(regexp.QuoteMeta("FROM tenants WHERE id = $1")).WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
}

func TestPostgreSQLTenantRepository_ListActive(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLTenantRepository(db)
	a, b := uuid.Must(uuid.NewV7()), uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE active = TRUE")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "datasource", "active", "created_at"}).
			AddRow(a.String(), "acme", "primary", true, now).
			AddRow(b.String(), "globex", "primary", true, now))

	tenants, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, a, tenants[0].ID)
	assert.Equal(t, "globex", tenants[1].Name)
}

func TestMySQLTenantRepository(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMySQLTenantRepository(db)
	id := uuid.Must(uuid.NewV7())
	idBytes, err := id.MarshalBinary()
	require.NoError(t, err)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tenants")).
		WithArgs(idBytes, "acme", "primary", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Create(context.Background(), &domain.Tenant{
		ID: id, Name: "acme", Datasource: "primary", Active: true, CreatedAt: now,
	}))

	mock.ExpectQuery(regexp.QuoteMeta("WHERE active = TRUE")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "datasource", "active", "created_at"}).
			AddRow(idBytes, "acme", "primary", true, now))
	tenants, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, tenants, 1)
	assert.Equal(t, id, tenants[0].ID)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = ?")).WithArgs(idBytes).WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
