package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/tenantconfig/internal/database"
	"github.com/allisson/tenantconfig/internal/tenantconfig/domain"
)

var configRowColumns = []string{"tenant_id", "config_key", "value_plain", "secret_ciphertext", "wrapped_dek", "updated_at"}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestPostgreSQLConfigRepository_Upsert(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLConfigRepository(db)
	ctx := context.Background()
	tenantID := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	t.Run("plain record", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (tenant_id, config_key) DO UPDATE")).
			WithArgs(
				tenantID,
				"tax.rules",
				sql.NullString{String: `{"default_rate":0.2}`, Valid: true},
				sql.NullString{},
				sql.NullString{},
				now,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Upsert(ctx, &domain.ConfigRecord{
			TenantID: tenantID, Key: domain.KeyTaxRules, ValuePlain: []byte(`{"default_rate":0.2}`), UpdatedAt: now,
		})
		require.NoError(t, err)
	})

	t.Run("encrypted record", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tenant_configs")).
			WithArgs(
				tenantID,
				"mail.smtp",
				sql.NullString{},
				sql.NullString{String: "aes-gcm:Y3Q=", Valid: true},
				sql.NullString{String: "aes-gcm:ZGVr", Valid: true},
				now,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Upsert(ctx, &domain.ConfigRecord{
			TenantID: tenantID, Key: domain.KeyMailSMTP,
			SecretCiphertext: "aes-gcm:Y3Q=", WrappedDek: "aes-gcm:ZGVr", UpdatedAt: now,
		})
		require.NoError(t, err)
	})

	t.Run("record contradicting classification is rejected before the query", func(t *testing.T) {
		err := repo.Upsert(ctx, &domain.ConfigRecord{TenantID: tenantID, Key: domain.KeyMailSMTP, ValuePlain: []byte(`{}`)})
		assert.ErrorIs(t, err, domain.ErrInvalidRecord)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLConfigRepository_Get(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLConfigRepository(db)
	ctx := context.Background()
	tenantID := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM tenant_configs WHERE tenant_id = $1 AND config_key = $2")).
		WithArgs(tenantID, "mail.smtp").
		WillReturnRows(sqlmock.NewRows(configRowColumns).
			AddRow(tenantID.String(), "mail.smtp", nil, "aes-gcm:Y3Q=", "aes-gcm:ZGVr", now))

	record, err := repo.Get(ctx, tenantID, domain.KeyMailSMTP)
	require.NoError(t, err)
	assert.Equal(t, tenantID, record.TenantID)
	assert.Equal(t, domain.KeyMailSMTP, record.Key)
	assert.Nil(t, record.ValuePlain)
	assert.Equal(t, "aes-gcm:Y3Q=", record.SecretCiphertext)
	assert.Equal(t, "aes-gcm:ZGVr", record.WrappedDek)

	mock.ExpectQuery(regexp.QuoteMeta("FROM tenant_configs")).WillReturnError(sql.ErrNoRows)
	_, err = repo.Get(ctx, tenantID, domain.KeyMailSMTP)
	assert.ErrorIs(t, err, domain.ErrConfigNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLConfigRepository_GetMany(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLConfigRepository(db)
	ctx := context.Background()
	tenantID := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("config_key = ANY($2)")).
		WithArgs(tenantID, pq.Array([]string{"branding.colors", "mail.smtp"})).
		WillReturnRows(sqlmock.NewRows(configRowColumns).
			AddRow(tenantID.String(), "branding.colors", `{"primary":"#000000"}`, nil, nil, now))

	records, err := repo.GetMany(ctx, tenantID, []domain.Key{domain.KeyBrandingColors, domain.KeyMailSMTP})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.JSONEq(t, `{"primary":"#000000"}`, string(records[0].ValuePlain))

	records, err = repo.GetMany(ctx, tenantID, nil)
	require.NoError(t, err)
	assert.Nil(t, records)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLConfigRepository_Delete(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLConfigRepository(db)
	ctx := context.Background()
	tenantID := uuid.Must(uuid.NewV7())

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM tenant_configs")).
		WithArgs(tenantID, "maps.google").
		WillReturnResult(sqlmock.NewResult(0, 1))
	deleted, err := repo.Delete(ctx, tenantID, domain.KeyMapsGoogle)
	require.NoError(t, err)
	assert.True(t, deleted)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM tenant_configs")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	deleted, err = repo.Delete(ctx, tenantID, domain.KeyMapsGoogle)
	require.NoError(t, err)
	assert.False(t, deleted)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLConfigRepository_ListEncryptedForUpdateInTx(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLConfigRepository(db)
	txManager := database.NewTxManager(db)
	tenantID := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("wrapped_dek IS NOT NULL")).
		WithArgs(tenantID).
		WillReturnRows(sqlmock.NewRows(configRowColumns).
			AddRow(tenantID.String(), "mail.smtp", nil, "aes-gcm:Y3Q=", "aes-gcm:b2xk", now).
			AddRow(tenantID.String(), "payment.stripe", nil, "aes-gcm:Y3Q=", "aes-gcm:b2xk", now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tenant_configs SET wrapped_dek = $1")).
		WithArgs("aes-gcm:bmV3", tenantID, "mail.smtp").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tenant_configs SET wrapped_dek = $1")).
		WithArgs("aes-gcm:bmV3", tenantID, "payment.stripe").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := txManager.WithTx(context.Background(), func(ctx context.Context) error {
		records, err := repo.ListEncryptedForUpdate(ctx, tenantID)
		if err != nil {
			return err
		}
		assert.Len(t, records, 2)
		for _, r := range records {
			if err := repo.UpdateWrappedDek(ctx, tenantID, r.Key, "aes-gcm:bmV3"); err != nil {
				return err
			}
		}
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrConfigNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLConfigRepository(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMySQLConfigRepository(db)
	ctx := context.Background()
	tenantID := uuid.Must(uuid.NewV7())
	tenantBytes, err := tenantID.MarshalBinary()
	require.NoError(t, err)
	now := time.Now().UTC()

	t.Run("upsert", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("ON DUPLICATE KEY UPDATE")).
			WithArgs(tenantBytes, "image.rules", sqlmock.AnyArg(), sql.NullString{}, sql.NullString{}, now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Upsert(ctx, &domain.ConfigRecord{
			TenantID: tenantID, Key: domain.KeyImageRules, ValuePlain: []byte(`{"max_width":10}`), UpdatedAt: now,
		})
		require.NoError(t, err)
	})

	t.Run("get many", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("config_key IN (?, ?)")).
			WithArgs(tenantBytes, "mail.smtp", "tax.rules").
			WillReturnRows(sqlmock.NewRows(configRowColumns).
				AddRow(tenantBytes, "mail.smtp", nil, "aes-gcm:Y3Q=", "aes-gcm:ZGVr", now).
				AddRow(tenantBytes, "tax.rules", `{"default_rate":0.1}`, nil, nil, now))

		records, err := repo.GetMany(ctx, tenantID, []domain.Key{domain.KeyMailSMTP, domain.KeyTaxRules})
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, tenantID, records[0].TenantID)
		assert.Equal(t, "aes-gcm:ZGVr", records[0].WrappedDek)
		assert.Equal(t, domain.KeyTaxRules, records[1].Key)
	})

	t.Run("list", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM tenant_configs WHERE tenant_id = ? ORDER BY config_key")).
			WithArgs(tenantBytes).
			WillReturnRows(sqlmock.NewRows(configRowColumns))

		records, err := repo.List(ctx, tenantID)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("update wrapped dek with unchanged value", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE tenant_configs SET wrapped_dek = ?")).
			WithArgs("aes-gcm:ZGVr", tenantBytes, "mail.smtp").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM tenant_configs")).
			WithArgs(tenantBytes, "mail.smtp").
			WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

		require.NoError(t, repo.UpdateWrappedDek(ctx, tenantID, domain.KeyMailSMTP, "aes-gcm:ZGVr"))
	})

	t.Run("update wrapped dek of missing record", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE tenant_configs SET wrapped_dek = ?")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM tenant_configs")).
			WillReturnError(sql.ErrNoRows)

		err := repo.UpdateWrappedDek(ctx, tenantID, domain.KeyMailSMTP, "aes-gcm:ZGVr")
		assert.ErrorIs(t, err, domain.ErrConfigNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGlobalConfigRepositories(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	columns := []string{"config_key", "value_plain", "secret_ciphertext", "wrapped_dek", "updated_at"}

	t.Run("postgresql get and upsert", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewPostgreSQLGlobalConfigRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("FROM global_configs WHERE config_key = $1")).
			WithArgs("crypto.retired_keys").
			WillReturnRows(sqlmock.NewRows(columns).AddRow("crypto.retired_keys", `[]`, nil, nil, now))
		record, err := repo.Get(ctx, "crypto.retired_keys")
		require.NoError(t, err)
		assert.Equal(t, `[]`, string(record.ValuePlain))

		mock.ExpectQuery(regexp.QuoteMeta("FROM global_configs")).WillReturnError(sql.ErrNoRows)
		_, err = repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrConfigNotFound)

		mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (config_key) DO UPDATE")).
			WithArgs("mail.smtp", sql.NullString{}, sql.NullString{String: "c", Valid: true}, sql.NullString{String: "d", Valid: true}, now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.Upsert(ctx, &domain.GlobalConfigRecord{Key: "mail.smtp", SecretCiphertext: "c", WrappedDek: "d", UpdatedAt: now}))

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mysql list encrypted and update", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewMySQLGlobalConfigRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
			WillReturnRows(sqlmock.NewRows(columns).AddRow("mail.smtp", nil, "c", "d", now))
		records, err := repo.ListEncryptedForUpdate(ctx)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "d", records[0].WrappedDek)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE global_configs SET wrapped_dek = ? WHERE config_key = ?")).
			WithArgs("e", "mail.smtp").
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.UpdateWrappedDek(ctx, "mail.smtp", "e"))

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
