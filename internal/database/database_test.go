package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_Error(t *testing.T) {
	cfg := Config{
		Driver:             "invalid",
		ConnectionString:   "invalid",
		MaxOpenConnections: 10,
		MaxIdleConnections: 5,
		ConnMaxLifetime:    time.Hour,
	}

	db, err := Connect(cfg)
	assert.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "sql: unknown driver")
}

func TestRegistry(t *testing.T) {
	primaryDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = primaryDB.Close() }()

	dedicatedDB, dedicatedMock, err := sqlmock.New()
	require.NoError(t, err)
	dedicatedMock.ExpectClose()

	registry := NewRegistry()
	registry.Register(&Datasource{Name: PrimaryDatasource, Driver: DriverPostgres, Identifier: "db-1", DB: primaryDB})
	registry.Register(&Datasource{Name: "eu-dedicated", Driver: DriverPostgres, Identifier: "db-2", DB: dedicatedDB})

	ds, ok := registry.Get("")
	require.True(t, ok)
	assert.Equal(t, "db-1", ds.Identifier)

	ds, ok = registry.Get("eu-dedicated")
	require.True(t, ok)
	assert.Equal(t, "db-2", ds.Identifier)

	_, ok = registry.Get("missing")
	assert.False(t, ok)
	assert.Len(t, registry.All(), 2)

	require.NoError(t, registry.Close(context.Background()))
	assert.NoError(t, dedicatedMock.ExpectationsWereMet())
}

func TestParseDatasources(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty", raw: "", want: map[string]string{}},
		{
			name: "two entries",
			raw:  "eu=postgres://eu/db; us = postgres://us/db?sslmode=disable",
			want: map[string]string{
				"eu": "postgres://eu/db",
				"us": "postgres://us/db?sslmode=disable",
			},
		},
		{name: "missing dsn", raw: "eu=", wantErr: true},
		{name: "missing separator", raw: "eu", wantErr: true},
		{name: "reserved name", raw: "primary=postgres://x/y", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDatasources(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.True(t, IsUniqueViolation(errors.New(`pq: duplicate key value violates unique constraint "tenants_name_key"`)))
	assert.True(t, IsUniqueViolation(errors.New("Error 1062 (23000): Duplicate entry 'acme' for key 'name'")))
	assert.False(t, IsUniqueViolation(errors.New("connection refused")))
}
