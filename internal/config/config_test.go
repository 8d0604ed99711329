package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/tenantconfig/internal/errors"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "load default configuration",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.AppEnv)
				assert.Equal(t, "0.0.0.0", cfg.ServerHost)
				assert.Equal(t, 8080, cfg.ServerPort)
				assert.Equal(t, "postgres", cfg.DBDriver)
				assert.Equal(t, 5*time.Minute, cfg.DBConnMaxLifetime)
				assert.Equal(t, "info", cfg.LogLevel)
				assert.Equal(t, "aes-gcm", cfg.CryptoAlgorithm)
				assert.Equal(t, "retiring", cfg.KEKSecondaryRole)
				assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
				assert.Equal(t, "tenantconfig:invalidation", cfg.CacheChannel)
				assert.Equal(t, time.Hour, cfg.RotationGracePeriod)
				assert.True(t, cfg.RotationStrictPlatformScope)
				assert.True(t, cfg.PlatformConfigEnabled)
				assert.Equal(t, 256, cfg.BreakerPoolSize)
				assert.Equal(t, 30*time.Minute, cfg.BreakerPoolTTL)
				assert.Equal(t, 3*time.Second, cfg.BreakerCallTimeout)
				assert.Equal(t, 2*time.Second, cfg.PreflightStatementTimeout)
				assert.InDelta(t, 0.5, cfg.BreakerFailureRatio, 0.0001)
			},
		},
		{
			name: "load key material and broker",
			envVars: map[string]string{
				"KEK_PRIMARY":        "aa",
				"KEK_SECONDARY":      "bb",
				"KEK_SECONDARY_ROLE": "staged",
				"REDIS_URL":          "redis://localhost:6379/0",
				"CACHE_TTL_SECONDS":  "30",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "aa", cfg.KEKPrimary)
				assert.Equal(t, "bb", cfg.KEKSecondary)
				assert.Equal(t, "staged", cfg.KEKSecondaryRole)
				assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
				assert.Equal(t, 30*time.Second, cfg.CacheTTL)
			},
		},
		{
			name: "load custom breaker configuration",
			envVars: map[string]string{
				"BREAKER_POOL_SIZE":             "8",
				"BREAKER_POOL_TTL_MINUTES":      "2",
				"BREAKER_MIN_REQUESTS":          "3",
				"BREAKER_FAILURE_RATIO":         "0.75",
				"BREAKER_RESET_TIMEOUT_SECONDS": "5",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8, cfg.BreakerPoolSize)
				assert.Equal(t, 2*time.Minute, cfg.BreakerPoolTTL)
				assert.Equal(t, 3, cfg.BreakerMinRequests)
				assert.InDelta(t, 0.75, cfg.BreakerFailureRatio, 0.0001)
				assert.Equal(t, 5*time.Second, cfg.BreakerResetTimeout)
			},
		},
		{
			name: "load platform defaults",
			envVars: map[string]string{
				"DEFAULT_COMPANY_NAME": "Acme",
				"DEFAULT_TAX_RATE":     "0.21",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "Acme", cfg.DefaultCompanyName)
				assert.InDelta(t, 0.21, cfg.DefaultTaxRate, 0.0001)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()

			for key, value := range tt.envVars {
				require.NoError(t, os.Setenv(key, value))
			}

			tt.validate(t, Load())
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			AppEnv:              "development",
			KEKPrimary:          "aa",
			KEKSecondaryRole:    "retiring",
			BreakerPoolSize:     10,
			BreakerFailureRatio: 0.5,
		}
	}

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{name: "valid development", mutate: func(cfg *Config) {}},
		{
			name:    "missing primary key",
			mutate:  func(cfg *Config) { cfg.KEKPrimary = "" },
			wantErr: "KEK_PRIMARY",
		},
		{
			name:    "production without broker",
			mutate:  func(cfg *Config) { cfg.AppEnv = EnvProduction },
			wantErr: "REDIS_URL",
		},
		{
			name: "production with broker",
			mutate: func(cfg *Config) {
				cfg.AppEnv = EnvProduction
				cfg.RedisURL = "redis://cache:6379"
			},
		},
		{
			name:    "unknown secondary role",
			mutate:  func(cfg *Config) { cfg.KEKSecondaryRole = "spare" },
			wantErr: "KEK_SECONDARY_ROLE",
		},
		{
			name:    "malformed secondary expiry",
			mutate:  func(cfg *Config) { cfg.KEKSecondaryExpiresAt = "tomorrow" },
			wantErr: "KEK_SECONDARY_EXPIRES_AT",
		},
		{
			name:   "secondary expiry",
			mutate: func(cfg *Config) { cfg.KEKSecondaryExpiresAt = "2026-03-01T13:00:00Z" },
		},
		{
			name:    "zero pool size",
			mutate:  func(cfg *Config) { cfg.BreakerPoolSize = 0 },
			wantErr: "BREAKER_POOL_SIZE",
		},
		{
			name:    "ratio out of range",
			mutate:  func(cfg *Config) { cfg.BreakerFailureRatio = 1.5 },
			wantErr: "BREAKER_FAILURE_RATIO",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestKEKSecondaryExpiry(t *testing.T) {
	cfg := &Config{KEKSecondaryExpiresAt: "2026-03-01T13:00:00Z"}
	assert.Equal(t, time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC), cfg.KEKSecondaryExpiry().UTC())

	assert.True(t, (&Config{}).KEKSecondaryExpiry().IsZero())
	assert.True(t, (&Config{KEKSecondaryExpiresAt: "soon"}).KEKSecondaryExpiry().IsZero())
}

func TestGetGinMode(t *testing.T) {
	assert.Equal(t, "debug", (&Config{LogLevel: "debug"}).GetGinMode())
	assert.Equal(t, "release", (&Config{LogLevel: "warn"}).GetGinMode())
}
