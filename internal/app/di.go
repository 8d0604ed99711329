// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/allisson/tenantconfig/internal/cache"
	"github.com/allisson/tenantconfig/internal/config"
	cryptoDomain "github.com/allisson/tenantconfig/internal/crypto/domain"
	cryptoService "github.com/allisson/tenantconfig/internal/crypto/service"
	"github.com/allisson/tenantconfig/internal/database"
	"github.com/allisson/tenantconfig/internal/http"
	"github.com/allisson/tenantconfig/internal/metrics"
	platformUseCase "github.com/allisson/tenantconfig/internal/platformuser/usecase"
	"github.com/allisson/tenantconfig/internal/preflight"
	"github.com/allisson/tenantconfig/internal/rotation"
	tenantUseCase "github.com/allisson/tenantconfig/internal/tenant/usecase"
	configDomain "github.com/allisson/tenantconfig/internal/tenantconfig/domain"
	configHTTP "github.com/allisson/tenantconfig/internal/tenantconfig/http"
	configRepository "github.com/allisson/tenantconfig/internal/tenantconfig/repository"
	configUseCase "github.com/allisson/tenantconfig/internal/tenantconfig/usecase"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger      *slog.Logger
	db          *sql.DB
	txManager   database.TxManager
	datasources *database.Registry
	preflight   *preflight.Pool
	configCache *cache.TenantCache[configDomain.Value]

	// Metrics
	metricsProvider  *metrics.Provider
	businessMetrics  metrics.BusinessMetrics
	subsystemMetrics metrics.SubsystemMetrics

	// Crypto
	kmsService  cryptoService.KMSService
	keyMaterial *cryptoDomain.KeyMaterial
	envelope    *cryptoService.EnvelopeService

	// Repositories
	tenantRepo       tenantUseCase.TenantRepository
	configRepo       *configRepository.RoutedConfigRepository
	globalConfigRepo rotation.GlobalConfigStore
	userRepo         platformUseCase.UserRepository

	// Use Cases
	tenantUseCase tenantUseCase.UseCase
	configUseCase configUseCase.ConfigUseCase
	userUseCase   platformUseCase.UseCase
	rotationJob   *rotation.Job

	// Servers
	configHandler *configHTTP.ConfigHandler
	httpServer    *http.Server
	metricsServer *http.MetricsServer

	// Initialization flags and mutex for thread-safety
	mu                   sync.Mutex
	loggerInit           sync.Once
	dbInit               sync.Once
	txManagerInit        sync.Once
	datasourcesInit      sync.Once
	preflightInit        sync.Once
	configCacheInit      sync.Once
	metricsProviderInit  sync.Once
	businessMetricsInit  sync.Once
	subsystemMetricsInit sync.Once
	kmsServiceInit       sync.Once
	keyMaterialInit      sync.Once
	envelopeInit         sync.Once
	tenantRepoInit       sync.Once
	configRepoInit       sync.Once
	globalConfigRepoInit sync.Once
	userRepoInit         sync.Once
	tenantUseCaseInit    sync.Once
	configUseCaseInit    sync.Once
	userUseCaseInit      sync.Once
	rotationJobInit      sync.Once
	configHandlerInit    sync.Once
	httpServerInit       sync.Once
	metricsServerInit    sync.Once
	initErrors           map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the primary database connection.
func (c *Container) DB() (*sql.DB, error) {
	var err error
	c.dbInit.Do(func() {
		c.db, err = c.initDB()
		if err != nil {
			c.initErrors["db"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// TxManager returns the transaction manager of the primary database.
func (c *Container) TxManager() (database.TxManager, error) {
	var err error
	c.txManagerInit.Do(func() {
		c.txManager, err = c.initTxManager()
		if err != nil {
			c.initErrors["txManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["txManager"]; exists {
		return nil, storedErr
	}
	return c.txManager, nil
}

// Datasources returns the registry of the primary and every DB_EXTRA_DATASOURCES pool.
func (c *Container) Datasources() (*database.Registry, error) {
	var err error
	c.datasourcesInit.Do(func() {
		c.datasources, err = c.initDatasources()
		if err != nil {
			c.initErrors["datasources"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["datasources"]; exists {
		return nil, storedErr
	}
	return c.datasources, nil
}

// Preflight returns the datasource circuit breaker pool.
func (c *Container) Preflight() (*preflight.Pool, error) {
	var err error
	c.preflightInit.Do(func() {
		c.preflight, err = c.initPreflight()
		if err != nil {
			c.initErrors["preflight"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["preflight"]; exists {
		return nil, storedErr
	}
	return c.preflight, nil
}

// ConfigCache returns the tenant config cache.
func (c *Container) ConfigCache() (*cache.TenantCache[configDomain.Value], error) {
	var err error
	c.configCacheInit.Do(func() {
		c.configCache, err = c.initConfigCache()
		if err != nil {
			c.initErrors["configCache"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["configCache"]; exists {
		return nil, storedErr
	}
	return c.configCache, nil
}

// MetricsProvider returns the OpenTelemetry provider backing /metrics.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	var err error
	c.metricsProviderInit.Do(func() {
		c.metricsProvider, err = metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metricsProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the operation counters. A no-op implementation is
// returned when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	var err error
	c.businessMetricsInit.Do(func() {
		c.businessMetrics, err = c.initBusinessMetrics()
		if err != nil {
			c.initErrors["businessMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["businessMetrics"]; exists {
		return nil, storedErr
	}
	return c.businessMetrics, nil
}

// SubsystemMetrics returns the cache and breaker instruments.
func (c *Container) SubsystemMetrics() (metrics.SubsystemMetrics, error) {
	var err error
	c.subsystemMetricsInit.Do(func() {
		c.subsystemMetrics, err = c.initSubsystemMetrics()
		if err != nil {
			c.initErrors["subsystemMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["subsystemMetrics"]; exists {
		return nil, storedErr
	}
	return c.subsystemMetrics, nil
}

// HTTPServer returns the admin API server.
func (c *Container) HTTPServer() (*http.Server, error) {
	var err error
	c.httpServerInit.Do(func() {
		c.httpServer, err = c.initHTTPServer()
		if err != nil {
			c.initErrors["httpServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the Prometheus scrape server.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	var err error
	c.metricsServerInit.Do(func() {
		c.metricsServer, err = c.initMetricsServer()
		if err != nil {
			c.initErrors["metricsServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// Shutdown releases every initialized resource in reverse dependency order.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}
	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}
	if c.configCache != nil {
		if err := c.configCache.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("cache close: %w", err))
		}
	}
	if c.datasources != nil {
		if err := c.datasources.Close(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("datasources close: %w", err))
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}
	if c.keyMaterial != nil {
		c.keyMaterial.Close()
	}
	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}
	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func (c *Container) initTxManager() (database.TxManager, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

// initDatasources registers the primary pool and opens every extra datasource
// with the primary's driver and pool settings.
func (c *Container) initDatasources() (*database.Registry, error) {
	if c.config.DBDriver != database.DriverPostgres && c.config.DBDriver != database.DriverMySQL {
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for datasources: %w", err)
	}

	registry := database.NewRegistry()
	registry.Register(&database.Datasource{
		Name:       database.PrimaryDatasource,
		Driver:     c.config.DBDriver,
		Identifier: c.config.DBConnectionString,
		DB:         db,
	})

	extra, err := database.ParseDatasources(c.config.DBExtraDatasources)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DB_EXTRA_DATASOURCES: %w", err)
	}
	for name, dsn := range extra {
		extraDB, err := database.Connect(database.Config{
			Driver:             c.config.DBDriver,
			ConnectionString:   dsn,
			MaxOpenConnections: c.config.DBMaxOpenConnections,
			MaxIdleConnections: c.config.DBMaxIdleConnections,
			ConnMaxLifetime:    c.config.DBConnMaxLifetime,
		})
		if err != nil {
			_ = registry.Close(context.Background())
			return nil, fmt.Errorf("failed to connect to datasource %s: %w", name, err)
		}
		registry.Register(&database.Datasource{
			Name:       name,
			Driver:     c.config.DBDriver,
			Identifier: dsn,
			DB:         extraDB,
		})
	}
	return registry, nil
}

func (c *Container) initPreflight() (*preflight.Pool, error) {
	subsystemMetrics, err := c.SubsystemMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get subsystem metrics for preflight: %w", err)
	}
	return preflight.NewPool(preflight.Options{
		PoolSize:         c.config.BreakerPoolSize,
		PoolTTL:          c.config.BreakerPoolTTL,
		MinRequests:      uint32(max(c.config.BreakerMinRequests, 0)),
		FailureRatio:     c.config.BreakerFailureRatio,
		Window:           c.config.BreakerWindow,
		ResetTimeout:     c.config.BreakerResetTimeout,
		CallTimeout:      c.config.BreakerCallTimeout,
		StatementTimeout: c.config.PreflightStatementTimeout,
		Logger:           c.Logger(),
		Metrics:          subsystemMetrics,
	}), nil
}

// initConfigCache creates the local cache, attaching the Redis broker when
// REDIS_URL is set.
func (c *Container) initConfigCache() (*cache.TenantCache[configDomain.Value], error) {
	subsystemMetrics, err := c.SubsystemMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get subsystem metrics for cache: %w", err)
	}

	opts := cache.Options{
		TTL:     c.config.CacheTTL,
		Logger:  c.Logger(),
		Metrics: subsystemMetrics,
	}
	if c.config.RedisURL != "" {
		opts.Broker = cache.NewRedisBroker(c.config.RedisURL, c.config.CacheChannel, c.Logger())
	} else {
		c.Logger().Warn("REDIS_URL not set, cache invalidation is local to this instance")
	}
	configCache := cache.New[configDomain.Value](opts)
	if opts.Broker != nil {
		logger := c.Logger()
		configCache.On(cache.AllTenantEvents, func(event cache.EventName, payload cache.InvalidationEvent) {
			logger.Debug("cache invalidation",
				slog.String("event", string(event)),
				slog.String("tenant_id", payload.TenantID.String()),
				slog.String("key", payload.Key),
				slog.String("source_id", payload.SourceID),
			)
		})
		configCache.Connect(context.Background())
	}
	return configCache, nil
}

func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	if !c.config.MetricsEnabled {
		return metrics.NewNoOpBusinessMetrics(), nil
	}
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for business metrics: %w", err)
	}
	return metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
}

func (c *Container) initSubsystemMetrics() (metrics.SubsystemMetrics, error) {
	if !c.config.MetricsEnabled {
		return metrics.NewNoOpSubsystemMetrics(), nil
	}
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for subsystem metrics: %w", err)
	}
	return metrics.NewSubsystemMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
}

func (c *Container) initHTTPServer() (*http.Server, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for http server: %w", err)
	}
	pool, err := c.Preflight()
	if err != nil {
		return nil, fmt.Errorf("failed to get preflight for http server: %w", err)
	}
	handler, err := c.ConfigHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get config handler for http server: %w", err)
	}
	tenants, err := c.TenantUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant use case for http server: %w", err)
	}

	var provider *metrics.Provider
	if c.config.MetricsEnabled {
		provider, err = c.MetricsProvider()
		if err != nil {
			return nil, fmt.Errorf("failed to get metrics provider for http server: %w", err)
		}
	}

	server := http.NewServer(db, pool, c.config.ServerHost, c.config.ServerPort, c.Logger())
	// The rate limiter janitor lives as long as the process.
	server.SetupRouter(context.Background(), c.config, handler, tenants, provider, c.config.MetricsNamespace)
	return server, nil
}

func (c *Container) initMetricsServer() (*http.MetricsServer, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
	}
	return http.NewMetricsServer(c.config.ServerHost, c.config.MetricsPort, c.Logger(), provider), nil
}
