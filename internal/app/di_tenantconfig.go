package app

import (
	"fmt"

	"github.com/allisson/tenantconfig/internal/database"
	platformRepository "github.com/allisson/tenantconfig/internal/platformuser/repository"
	platformUseCase "github.com/allisson/tenantconfig/internal/platformuser/usecase"
	"github.com/allisson/tenantconfig/internal/rotation"
	tenantRepository "github.com/allisson/tenantconfig/internal/tenant/repository"
	tenantUseCase "github.com/allisson/tenantconfig/internal/tenant/usecase"
	configDomain "github.com/allisson/tenantconfig/internal/tenantconfig/domain"
	configHTTP "github.com/allisson/tenantconfig/internal/tenantconfig/http"
	configRepository "github.com/allisson/tenantconfig/internal/tenantconfig/repository"
	configUseCase "github.com/allisson/tenantconfig/internal/tenantconfig/usecase"
)

// TenantRepository returns the tenant repository for the primary database.
func (c *Container) TenantRepository() (tenantUseCase.TenantRepository, error) {
	var err error
	c.tenantRepoInit.Do(func() {
		c.tenantRepo, err = c.initTenantRepository()
		if err != nil {
			c.initErrors["tenantRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["tenantRepo"]; exists {
		return nil, storedErr
	}
	return c.tenantRepo, nil
}

// TenantUseCase returns the tenant use case.
func (c *Container) TenantUseCase() (tenantUseCase.UseCase, error) {
	var err error
	c.tenantUseCaseInit.Do(func() {
		var repo tenantUseCase.TenantRepository
		repo, err = c.TenantRepository()
		if err != nil {
			err = fmt.Errorf("failed to get tenant repository for tenant use case: %w", err)
			c.initErrors["tenantUseCase"] = err
			return
		}
		c.tenantUseCase = tenantUseCase.NewTenantUseCase(repo)
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["tenantUseCase"]; exists {
		return nil, storedErr
	}
	return c.tenantUseCase, nil
}

// ConfigRepository returns the tenant config repository routed by tenant datasource.
func (c *Container) ConfigRepository() (*configRepository.RoutedConfigRepository, error) {
	var err error
	c.configRepoInit.Do(func() {
		c.configRepo, err = c.initConfigRepository()
		if err != nil {
			c.initErrors["configRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["configRepo"]; exists {
		return nil, storedErr
	}
	return c.configRepo, nil
}

// GlobalConfigRepository returns the platform config repository, or nil when
// PLATFORM_CONFIG_ENABLED is false.
func (c *Container) GlobalConfigRepository() (rotation.GlobalConfigStore, error) {
	var err error
	c.globalConfigRepoInit.Do(func() {
		c.globalConfigRepo, err = c.initGlobalConfigRepository()
		if err != nil {
			c.initErrors["globalConfigRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["globalConfigRepo"]; exists {
		return nil, storedErr
	}
	return c.globalConfigRepo, nil
}

// UserRepository returns the platform user repository.
func (c *Container) UserRepository() (platformUseCase.UserRepository, error) {
	var err error
	c.userRepoInit.Do(func() {
		c.userRepo, err = c.initUserRepository()
		if err != nil {
			c.initErrors["userRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["userRepo"]; exists {
		return nil, storedErr
	}
	return c.userRepo, nil
}

// ConfigUseCase returns the config store, wrapped with metrics when enabled.
func (c *Container) ConfigUseCase() (configUseCase.ConfigUseCase, error) {
	var err error
	c.configUseCaseInit.Do(func() {
		c.configUseCase, err = c.initConfigUseCase()
		if err != nil {
			c.initErrors["configUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["configUseCase"]; exists {
		return nil, storedErr
	}
	return c.configUseCase, nil
}

// UserUseCase returns the platform user use case.
func (c *Container) UserUseCase() (platformUseCase.UseCase, error) {
	var err error
	c.userUseCaseInit.Do(func() {
		c.userUseCase, err = c.initUserUseCase()
		if err != nil {
			c.initErrors["userUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["userUseCase"]; exists {
		return nil, storedErr
	}
	return c.userUseCase, nil
}

// RotationJob returns the key rotation job.
func (c *Container) RotationJob() (*rotation.Job, error) {
	var err error
	c.rotationJobInit.Do(func() {
		c.rotationJob, err = c.initRotationJob()
		if err != nil {
			c.initErrors["rotationJob"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["rotationJob"]; exists {
		return nil, storedErr
	}
	return c.rotationJob, nil
}

// ConfigHandler returns the config HTTP handler.
func (c *Container) ConfigHandler() (*configHTTP.ConfigHandler, error) {
	var err error
	c.configHandlerInit.Do(func() {
		var uc configUseCase.ConfigUseCase
		uc, err = c.ConfigUseCase()
		if err != nil {
			err = fmt.Errorf("failed to get config use case for config handler: %w", err)
			c.initErrors["configHandler"] = err
			return
		}
		c.configHandler = configHTTP.NewConfigHandler(uc, c.Logger())
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["configHandler"]; exists {
		return nil, storedErr
	}
	return c.configHandler, nil
}

func (c *Container) initTenantRepository() (tenantUseCase.TenantRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tenant repository: %w", err)
	}

	switch c.config.DBDriver {
	case database.DriverPostgres:
		return tenantRepository.NewPostgreSQLTenantRepository(db), nil
	case database.DriverMySQL:
		return tenantRepository.NewMySQLTenantRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initConfigRepository() (*configRepository.RoutedConfigRepository, error) {
	tenants, err := c.TenantUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant use case for config repository: %w", err)
	}
	registry, err := c.Datasources()
	if err != nil {
		return nil, fmt.Errorf("failed to get datasources for config repository: %w", err)
	}
	return configRepository.NewRoutedConfigRepository(tenants, registry), nil
}

func (c *Container) initGlobalConfigRepository() (rotation.GlobalConfigStore, error) {
	if !c.config.PlatformConfigEnabled {
		return nil, nil
	}
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for global config repository: %w", err)
	}

	switch c.config.DBDriver {
	case database.DriverPostgres:
		return configRepository.NewPostgreSQLGlobalConfigRepository(db), nil
	case database.DriverMySQL:
		return configRepository.NewMySQLGlobalConfigRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initUserRepository() (platformUseCase.UserRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for user repository: %w", err)
	}

	switch c.config.DBDriver {
	case database.DriverPostgres:
		return platformRepository.NewPostgreSQLUserRepository(db), nil
	case database.DriverMySQL:
		return platformRepository.NewMySQLUserRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) platformDefaults() configDomain.PlatformDefaults {
	return configDomain.PlatformDefaults{
		Identity: configDomain.BrandingIdentity{
			CompanyName:  c.config.DefaultCompanyName,
			SupportEmail: c.config.DefaultSupportEmail,
		},
		Colors: configDomain.BrandingColors{
			Primary:   c.config.DefaultPrimaryColor,
			Secondary: c.config.DefaultSecondaryColor,
		},
		Logo: configDomain.BrandingLogo{LogoURL: c.config.DefaultLogoURL},
		Tax: configDomain.TaxRules{
			DefaultRate:      c.config.DefaultTaxRate,
			PricesIncludeTax: c.config.DefaultPricesIncludeTax,
		},
		Image: configDomain.ImageRules{
			MaxWidth:  c.config.DefaultImageMaxWidth,
			MaxHeight: c.config.DefaultImageMaxHeight,
			MaxBytes:  int64(c.config.DefaultImageMaxBytes),
		},
	}
}

func (c *Container) initConfigUseCase() (configUseCase.ConfigUseCase, error) {
	repo, err := c.ConfigRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get config repository for config use case: %w", err)
	}
	envelope, err := c.EnvelopeService()
	if err != nil {
		return nil, fmt.Errorf("failed to get envelope service for config use case: %w", err)
	}
	configCache, err := c.ConfigCache()
	if err != nil {
		return nil, fmt.Errorf("failed to get cache for config use case: %w", err)
	}

	baseUseCase := configUseCase.NewConfigUseCase(repo, envelope, configCache, c.platformDefaults(), c.Logger())

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for config use case: %w", err)
		}
		return configUseCase.NewConfigUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}
	return baseUseCase, nil
}

func (c *Container) initUserUseCase() (platformUseCase.UseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for user use case: %w", err)
	}
	repo, err := c.UserRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get user repository for user use case: %w", err)
	}
	envelope, err := c.EnvelopeService()
	if err != nil {
		return nil, fmt.Errorf("failed to get envelope service for user use case: %w", err)
	}
	userUseCase, err := platformUseCase.NewUserUseCase(txManager, repo, envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to create user use case: %w", err)
	}
	return userUseCase, nil
}

func (c *Container) initRotationJob() (*rotation.Job, error) {
	keys, err := c.KeyMaterial()
	if err != nil {
		return nil, fmt.Errorf("failed to get key material for rotation: %w", err)
	}
	envelope, err := c.EnvelopeService()
	if err != nil {
		return nil, fmt.Errorf("failed to get envelope service for rotation: %w", err)
	}
	tenants, err := c.TenantUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant use case for rotation: %w", err)
	}
	registry, err := c.Datasources()
	if err != nil {
		return nil, fmt.Errorf("failed to get datasources for rotation: %w", err)
	}
	configRepo, err := c.ConfigRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get config repository for rotation: %w", err)
	}
	pool, err := c.Preflight()
	if err != nil {
		return nil, fmt.Errorf("failed to get preflight for rotation: %w", err)
	}
	configCache, err := c.ConfigCache()
	if err != nil {
		return nil, fmt.Errorf("failed to get cache for rotation: %w", err)
	}
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for rotation: %w", err)
	}
	users, err := c.UserRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get user repository for rotation: %w", err)
	}
	global, err := c.GlobalConfigRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get global config repository for rotation: %w", err)
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for rotation: %w", err)
	}

	return rotation.NewJob(rotation.Options{
		Keys:        keys,
		Envelope:    envelope,
		Tenants:     tenants,
		Datasources: registry,
		Scope: func(ds *database.Datasource) (rotation.ConfigStore, database.TxManager, error) {
			store, err := configRepo.Store(ds)
			if err != nil {
				return nil, nil, err
			}
			return store, database.NewTxManager(ds.DB), nil
		},
		Preflight:           pool,
		Cache:               configCache,
		PlatformTx:          txManager,
		MFA:                 users,
		Global:              global,
		GracePeriod:         c.config.RotationGracePeriod,
		SecondaryExpiresAt:  c.config.KEKSecondaryExpiry(),
		StrictPlatformScope: c.config.RotationStrictPlatformScope,
		Logger:              c.Logger(),
		Metrics:             businessMetrics,
	}), nil
}
