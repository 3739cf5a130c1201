package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"finboard/internal/audit"
	"finboard/internal/auth"
	"finboard/internal/bucketing"
	"finboard/internal/cache"
	"finboard/internal/client"
	"finboard/internal/config"
	"finboard/internal/encryption"
	"finboard/internal/hashing"
	"finboard/internal/otp"
	"finboard/internal/repository/scylla"
	"finboard/internal/service"
	"finboard/internal/stocks"
	"finboard/internal/tls"
	"finboard/internal/util"
)

// Factory manages the lifecycle of all application dependencies. ScyllaDB is
// required; Redis, Kafka, Elasticsearch and ClickHouse are optional and the
// services that use them degrade when they are absent.
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher           *hashing.Hasher
	bucketingManager *bucketing.BucketingManager
	cache            *cache.Cache
	tokenManager     *auth.TokenManager

	// Repositories
	userRepository         scylla.UserRepository
	otpRepository          scylla.OTPRepository
	activityRepository     scylla.ActivityRepository
	watchlistRepository    scylla.WatchlistRepository
	notificationRepository scylla.NotificationRepository
	onboardingRepository   scylla.OnboardingRepository

	// Request plumbing
	gate     *auth.Gate
	recorder *audit.Recorder

	// Services
	otpService          *otp.Service
	quoteProvider       stocks.QuoteProvider
	accountService      *service.AccountService
	stockService        *service.StockService
	watchlistService    *service.WatchlistService
	notificationService *service.NotificationService
	activityService     *service.ActivityService

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		tlsConfig := &tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		}
		factory.tlsManager = tls.NewTLSManager(tlsConfig)
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeManagers()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := factory.initializeTokenManager(ctx); err != nil {
		return nil, err
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.Bool("cache_enabled", factory.cache.Enabled()),
	)

	return factory, nil
}

// initializeClients initializes the external service clients with health
// checks. Optional subsystems left unconfigured are skipped silently; a
// configured subsystem that fails to come up is a boot error in production
// and a warning in development.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// ScyllaDB is the primary store and always required.
	if scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	// Redis backs the cache; no URL means the cache stays disabled.
	if f.config.Redis.URL == "" {
		util.Info("No Redis URL configured - cache disabled")
	} else if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// Kafka carries OTP deliveries and the activity stream. Best effort.
	if len(f.config.Kafka.Brokers) == 0 {
		util.Info("No Kafka brokers configured - OTP deliveries fall back to the log notifier")
	} else if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
		util.Info("Kafka producer initialized")
	}

	// Elasticsearch backs instrument search.
	if f.config.Elasticsearch.URL == "" {
		util.Info("No Elasticsearch URL configured - instrument search disabled")
	} else if esClient, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
	} else {
		f.esClient = esClient
		util.Info("Elasticsearch client initialized and healthy")
	}

	// ClickHouse backs activity analytics.
	if f.config.Clickhouse.URL == "" {
		util.Info("No ClickHouse URL configured - activity analytics disabled")
	} else if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = chClient
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
		} else {
			util.Info("ClickHouse client initialized and healthy")
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher(f.config)
	f.bucketingManager = bucketing.NewBucketingManager(f.config)
	f.cache = cache.New(f.redisClient, f.config)
}

// initializeTokenManager resolves the signing secret, via KMS when enabled.
// Production cannot run without one; development falls back to a fixed
// secret so local work does not require secret material.
func (f *Factory) initializeTokenManager(ctx context.Context) error {
	secret, err := encryption.NewSecretResolver(f.config).ResolveSigningSecret(ctx)
	if err != nil {
		if f.config.IsProduction() {
			return fmt.Errorf("failed to resolve signing secret: %w", err)
		}
		util.Warn("Signing secret unavailable - using insecure development secret", util.ErrorField(err))
		secret = "finboard-dev-signing-secret"
	}

	f.tokenManager = auth.NewTokenManager(secret, f.config.Auth.TokenTTL, f.config.Auth.Issuer)
	return nil
}

// ==============================
// Repositories
// ==============================

func (f *Factory) UserRepository() scylla.UserRepository {
	if f.userRepository == nil {
		f.userRepository = scylla.NewUserRepository(f.ScyllaClient(), f.BucketingManager())
	}
	return f.userRepository
}

func (f *Factory) OTPRepository() scylla.OTPRepository {
	if f.otpRepository == nil {
		f.otpRepository = scylla.NewOTPRepository(f.ScyllaClient())
	}
	return f.otpRepository
}

func (f *Factory) ActivityRepository() scylla.ActivityRepository {
	if f.activityRepository == nil {
		f.activityRepository = scylla.NewActivityRepository(f.ScyllaClient(), f.BucketingManager())
	}
	return f.activityRepository
}

func (f *Factory) WatchlistRepository() scylla.WatchlistRepository {
	if f.watchlistRepository == nil {
		f.watchlistRepository = scylla.NewWatchlistRepository(f.ScyllaClient())
	}
	return f.watchlistRepository
}

func (f *Factory) NotificationRepository() scylla.NotificationRepository {
	if f.notificationRepository == nil {
		f.notificationRepository = scylla.NewNotificationRepository(f.ScyllaClient())
	}
	return f.notificationRepository
}

func (f *Factory) OnboardingRepository() scylla.OnboardingRepository {
	if f.onboardingRepository == nil {
		f.onboardingRepository = scylla.NewOnboardingRepository(f.ScyllaClient())
	}
	return f.onboardingRepository
}

// ==============================
// Request plumbing
// ==============================

func (f *Factory) Gate() *auth.Gate {
	if f.gate == nil {
		f.gate = auth.NewGate(f.TokenManager(), f.UserRepository())
	}
	return f.gate
}

// Recorder assembles the audit fan-out: the Scylla store sink always, Kafka
// and ClickHouse sinks when those clients are up.
func (f *Factory) Recorder() *audit.Recorder {
	if f.recorder == nil {
		sinks := []audit.Sink{audit.NewStoreSink(f.ActivityRepository())}
		if f.kafkaProducer != nil {
			sinks = append(sinks, audit.NewKafkaSink(f.kafkaProducer, f.config))
		}
		if f.clickhouseClient != nil {
			sinks = append(sinks, audit.NewClickHouseSink(f.clickhouseClient, f.config))
		}
		f.recorder = audit.NewRecorder(sinks...)
	}
	return f.recorder
}

// ==============================
// Services
// ==============================

func (f *Factory) OTPService() *otp.Service {
	if f.otpService == nil {
		var notifier otp.Notifier = otp.LogNotifier{}
		if f.kafkaProducer != nil {
			notifier = otp.NewKafkaNotifier(f.kafkaProducer, f.config)
		}
		f.otpService = otp.NewService(f.OTPRepository(), notifier, f.config)
	}
	return f.otpService
}

func (f *Factory) QuoteProvider() stocks.QuoteProvider {
	if f.quoteProvider == nil {
		f.quoteProvider = stocks.NewHTTPQuoteProvider(f.config)
	}
	return f.quoteProvider
}

func (f *Factory) AccountService() *service.AccountService {
	if f.accountService == nil {
		f.accountService = service.NewAccountService(
			f.UserRepository(),
			f.OnboardingRepository(),
			f.NotificationRepository(),
			f.Hasher(),
			f.OTPService(),
			util.Get(),
		)
	}
	return f.accountService
}

func (f *Factory) StockService() *service.StockService {
	if f.stockService == nil {
		f.stockService = service.NewStockService(
			f.QuoteProvider(),
			f.Cache(),
			f.esClient,
			f.config,
			util.Get(),
		)
	}
	return f.stockService
}

func (f *Factory) WatchlistService() *service.WatchlistService {
	if f.watchlistService == nil {
		f.watchlistService = service.NewWatchlistService(
			f.WatchlistRepository(),
			f.StockService(),
			util.Get(),
		)
	}
	return f.watchlistService
}

func (f *Factory) NotificationService() *service.NotificationService {
	if f.notificationService == nil {
		f.notificationService = service.NewNotificationService(
			f.NotificationRepository(),
			util.Get(),
		)
	}
	return f.notificationService
}

func (f *Factory) ActivityService() *service.ActivityService {
	if f.activityService == nil {
		f.activityService = service.NewActivityService(
			f.ActivityRepository(),
			f.clickhouseClient,
			util.Get(),
		)
	}
	return f.activityService
}

// ==============================
// Health Checks
// ==============================

// HealthCheck reports per-subsystem status. Optional subsystems that were
// never configured do not appear; an absent backend is not a failure.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	return len(f.HealthCheck(ctx)) == 0
}

// Close shuts everything down in dependency order: the audit recorder first
// so in-flight entries drain into still-open sinks, then the clients.
func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.recorder != nil {
			f.recorder.Close()
			util.Info("Audit recorder drained")
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

// ==============================
// Getters
// ==============================

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) ScyllaClient() *scylla.ScyllaClient {
	return f.scyllaClient
}

func (f *Factory) Hasher() *hashing.Hasher {
	return f.hasher
}

func (f *Factory) BucketingManager() *bucketing.BucketingManager {
	return f.bucketingManager
}

func (f *Factory) Cache() *cache.Cache {
	return f.cache
}

// RedisClient returns the raw client, or nil when no cache backend is
// configured.
func (f *Factory) RedisClient() *client.RedisClient {
	return f.redisClient
}

func (f *Factory) TokenManager() *auth.TokenManager {
	return f.tokenManager
}
