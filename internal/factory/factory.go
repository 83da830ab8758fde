package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"balloon-service/internal/audit"
	"balloon-service/internal/client"
	"balloon-service/internal/config"
	"balloon-service/internal/identity"
	"balloon-service/internal/ratelimit"
	"balloon-service/internal/repository"
	"balloon-service/internal/service"
	"balloon-service/internal/store"
	"balloon-service/internal/tls"
	"balloon-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.Manager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *client.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	clickhouseClient *client.ClickHouseClient

	// Stores
	balloonStore store.Store
	statsStore   store.Store

	sink         audit.Sink
	ingressStore *ratelimit.IngressStore
	authorizer   *identity.Authorizer

	serviceFactory *service.ServiceFactory

	stopJanitor context.CancelFunc
	closeOnce   sync.Once
	closed      chan struct{}
}

// NewFactory loads configuration and initializes all dependencies.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()
	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	return NewFactoryWithConfig(cfg)
}

// NewFactoryWithConfig initializes dependencies for an already loaded
// configuration.
func NewFactoryWithConfig(cfg *config.Config) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	f := &Factory{
		config:     cfg,
		authorizer: identity.NewAuthorizer(cfg.Auth.Tokens...),
		closed:     make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		m, err := tls.NewManager(cfg.Server)
		if err != nil {
			return nil, err
		}
		f.tlsManager = m
	}

	if err := f.initializeStores(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	f.initializeAudit()
	f.initializeIngress()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("store_backend", cfg.Store.Backend),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("auth_enforced", f.authorizer.Enforcing()),
		util.Bool("ingress_limit", f.ingressStore != nil),
	)
	return f, nil
}

// initializeStores connects the configured backend. The store is the only
// dependency the service cannot run without.
func (f *Factory) initializeStores() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := f.config
	var balloons, stats store.Store

	switch cfg.Store.Backend {
	case config.StoreBackendRedis:
		c, err := client.NewRedisClient(cfg)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		f.redisClient = c
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("redis health check: %w", err)
		}
		balloons = store.NewRedisStore(c, cfg.Store.BalloonPrefix)
		stats = store.NewRedisStore(c, cfg.Store.UserStatsPrefix)

	case config.StoreBackendScylla:
		c, err := client.NewScyllaClient(cfg)
		if err != nil {
			return fmt.Errorf("scylla: %w", err)
		}
		f.scyllaClient = c
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("scylla health check: %w", err)
		}
		balloons = store.NewScyllaStore(c, cfg.Store.BalloonPrefix)
		stats = store.NewScyllaStore(c, cfg.Store.UserStatsPrefix)

	default:
		util.Warn("Using in-memory store - state is lost on restart")
		balloons = store.NewMemoryStore(1)
		stats = store.NewMemoryStore(0)
	}

	f.balloonStore = store.WithTimeout(balloons, cfg.Store.OpTimeout)
	f.statsStore = store.WithTimeout(stats, cfg.Store.OpTimeout)
	return nil
}

// initializeAudit builds the enabled sinks. A sink that fails to start is
// skipped outside production.
func (f *Factory) initializeAudit() {
	cfg := f.config
	var sinks []audit.Sink

	if cfg.Kafka.Enabled {
		if p, err := client.NewKafkaProducer(cfg); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka audit", util.ErrorField(err))
		} else {
			f.kafkaProducer = p
			sinks = append(sinks, audit.NewKafkaSink(p, cfg.Kafka.Topic))
		}
	}

	if cfg.Clickhouse.Enabled {
		if c, err := client.NewClickHouseClient(cfg); err != nil {
			util.Warn("ClickHouse initialization failed - proceeding without ClickHouse audit", util.ErrorField(err))
		} else {
			f.clickhouseClient = c
			s := audit.NewClickHouseSink(c, cfg.Clickhouse.Table)
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			err := s.EnsureTable(ctx)
			cancel()
			if err != nil {
				util.Warn("ClickHouse audit table unavailable", util.ErrorField(err))
			}
			sinks = append(sinks, s)
		}
	}

	f.sink = audit.NewMultiSink(sinks...)
}

func (f *Factory) initializeIngress() {
	in := f.config.Ingress
	if !in.Enabled {
		return
	}
	f.ingressStore = ratelimit.NewIngressStore(in.RPS, in.Burst,
		ratelimit.WithIdleTTL(in.IdleTTL),
		ratelimit.WithCleanupEvery(in.CleanupEvery),
	)
	ctx, cancel := context.WithCancel(context.Background())
	f.stopJanitor = cancel
	f.ingressStore.StartJanitor(ctx)
}

func (f *Factory) rateLimitConfig() ratelimit.Config {
	rl := f.config.RateLimit
	return ratelimit.Config{
		RatePerMinute:        rl.RatePerMinute,
		FactorIncrement:      rl.FactorIncrement,
		FactorDecrement:      rl.FactorDecrement,
		MinViolationFactor:   rl.MinViolationFactor,
		MaxEffectiveInterval: rl.MaxEffectiveInterval,
	}
}

// ==============================
// Service Factory
// ==============================
func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			repository.NewBalloonRepository(f.balloonStore),
			repository.NewUserStatisticsRepository(f.statsStore),
			ratelimit.NewLimiter(f.rateLimitConfig()),
			f.sink,
			nil,
		)
	}
	return f.serviceFactory
}

// ==============================
// Health Checks
// ==============================

// HealthCheck probes the backing store.
func (f *Factory) HealthCheck(ctx context.Context) error {
	if err := store.Ping(ctx, f.balloonStore); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

// HealthReport probes every initialized dependency. Healthy entries map to
// nil.
func (f *Factory) HealthReport(ctx context.Context) map[string]error {
	report := map[string]error{"store": f.HealthCheck(ctx)}
	if f.kafkaProducer != nil {
		report["kafka"] = f.kafkaProducer.HealthCheck(ctx)
	}
	if f.clickhouseClient != nil {
		report["clickhouse"] = f.clickhouseClient.HealthCheck(ctx)
	}
	return report
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.stopJanitor != nil {
			f.stopJanitor()
		}

		// Sinks own the Kafka producer and ClickHouse connection.
		var err error
		if f.serviceFactory != nil {
			err = f.serviceFactory.Cleanup()
		} else if f.sink != nil {
			err = f.sink.Close()
		}
		if err != nil {
			util.Error("Failed to close audit sinks", util.ErrorField(err))
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})
	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.Manager {
	return f.tlsManager
}

func (f *Factory) Authorizer() *identity.Authorizer {
	return f.authorizer
}

// IngressStore is nil when ingress limiting is disabled.
func (f *Factory) IngressStore() *ratelimit.IngressStore {
	return f.ingressStore
}
