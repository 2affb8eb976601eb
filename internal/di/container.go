package di

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/hotel-booking-engine/internal/gateway"
	"github.com/prohmpiriya/hotel-booking-engine/internal/handler"
	"github.com/prohmpiriya/hotel-booking-engine/internal/metrics"
	"github.com/prohmpiriya/hotel-booking-engine/internal/repository"
	"github.com/prohmpiriya/hotel-booking-engine/internal/service"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/config"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/database"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/logger"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/middleware"
	pkgredis "github.com/prohmpiriya/hotel-booking-engine/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Container holds all dependencies of the booking engine
type Container struct {
	Config *config.Config
	Log    *logger.Logger

	// Infrastructure
	DB       *database.PostgresDB
	Redis    *pkgredis.Client
	Registry *prometheus.Registry

	// Persistence
	Store repository.Store
	Cache repository.AvailabilityCache

	// Gateways
	PaymentGateway gateway.PaymentGateway

	// Services
	AvailabilityService service.AvailabilityService
	BookingService      service.BookingService
	PaymentService      service.PaymentService
	CatalogService      service.CatalogService

	// Handlers
	HealthHandler  *handler.HealthHandler
	BookingHandler *handler.BookingHandler
	PaymentHandler *handler.PaymentHandler
	CatalogHandler *handler.CatalogHandler
}

// NewContainer connects the infrastructure named by cfg and builds the
// services on top of it. Call Close when done.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{
		Config:   cfg,
		Log:      logger.Get(),
		Registry: prometheus.NewRegistry(),
	}

	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Init(c.Registry); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	if err := c.initStore(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initRedis(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initGateway(); err != nil {
		c.Close()
		return nil, err
	}

	c.initServices()
	c.initHandlers()
	return c, nil
}

func (c *Container) initStore(ctx context.Context) error {
	if strings.EqualFold(c.Config.Database.Driver, "memory") {
		c.Store = repository.NewMemoryStore()
		c.Log.Warn("Using in-memory store (data will not persist)")
		return nil
	}

	dbCfg := database.DefaultPostgresConfig()
	dbCfg.Host = c.Config.Database.Host
	dbCfg.Port = c.Config.Database.Port
	dbCfg.User = c.Config.Database.User
	dbCfg.Password = c.Config.Database.Password
	dbCfg.Database = c.Config.Database.DBName
	dbCfg.SSLMode = c.Config.Database.SSLMode
	if c.Config.Database.MaxOpenConns > 0 {
		dbCfg.MaxConns = int32(c.Config.Database.MaxOpenConns)
	}
	if c.Config.Database.MaxIdleConns > 0 {
		dbCfg.MinConns = int32(c.Config.Database.MaxIdleConns)
	}
	if c.Config.Database.ConnMaxLifetime > 0 {
		dbCfg.MaxConnLifetime = c.Config.Database.ConnMaxLifetime
	}
	if c.Config.Database.ConnMaxIdleTime > 0 {
		dbCfg.MaxConnIdleTime = c.Config.Database.ConnMaxIdleTime
	}
	dbCfg.EnableTracing = c.Config.OTel.Enabled
	dbCfg.ServiceName = c.Config.OTel.ServiceName

	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DB = db
	c.Log.Info("Database connected",
		zap.String("host", dbCfg.Host),
		zap.Int32("max_conns", dbCfg.MaxConns),
	)

	if c.Config.Database.AutoMigrate {
		applied, err := db.Migrate(ctx, repository.Migrations())
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		if len(applied) > 0 {
			c.Log.Info("Applied migrations", zap.Strings("versions", applied))
		}
	}

	c.Store = repository.NewPostgresStore(db.Pool())
	return nil
}

// initRedis connects Redis when enabled. A failed connection is logged and
// the service runs without cache, idempotency keys and shared rate limits.
func (c *Container) initRedis(ctx context.Context) error {
	if !c.Config.Redis.Enabled {
		return nil
	}

	redisCfg := pkgredis.DefaultConfig()
	redisCfg.Host = c.Config.Redis.Host
	redisCfg.Port = c.Config.Redis.Port
	redisCfg.Password = c.Config.Redis.Password
	redisCfg.DB = c.Config.Redis.DB
	if c.Config.Redis.PoolSize > 0 {
		redisCfg.PoolSize = c.Config.Redis.PoolSize
	}
	if c.Config.Redis.MinIdleConns > 0 {
		redisCfg.MinIdleConns = c.Config.Redis.MinIdleConns
	}
	if c.Config.Redis.DialTimeout > 0 {
		redisCfg.DialTimeout = c.Config.Redis.DialTimeout
	}
	if c.Config.Redis.ReadTimeout > 0 {
		redisCfg.ReadTimeout = c.Config.Redis.ReadTimeout
	}
	if c.Config.Redis.WriteTimeout > 0 {
		redisCfg.WriteTimeout = c.Config.Redis.WriteTimeout
	}

	client, err := pkgredis.NewClient(ctx, redisCfg)
	if err != nil {
		c.Log.Warn("Redis connection failed, continuing without it", zap.Error(err))
		return nil
	}
	c.Redis = client
	c.Cache = repository.NewRedisAvailabilityCache(client.Client(), c.Config.Booking.AvailabilityCacheTTL)
	c.Log.Info("Redis connected", zap.String("addr", redisCfg.Addr()))
	return nil
}

func (c *Container) initGateway() error {
	environment := "test"
	if c.Config.IsProduction() {
		environment = "live"
	}

	gw, err := gateway.NewPaymentGateway(c.Config.Payment.Gateway, &gateway.GatewayConfig{
		SecretKey:       c.Config.Payment.StripeSecretKey,
		Environment:     environment,
		MockSuccessRate: c.Config.Payment.MockSuccessRate,
		MockDelayMs:     c.Config.Payment.MockDelayMs,
	})
	if err != nil {
		return fmt.Errorf("failed to create payment gateway: %w", err)
	}
	c.PaymentGateway = gw

	if gw == nil {
		c.Log.Info("No payment gateway configured; payments are recorded as reported")
	} else {
		c.Log.Info("Using payment gateway", zap.String("gateway", gw.Name()))
	}
	return nil
}

func (c *Container) initServices() {
	c.AvailabilityService = service.NewAvailabilityService(c.Store, &service.AvailabilityServiceConfig{
		AllowBackToBack: c.Config.Booking.AllowBackToBack,
		Cache:           c.Cache,
		Logger:          c.Log,
	})
	c.BookingService = service.NewBookingService(c.Store, c.AvailabilityService, &service.BookingServiceConfig{
		DefaultPaymentMethod: c.Config.Booking.DefaultPaymentMethod,
		Logger:               c.Log,
	})
	c.PaymentService = service.NewPaymentService(c.Store, c.AvailabilityService, &service.PaymentServiceConfig{
		Gateway:         c.PaymentGateway,
		DefaultCurrency: c.Config.Payment.DefaultCurrency,
		Logger:          c.Log,
	})
	c.CatalogService = service.NewCatalogService(c.Store.Hotels())
}

func (c *Container) initHandlers() {
	checks := map[string]handler.HealthCheck{"store": c.Store.Ping}
	if c.DB != nil {
		checks["store"] = c.DB.HealthCheck
	}
	if c.Config.Redis.Enabled {
		if c.Redis != nil {
			checks["redis"] = c.Redis.HealthCheck
		} else {
			checks["redis"] = nil
		}
	}

	c.HealthHandler = handler.NewHealthHandler(checks)
	c.BookingHandler = handler.NewBookingHandler(c.BookingService, c.AvailabilityService)
	c.PaymentHandler = handler.NewPaymentHandler(c.PaymentService)
	c.CatalogHandler = handler.NewCatalogHandler(c.CatalogService)
}

// Router builds the HTTP router
func (c *Container) Router() (*gin.Engine, error) {
	routerCfg := &handler.RouterConfig{
		Booking: c.BookingHandler,
		Payment: c.PaymentHandler,
		Catalog: c.CatalogHandler,
		Health:  c.HealthHandler,
		Auth: &middleware.AuthConfig{
			Secret:             c.Config.JWT.Secret,
			Issuer:             c.Config.JWT.Issuer,
			TrustGatewayHeader: c.Config.JWT.TrustGatewayHeader,
		},
		RateLimitEnabled: c.Config.RateLimit.Enabled,
		WriteRate:        c.Config.RateLimit.WriteRate,
		ReadRate:         c.Config.RateLimit.ReadRate,
		AllowedOrigins:   c.Config.CORS.AllowedOrigins,
		CORSMaxAge:       c.Config.CORS.MaxAge,
		Registerer:       c.Registry,
		Gatherer:         c.Registry,
		Logger:           c.Log,
	}
	if c.Redis != nil {
		routerCfg.Redis = c.Redis.Client()
	}
	if c.Config.OTel.Enabled {
		routerCfg.ServiceName = c.Config.OTel.ServiceName
	}
	return handler.NewRouter(routerCfg)
}

// Close releases connections
func (c *Container) Close() {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Log.Warn("Failed to close Redis", zap.Error(err))
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
}
