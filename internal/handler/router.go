package handler

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/logger"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/middleware"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// RouterConfig contains everything the HTTP router mounts
type RouterConfig struct {
	Booking *BookingHandler
	Payment *PaymentHandler
	Catalog *CatalogHandler
	Health  *HealthHandler

	Auth *middleware.AuthConfig

	// Redis backs idempotency keys and rate limit counters; optional
	Redis *redis.Client

	RateLimitEnabled bool
	WriteRate        string
	ReadRate         string

	AllowedOrigins []string
	CORSMaxAge     time.Duration

	ServiceName string
	Registerer  prometheus.Registerer
	Gatherer    prometheus.Gatherer
	Logger      *logger.Logger
}

// NewRouter builds the gin engine with middleware and the /api/v1 routes
func NewRouter(cfg *RouterConfig) (*gin.Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.AllowedOrigins, cfg.CORSMaxAge))
	if cfg.ServiceName != "" {
		router.Use(telemetry.TracingMiddleware(cfg.ServiceName))
	}
	router.Use(middleware.Logger(log))
	if cfg.Registerer != nil {
		router.Use(middleware.NewHTTPMetrics(cfg.Registerer).Middleware())
	}

	router.GET("/health", cfg.Health.Health)
	router.GET("/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		router.GET("/metrics", middleware.PrometheusHandler(cfg.Gatherer))
	}

	write, read, err := rateLimiters(cfg)
	if err != nil {
		return nil, err
	}
	auth := middleware.Auth(cfg.Auth)
	admin := middleware.RequireRole(middleware.RoleAdmin)

	var idempotent []gin.HandlerFunc
	if cfg.Redis != nil {
		idempotent = append(idempotent, middleware.IdempotencyMiddleware(middleware.DefaultIdempotencyConfig(cfg.Redis)))
	}
	withWrite := func(h gin.HandlerFunc) []gin.HandlerFunc {
		chain := append([]gin.HandlerFunc{}, write...)
		return append(chain, h)
	}
	withIdempotentWrite := func(h gin.HandlerFunc) []gin.HandlerFunc {
		chain := append([]gin.HandlerFunc{}, write...)
		chain = append(chain, idempotent...)
		return append(chain, h)
	}

	v1 := router.Group("/api/v1")
	v1.Use(read...)
	{
		v1.GET("/hotels/:id", cfg.Catalog.GetHotel)
		v1.GET("/rooms", cfg.Catalog.ListRooms)
		v1.GET("/rooms/:id", cfg.Catalog.GetRoom)

		v1.POST("/bookings/check-availability", cfg.Booking.CheckAvailability)

		bookings := v1.Group("/bookings")
		bookings.Use(auth)
		{
			bookings.POST("/book", withIdempotentWrite(cfg.Booking.CreateBooking)...)
			bookings.GET("", admin, cfg.Booking.ListAllBookings)
			bookings.GET("/user", cfg.Booking.ListUserBookings)
			bookings.GET("/hotel", cfg.Booking.HotelBookings)
			bookings.GET("/:id", cfg.Booking.GetBooking)
			bookings.PUT("/:id", withWrite(cfg.Booking.UpdateBooking)...)
			bookings.PUT("/:id/cancel", withWrite(cfg.Booking.CancelBooking)...)
			bookings.DELETE("/:id", withWrite(cfg.Booking.DeleteBooking)...)
		}

		payments := v1.Group("/payments")
		payments.Use(auth)
		{
			payments.POST("", withIdempotentWrite(cfg.Payment.CreatePayment)...)
			payments.GET("", admin, cfg.Payment.ListAllPayments)
			payments.GET("/user", cfg.Payment.ListUserPayments)
			payments.GET("/hotel", cfg.Payment.HotelPayments)
			payments.GET("/booking/:bookingId", cfg.Payment.GetPaymentByBooking)
			payments.GET("/:id", cfg.Payment.GetPayment)
			payments.PUT("/:id", withWrite(cfg.Payment.UpdatePayment)...)
			payments.PUT("/:id/confirm", withWrite(cfg.Payment.ConfirmPayment)...)
			payments.PUT("/:id/refund", withIdempotentWrite(cfg.Payment.RefundPayment)...)
			payments.DELETE("/:id", withWrite(cfg.Payment.DeletePayment)...)
		}
	}

	return router, nil
}

func rateLimiters(cfg *RouterConfig) (write, read []gin.HandlerFunc, err error) {
	if !cfg.RateLimitEnabled {
		return nil, nil, nil
	}
	if cfg.WriteRate != "" {
		h, err := middleware.RateLimit(&middleware.RateLimitConfig{Rate: cfg.WriteRate, RouteID: "write", Redis: cfg.Redis})
		if err != nil {
			return nil, nil, fmt.Errorf("write rate limit: %w", err)
		}
		write = append(write, h)
	}
	if cfg.ReadRate != "" {
		h, err := middleware.RateLimit(&middleware.RateLimitConfig{Rate: cfg.ReadRate, RouteID: "read", Redis: cfg.Redis})
		if err != nil {
			return nil, nil, fmt.Errorf("read rate limit: %w", err)
		}
		read = append(read, h)
	}
	return write, read, nil
}
