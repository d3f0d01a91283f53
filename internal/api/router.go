package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/alextby/cacheproxy/internal/domain"
	"github.com/alextby/cacheproxy/internal/middleware"
)

// RouterConfig contains configuration for the admin HTTP router.
type RouterConfig struct {
	RateLimitRPS   int
	RateLimitBurst int
}

// RouterDependencies contains all dependencies needed by the router.
type RouterDependencies struct {
	Cache         domain.CacheManager
	WorkerPool    domain.WorkerPoolMonitor
	Connections   domain.ConnectionTracker
	HealthChecker domain.HealthChecker
	StartedAt     time.Time
}

// RouterResult contains the configured app and cleanup function.
type RouterResult struct {
	App     *fiber.App
	Cleanup func()
}

// SetupRouter creates and configures the Fiber app serving the proxy's
// read-only admin surface: /health, /metrics, /stats.
func SetupRouter(deps RouterDependencies, config RouterConfig) *RouterResult {
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	handlers := NewHandlers(deps.Cache, deps.WorkerPool, deps.Connections, deps.HealthChecker, deps.StartedAt)

	// Middleware pipeline (order is critical).

	// 1. RequestID middleware for UUID generation.
	app.Use(requestid.New(requestid.Config{
		Header:    "X-Request-ID",
		Generator: func() string { return uuid.New().String() },
	}))

	// 2. Structured logging middleware with zerolog.
	app.Use(structuredLoggingMiddleware())

	// 3. Panic recovery middleware with stack trace logging.
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			requestID := ""
			if rid, ok := c.Locals("requestid").(string); ok {
				requestID = rid
			}
			log.Error().
				Str("request_id", requestID).
				Interface("panic", e).
				Str("method", c.Method()).
				Str("path", c.Path()).
				Msg("panic recovered in admin API")
		},
	}))

	// 4. Security headers middleware.
	app.Use(securityHeadersMiddleware())

	// 5. Rate limiting middleware.
	var stopRateLimiter func()
	if config.RateLimitRPS > 0 {
		rateLimiter := middleware.NewRateLimiter(config.RateLimitRPS, config.RateLimitBurst, deps.WorkerPool)
		stopRateLimiter = rateLimiter.StartCleanupRoutine()
		app.Use(rateLimiter.Middleware())
	}

	// 6. CORS middleware — the admin API is read-only, any origin may poll it.
	app.Use(cors.New(cors.Config{
		AllowMethods: "GET,OPTIONS",
	}))

	app.Get("/health", handlers.HealthHandler)
	app.Get("/metrics", handlers.MetricsHandler)
	app.Get("/stats", handlers.StatsHandler)

	cleanup := func() {
		if stopRateLimiter != nil {
			stopRateLimiter()
		}
	}

	return &RouterResult{App: app, Cleanup: cleanup}
}

// customErrorHandler handles Fiber framework errors.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Status:  "error",
		Code:    domain.ErrInternal,
		Message: message,
	})
}

// structuredLoggingMiddleware logs every admin API request via zerolog.
func structuredLoggingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		requestID := "unknown"
		if rid, ok := c.Locals("requestid").(string); ok {
			requestID = rid
		}

		status := c.Response().StatusCode()
		logEvent := log.Info()
		if status >= 400 {
			logEvent = log.Error()
		}

		logEvent.
			Str("request_id", requestID).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("admin API request processed")

		return err
	}
}

// securityHeadersMiddleware adds a standard set of defensive headers.
func securityHeadersMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		return c.Next()
	}
}
