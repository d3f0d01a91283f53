package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/alextby/cacheproxy/internal/domain"
)

// ErrorResponse is the JSON body returned for any non-2xx admin API response.
type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// SuccessResponse wraps a successful admin API payload.
type SuccessResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

// Handlers implements the admin API's read-only endpoints over the
// proxy's cache, worker pool, connection tracker and health checker.
type Handlers struct {
	cache         domain.CacheManager
	workerPool    domain.WorkerPoolMonitor
	connections   domain.ConnectionTracker
	healthChecker domain.HealthChecker
	startedAt     time.Time
}

// NewHandlers constructs the admin API handler set.
func NewHandlers(
	cache domain.CacheManager,
	workerPool domain.WorkerPoolMonitor,
	connections domain.ConnectionTracker,
	healthChecker domain.HealthChecker,
	startedAt time.Time,
) *Handlers {
	return &Handlers{
		cache:         cache,
		workerPool:    workerPool,
		connections:   connections,
		healthChecker: healthChecker,
		startedAt:     startedAt,
	}
}

// HealthHandler reports aggregated component health. Returns 503 when the
// system is not fully healthy so load balancers and orchestrators can act
// on the status code alone.
func (h *Handlers) HealthHandler(c *fiber.Ctx) error {
	health := h.healthChecker.CheckHealth(c.Context())

	status := fiber.StatusOK
	if health.Status != domain.HealthStatusHealthy {
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(SuccessResponse{
		Status: "ok",
		Data:   health,
	})
}

// MetricsHandler reports cache occupancy, worker pool occupancy, live
// connection count, and process uptime.
func (h *Handlers) MetricsHandler(c *fiber.Ctx) error {
	cacheStats := h.cache.Stats()
	poolStats := h.workerPool.Stats()

	liveConnections := 0
	if h.connections != nil {
		liveConnections = h.connections.LiveConnections()
	}

	return c.Status(fiber.StatusOK).JSON(SuccessResponse{
		Status: "ok",
		Data: map[string]any{
			"cache":            cacheStats,
			"hit_ratio":        cacheStats.HitRatio(),
			"worker_pool":      poolStats,
			"live_connections": liveConnections,
			"uptime_seconds":   time.Since(h.startedAt).Seconds(),
		},
	})
}

// StatsHandler reports the cache's (success_hits, total_hits, item_count,
// total_bytes) tuple verbatim, for scenario tests that assert on the
// cache contract directly rather than on derived metrics.
func (h *Handlers) StatsHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(SuccessResponse{
		Status: "ok",
		Data:   h.cache.Stats(),
	})
}
