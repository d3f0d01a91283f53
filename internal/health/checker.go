// Package health aggregates component health into a single snapshot
// for the admin API's /health endpoint.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/alextby/cacheproxy/internal/domain"
)

// ListenerProbe reports whether the proxy's dispatcher is still
// accepting connections.
type ListenerProbe func() bool

// SystemHealthChecker aggregates cache, worker pool, and listener
// health into a single domain.SystemHealth snapshot.
type SystemHealthChecker struct {
	cache      domain.CacheManager
	workerPool domain.WorkerPoolMonitor
	listener   ListenerProbe

	timeout   time.Duration
	startTime time.Time

	lastCheck   time.Time
	lastHealth  domain.SystemHealth
	cacheTTL    time.Duration
	healthMutex sync.RWMutex
}

// NewSystemHealthChecker constructs a checker over the proxy's cache,
// worker pool, and listener liveness probe.
func NewSystemHealthChecker(
	cache domain.CacheManager,
	workerPool domain.WorkerPoolMonitor,
	listener ListenerProbe,
) *SystemHealthChecker {
	return &SystemHealthChecker{
		cache:      cache,
		workerPool: workerPool,
		listener:   listener,
		timeout:    5 * time.Second,
		cacheTTL:   5 * time.Second,
		startTime:  time.Now(),
	}
}

// CheckHealth performs a system health check, returning a cached
// result if one was taken within cacheTTL.
func (h *SystemHealthChecker) CheckHealth(ctx context.Context) domain.SystemHealth {
	h.healthMutex.Lock()
	defer h.healthMutex.Unlock()

	if time.Since(h.lastCheck) < h.cacheTTL {
		return h.lastHealth
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	now := time.Now()
	components := make(map[string]domain.HealthStatus)
	overallStatus := domain.HealthStatusHealthy

	cacheHealth := h.cache.HealthCheck(checkCtx)
	components["cache"] = cacheHealth
	overallStatus = aggregateStatus(overallStatus, cacheHealth.Status)

	poolHealth := h.workerPool.HealthCheck(checkCtx)
	components["worker_pool"] = poolHealth
	overallStatus = aggregateStatus(overallStatus, poolHealth.Status)

	listenerHealth := h.checkListener()
	components["listener"] = listenerHealth
	overallStatus = aggregateStatus(overallStatus, listenerHealth.Status)

	systemHealth := domain.SystemHealth{
		Status:     overallStatus,
		Timestamp:  now,
		Components: components,
		Metrics: map[string]any{
			"uptime_seconds": time.Since(h.startTime).Seconds(),
		},
		Uptime: time.Since(h.startTime),
	}

	h.lastCheck = now
	h.lastHealth = systemHealth

	return systemHealth
}

func (h *SystemHealthChecker) checkListener() domain.HealthStatus {
	if h.listener == nil || h.listener() {
		return domain.HealthStatus{Status: domain.HealthStatusHealthy, Timestamp: time.Now()}
	}
	return domain.HealthStatus{
		Status:    domain.HealthStatusUnhealthy,
		Message:   "dispatcher is not accepting connections",
		Timestamp: time.Now(),
	}
}

// CheckComponent performs a health check on a single named component.
func (h *SystemHealthChecker) CheckComponent(ctx context.Context, component string) domain.HealthStatus {
	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	switch component {
	case "cache":
		return h.cache.HealthCheck(checkCtx)
	case "worker_pool":
		return h.workerPool.HealthCheck(checkCtx)
	case "listener":
		return h.checkListener()
	default:
		return domain.HealthStatus{
			Status:    domain.HealthStatusUnhealthy,
			Message:   "unknown component",
			Timestamp: time.Now(),
			Details:   map[string]any{"component": component},
		}
	}
}

// aggregateStatus returns the worse of current and componentStatus,
// by priority healthy < degraded < unhealthy.
func aggregateStatus(current, componentStatus string) string {
	priority := map[string]int{
		domain.HealthStatusHealthy:   0,
		domain.HealthStatusDegraded:  1,
		domain.HealthStatusUnhealthy: 2,
	}
	if priority[componentStatus] > priority[current] {
		return componentStatus
	}
	return current
}

// IsHealthy reports whether the aggregated status is healthy.
func (h *SystemHealthChecker) IsHealthy(ctx context.Context) bool {
	return h.CheckHealth(ctx).Status == domain.HealthStatusHealthy
}
