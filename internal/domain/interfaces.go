package domain

import "context"

// CacheManager is the narrow view of the LRU cache consumed outside the
// proxy package: the admin API and health checker only ever need a
// stats snapshot, never direct Get/Put access.
type CacheManager interface {
	Stats() CacheStats
	HealthCheck(ctx context.Context) HealthStatus
}

// WorkerPoolMonitor is the narrow view of the worker pool consumed by the
// health checker and admin API.
type WorkerPoolMonitor interface {
	Stats() WorkerPoolStats
	HealthCheck(ctx context.Context) HealthStatus
}

// ConnectionTracker reports how many client connections are currently
// being relayed, for the admin API's /metrics endpoint.
type ConnectionTracker interface {
	LiveConnections() int
}

// HealthChecker aggregates component health into a SystemHealth snapshot.
type HealthChecker interface {
	CheckHealth(ctx context.Context) SystemHealth
}
