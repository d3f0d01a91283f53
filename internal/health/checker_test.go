package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alextby/cacheproxy/internal/domain"
)

type fakeComponent struct {
	status domain.HealthStatus
}

func (f fakeComponent) HealthCheck(ctx context.Context) domain.HealthStatus { return f.status }

type fakeCache struct{ fakeComponent }
type fakePool struct{ fakeComponent }

func (f fakeCache) Stats() domain.CacheStats { return domain.CacheStats{ItemCount: 3} }

func (f fakePool) Stats() domain.WorkerPoolStats {
	return domain.WorkerPoolStats{Size: 4, AliveWorkers: 4}
}

func healthy() domain.HealthStatus {
	return domain.HealthStatus{Status: domain.HealthStatusHealthy, Timestamp: time.Now()}
}

func unhealthy(msg string) domain.HealthStatus {
	return domain.HealthStatus{Status: domain.HealthStatusUnhealthy, Message: msg, Timestamp: time.Now()}
}

func TestCheckHealth_AllHealthyIsHealthy(t *testing.T) {
	checker := NewSystemHealthChecker(
		fakeCache{fakeComponent{healthy()}},
		fakePool{fakeComponent{healthy()}},
		func() bool { return true },
	)

	result := checker.CheckHealth(context.Background())
	assert.Equal(t, domain.HealthStatusHealthy, result.Status)
	assert.Contains(t, result.Components, "cache")
	assert.Contains(t, result.Components, "worker_pool")
	assert.Contains(t, result.Components, "listener")
}

func TestCheckHealth_UnhealthyComponentDominates(t *testing.T) {
	checker := NewSystemHealthChecker(
		fakeCache{fakeComponent{unhealthy("cache broken")}},
		fakePool{fakeComponent{healthy()}},
		func() bool { return true },
	)

	result := checker.CheckHealth(context.Background())
	assert.Equal(t, domain.HealthStatusUnhealthy, result.Status)
}

func TestCheckHealth_ListenerDownIsUnhealthy(t *testing.T) {
	checker := NewSystemHealthChecker(
		fakeCache{fakeComponent{healthy()}},
		fakePool{fakeComponent{healthy()}},
		func() bool { return false },
	)

	result := checker.CheckHealth(context.Background())
	assert.Equal(t, domain.HealthStatusUnhealthy, result.Status)
	assert.Equal(t, domain.HealthStatusUnhealthy, result.Components["listener"].Status)
}

func TestCheckHealth_ResultIsCachedWithinTTL(t *testing.T) {
	calls := 0
	cache := fakeComponent{healthy()}
	pool := fakeComponent{healthy()}

	checker := NewSystemHealthChecker(fakeCache{cache}, fakePool{pool}, func() bool {
		calls++
		return true
	})

	checker.CheckHealth(context.Background())
	checker.CheckHealth(context.Background())

	assert.Equal(t, 1, calls, "second call within TTL should hit the cache")
}

func TestCheckComponent_UnknownNameIsUnhealthy(t *testing.T) {
	checker := NewSystemHealthChecker(
		fakeCache{fakeComponent{healthy()}},
		fakePool{fakeComponent{healthy()}},
		func() bool { return true },
	)

	result := checker.CheckComponent(context.Background(), "nonexistent")
	assert.Equal(t, domain.HealthStatusUnhealthy, result.Status)
}

func TestIsHealthy(t *testing.T) {
	checker := NewSystemHealthChecker(
		fakeCache{fakeComponent{healthy()}},
		fakePool{fakeComponent{healthy()}},
		func() bool { return true },
	)
	require.True(t, checker.IsHealthy(context.Background()))
}
