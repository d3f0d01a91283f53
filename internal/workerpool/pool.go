// Package workerpool implements a fixed-size pool of durable goroutines
// draining a single unbounded FIFO job queue. Spawning a fresh
// goroutine per task is expensive, so workers survive across jobs and
// recover individually from a panicking task rather than dying with
// it.
package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/alextby/cacheproxy/internal/domain"
)

// job is the sum type delivered on the queue: either a unit of work to
// run, or an exit signal telling the receiving worker to return.
type job struct {
	work func()
	exit bool
}

// Pool is a fixed-size worker pool draining an unbounded FIFO queue. The
// queue is a plain slice guarded by a mutex/cond rather than a channel,
// so Schedule never blocks on worker availability the way a send on an
// unbuffered or bounded channel would.
type Pool struct {
	size int

	mu    sync.Mutex
	cond  *sync.Cond
	queue []job

	wg sync.WaitGroup

	aliveWorkers atomic.Int64
}

// New spawns size workers, each looping on the shared queue until it
// receives an exit job.
func New(size int) *Pool {
	if size <= 0 {
		panic("workerpool: size must be positive")
	}
	p := &Pool{size: size}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		p.aliveWorkers.Add(1)
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	defer p.aliveWorkers.Add(-1)

	for {
		j, ok := p.dequeue()
		if !ok {
			return
		}
		if j.exit {
			return
		}
		p.run(id, j.work)
	}
}

func (p *Pool) dequeue() (job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 {
		p.cond.Wait()
	}
	j := p.queue[0]
	p.queue = p.queue[1:]
	return j, true
}

// run invokes work, recovering from a panic so a single failing task
// never takes the worker down with it.
func (p *Pool) run(id int, work func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int("worker", id).Interface("panic", r).Msg("worker pool task panicked")
		}
	}()
	work()
}

func (p *Pool) enqueue(j job) {
	p.mu.Lock()
	p.queue = append(p.queue, j)
	p.mu.Unlock()
	p.cond.Signal()
}

// Schedule enqueues work for execution by the next free worker. There
// is no capacity limit: the queue grows without bound, so Schedule
// never blocks on worker availability.
func (p *Pool) Schedule(work func()) {
	p.enqueue(job{work: work})
}

// Shutdown enqueues one exit job per worker, then blocks until every
// worker has returned. Because the queue is FIFO, every job scheduled
// before Shutdown was called drains before any worker sees its exit
// job.
func (p *Pool) Shutdown() {
	for i := 0; i < p.size; i++ {
		p.enqueue(job{exit: true})
	}
	p.wg.Wait()
}

// Stats returns a snapshot of pool occupancy for the admin API.
func (p *Pool) Stats() domain.WorkerPoolStats {
	p.mu.Lock()
	depth := len(p.queue)
	p.mu.Unlock()

	return domain.WorkerPoolStats{
		Size:         p.size,
		AliveWorkers: int(p.aliveWorkers.Load()),
		QueueDepth:   depth,
	}
}

// HealthCheck reports the pool unhealthy once fewer than size workers are
// alive (Shutdown was called, or a worker exited under circumstances its
// own panic recovery should have prevented) and degraded once the queue
// has backed up past a generous multiple of the pool size.
func (p *Pool) HealthCheck(ctx context.Context) domain.HealthStatus {
	stats := p.Stats()

	status := domain.HealthStatusHealthy
	msg := ""
	switch {
	case stats.AliveWorkers < stats.Size:
		status = domain.HealthStatusUnhealthy
		msg = "fewer workers alive than configured"
	case stats.QueueDepth > stats.Size*100:
		status = domain.HealthStatusDegraded
		msg = "job queue backing up"
	}

	return domain.HealthStatus{
		Status:  status,
		Message: msg,
		Details: map[string]any{
			"size":          stats.Size,
			"alive_workers": stats.AliveWorkers,
			"queue_depth":   stats.QueueDepth,
		},
		Timestamp: time.Now(),
	}
}
