package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// Cache is the narrow store the engine needs from the LRU cache: lookup
// and insertion by URL. Satisfied by *cache.LRUCache.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) bool
}

// Scheduler is the narrow view of the worker pool the dispatcher needs:
// submit a per-connection handler job.
type Scheduler interface {
	Schedule(work func())
}

// Engine owns the listening socket, the dispatcher accept loop, and the
// worker pool used to run per-connection handlers. It never performs
// protocol work itself.
type Engine struct {
	port    int
	cache   Cache
	pool    Scheduler
	cached  bool
	timeout time.Duration

	listener   net.Listener
	listenerMu sync.RWMutex

	clientsMu sync.Mutex
	clients   map[net.Conn]struct{}

	connCounter int64
	connMu      sync.Mutex
}

// New constructs a proxy engine. cached controls whether cache lookups
// and insertions are attempted on the request path at all.
func New(port int, pool Scheduler, cache Cache, cached bool, timeout time.Duration) *Engine {
	return &Engine{
		port:    port,
		cache:   cache,
		pool:    pool,
		cached:  cached,
		timeout: timeout,
		clients: make(map[net.Conn]struct{}),
	}
}

// listenConfig enables SO_REUSEADDR so a restarted proxy can rebind the
// same port while a prior connection lingers in TIME_WAIT.
var listenConfig = net.ListenConfig{
	Control: func(_, _ string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			sockErr = setReuseAddr(fd)
		})
		if err != nil {
			return err
		}
		return sockErr
	},
}

// Start opens the listening socket and launches the dispatcher accept
// loop in a background goroutine. It returns once the socket is bound.
func (e *Engine) Start(ctx context.Context) error {
	ln, err := listenConfig.Listen(ctx, "tcp", fmt.Sprintf(":%d", e.port))
	if err != nil {
		return fmt.Errorf("proxy: listen on port %d: %w", e.port, err)
	}

	e.listenerMu.Lock()
	e.listener = ln
	e.listenerMu.Unlock()

	go e.acceptLoop(ln)

	log.Info().Int("port", e.port).Bool("cached", e.cached).Msg("proxy dispatcher accepting connections")

	return nil
}

// acceptLoop is the single dispatcher task: it never performs protocol
// work and never blocks on a single client beyond the accept call.
func (e *Engine) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if isClosedErr(err) {
				return
			}
			log.Error().Err(err).Msg("proxy dispatcher accept failed")
			continue
		}

		e.trackClient(conn)

		connID := e.nextConnID()
		e.pool.Schedule(func() {
			defer e.untrackClient(conn)
			h := &connHandler{engine: e, conn: conn, connID: connID}
			h.serve()
		})
	}
}

func (e *Engine) nextConnID() int64 {
	e.connMu.Lock()
	defer e.connMu.Unlock()
	e.connCounter++
	return e.connCounter
}

func (e *Engine) trackClient(conn net.Conn) {
	e.clientsMu.Lock()
	e.clients[conn] = struct{}{}
	e.clientsMu.Unlock()
}

func (e *Engine) untrackClient(conn net.Conn) {
	e.clientsMu.Lock()
	delete(e.clients, conn)
	e.clientsMu.Unlock()
}

// LiveConnections implements domain.ConnectionTracker.
func (e *Engine) LiveConnections() int {
	e.clientsMu.Lock()
	defer e.clientsMu.Unlock()
	return len(e.clients)
}

// IsListening reports whether the dispatcher is still accepting
// connections; used by the health checker's listener probe.
func (e *Engine) IsListening() bool {
	e.listenerMu.RLock()
	defer e.listenerMu.RUnlock()
	return e.listener != nil
}

// Shutdown closes the listening socket and every tracked client socket.
// It does not shut down the worker pool; the caller owns that sequencing.
func (e *Engine) Shutdown() {
	e.listenerMu.Lock()
	ln := e.listener
	e.listener = nil
	e.listenerMu.Unlock()

	if ln != nil {
		if err := ln.Close(); err != nil {
			log.Error().Err(err).Msg("proxy dispatcher listener close failed")
		}
	}

	e.clientsMu.Lock()
	clients := make([]net.Conn, 0, len(e.clients))
	for c := range e.clients {
		clients = append(clients, c)
	}
	e.clientsMu.Unlock()

	for _, c := range clients {
		_ = c.Close()
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
