package proxy

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alextby/cacheproxy/internal/cache"
	"github.com/alextby/cacheproxy/internal/workerpool"
)

// startOrigin spins up a bare TCP server that replies with a fixed
// response body to every connection it accepts, then closes it,
// counting how many requests it actually served.
func startOrigin(t *testing.T, response []byte) (addr string, hitCount *int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	count := 0
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			count++
			go func(c net.Conn) {
				defer c.Close()
				reader := bufio.NewReader(c)
				_, _ = reader.ReadString('\n')
				_, _ = c.Write(response)
			}(conn)
		}
	}()

	t.Cleanup(func() { ln.Close() })

	return ln.Addr().String(), &count
}

func startEngine(t *testing.T, engine *Engine) {
	t.Helper()
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(engine.Shutdown)

	// Start has already bound the socket; give the dispatcher goroutine a
	// moment to reach its accept loop before callers dial.
	time.Sleep(10 * time.Millisecond)
}

func dialAndSend(t *testing.T, proxyAddr, requestLine string) []byte {
	t.Helper()
	conn, err := net.Dial("tcp", proxyAddr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(requestLine))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 65536)
	total := 0
	for {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			break
		}
	}
	return buf[:total]
}

func newTestEngine(t *testing.T, c Cache) (*Engine, string) {
	t.Helper()
	pool := workerpool.New(4)
	t.Cleanup(pool.Shutdown)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	engine := New(port, pool, c, true, 2*time.Second)
	return engine, fmt.Sprintf("127.0.0.1:%d", port)
}

func TestEngine_CacheMissThenHit(t *testing.T) {
	body := []byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello")
	originAddr, hits := startOrigin(t, body)

	lru := cache.New(1<<20, 1<<20)
	engine, proxyAddr := newTestEngine(t, lru)
	startEngine(t, engine)

	url := fmt.Sprintf("http://%s/a.html", originAddr)
	line := fmt.Sprintf("GET %s HTTP/1.1\r\n\r\n", url)

	first := dialAndSend(t, proxyAddr, line)
	assert.Contains(t, string(first), "hello")

	second := dialAndSend(t, proxyAddr, line)
	assert.Equal(t, first, second)

	assert.Equal(t, 1, *hits, "origin should only be hit once")

	stats := lru.Stats()
	assert.Equal(t, 1, stats.ItemCount)
	assert.Equal(t, int64(1), stats.SuccessHits)
}

func TestEngine_NonCacheablePathAlwaysHitsOrigin(t *testing.T) {
	body := []byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok")
	originAddr, hits := startOrigin(t, body)

	lru := cache.New(1<<20, 1<<20)
	engine, proxyAddr := newTestEngine(t, lru)
	startEngine(t, engine)

	url := fmt.Sprintf("http://%s/x.php?q=1", originAddr)
	line := fmt.Sprintf("GET %s HTTP/1.1\r\n\r\n", url)

	dialAndSend(t, proxyAddr, line)
	dialAndSend(t, proxyAddr, line)

	assert.Equal(t, 2, *hits)
	assert.Equal(t, 0, lru.Stats().ItemCount)
}

func TestEngine_OversizedResponseRelayedButNotCached(t *testing.T) {
	payload := make([]byte, 2000)
	for i := range payload {
		payload[i] = 'x'
	}
	body := append([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2000\r\n\r\n"), payload...)
	originAddr, _ := startOrigin(t, body)

	lru := cache.New(1000, 1<<20)
	engine, proxyAddr := newTestEngine(t, lru)
	startEngine(t, engine)

	url := fmt.Sprintf("http://%s/big.html", originAddr)
	line := fmt.Sprintf("GET %s HTTP/1.1\r\n\r\n", url)

	resp := dialAndSend(t, proxyAddr, line)
	assert.Contains(t, string(resp), "xxxx")
	assert.Equal(t, 0, lru.Stats().ItemCount)
}

func TestEngine_NonGETVerbIsDroppedWithoutResponse(t *testing.T) {
	originAddr, hits := startOrigin(t, []byte("HTTP/1.1 200 OK\r\n\r\n"))

	lru := cache.New(1<<20, 1<<20)
	engine, proxyAddr := newTestEngine(t, lru)
	startEngine(t, engine)

	url := fmt.Sprintf("http://%s/a.html", originAddr)
	line := fmt.Sprintf("POST %s HTTP/1.1\r\n\r\n", url)

	resp := dialAndSend(t, proxyAddr, line)
	assert.Empty(t, resp)
	assert.Equal(t, 0, *hits)
}

func TestEngine_LiveConnectionsZeroWithNoClients(t *testing.T) {
	lru := cache.New(1<<20, 1<<20)
	engine, _ := newTestEngine(t, lru)
	startEngine(t, engine)

	assert.Equal(t, 0, engine.LiveConnections())
}
