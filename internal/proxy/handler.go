package proxy

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog/log"
)

const relayBufferSize = 4096

// connHandler carries the per-connection state machine: Read-request ->
// Parse -> {Reject-non-GET, Cache-hit, Relay} -> Maybe-cache -> Close.
// A handler is task-stateless from the worker pool's point of view: all
// its state lives here, not on the worker.
type connHandler struct {
	engine *Engine
	conn   net.Conn
	connID int64
}

func (h *connHandler) serve() {
	defer h.conn.Close()

	h.conn.SetReadDeadline(time.Now().Add(h.engine.timeout))
	reader := bufio.NewReader(h.conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		log.Debug().Int64("conn_id", h.connID).Err(err).Msg("failed to read request line")
		return
	}

	fp, ok := ParseRequestLine(line)
	if !ok {
		log.Debug().Int64("conn_id", h.connID).Str("line", line).Msg("malformed request line")
		return
	}

	switch fp.Verb {
	case "CONNECT":
		h.tunnel(fp)
		return
	case "GET":
		h.serveGet(fp, reader)
	default:
		log.Debug().Int64("conn_id", h.connID).Str("verb", fp.Verb).Msg("rejecting unsupported verb")
	}
}

// tunnel is the CONNECT/TLS extension point. Not implemented: the
// source never forwards CONNECT, so the stub only closes the client.
func (h *connHandler) tunnel(fp Fingerprint) {
	log.Debug().Int64("conn_id", h.connID).Str("host", fp.Host).Msg("CONNECT tunneling not implemented")
}

func (h *connHandler) serveGet(fp Fingerprint, reader *bufio.Reader) {
	cacheable := Cacheable(fp.Verb, fp.Path)

	if h.engine.cached {
		if cached, hit := h.engine.cache.Get(fp.URL); hit && cacheable {
			h.writeToClient(cached, fp)
			return
		}
	}

	target, err := net.DialTimeout("tcp", net.JoinHostPort(fp.Host, fp.Port), h.engine.timeout)
	if err != nil {
		log.Error().Int64("conn_id", h.connID).Err(err).Str("host", fp.Host).Msg("failed to connect to origin")
		return
	}
	defer target.Close()

	target.SetWriteDeadline(time.Now().Add(h.engine.timeout))
	if _, err := io.WriteString(target, fp.RawLine); err != nil {
		log.Error().Int64("conn_id", h.connID).Err(err).Msg("failed to forward request line")
		return
	}

	response := h.relay(reader, target)

	if h.engine.cached && cacheable && response.Len() > 0 {
		inserted := h.engine.cache.Put(fp.URL, response.Bytes())
		log.Debug().Int64("conn_id", h.connID).Str("url", fp.URL).Bool("inserted", inserted).Msg("cache put after relay")
	}
}

func (h *connHandler) writeToClient(payload []byte, fp Fingerprint) {
	h.conn.SetWriteDeadline(time.Now().Add(h.engine.timeout))
	if _, err := h.conn.Write(payload); err != nil {
		log.Error().Int64("conn_id", h.connID).Err(err).Msg("failed to write cached response")
		return
	}
	log.Debug().Int64("conn_id", h.connID).Str("url", fp.URL).Msg("cache hit")
}

// relay runs the full-duplex byte shuttle between the client and the
// origin until either side reaches end-of-stream, accumulating
// everything read from the target into a growable buffer rather than
// repeated string concatenation.
func (h *connHandler) relay(source io.Reader, target net.Conn) *bytes.Buffer {
	var response bytes.Buffer
	done := make(chan struct{}, 2)

	go func() {
		defer func() { done <- struct{}{} }()
		buf := make([]byte, relayBufferSize)
		for {
			h.conn.SetReadDeadline(time.Now().Add(h.engine.timeout))
			n, err := source.Read(buf)
			if n > 0 {
				target.SetWriteDeadline(time.Now().Add(h.engine.timeout))
				if _, werr := target.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	go func() {
		defer func() { done <- struct{}{} }()
		buf := make([]byte, relayBufferSize)
		for {
			target.SetReadDeadline(time.Now().Add(h.engine.timeout))
			n, err := target.Read(buf)
			if n > 0 {
				response.Write(buf[:n])
				h.conn.SetWriteDeadline(time.Now().Add(h.engine.timeout))
				if _, werr := h.conn.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	<-done
	target.Close()
	h.conn.Close()
	<-done

	return &response
}
