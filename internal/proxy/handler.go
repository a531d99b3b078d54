package proxy

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"syscall"
	"time"

	"hostgate/internal/header"
	"hostgate/internal/metrics"
	"hostgate/internal/transport"
)

// maxChunkReadErrors bounds the body relay loop: after this many failed
// reads in a row the stream is abandoned instead of spinning.
const maxChunkReadErrors = 3

// zeroLengthTerminator is the tail written after an error status line so
// clients see a complete, body-less response.
var zeroLengthTerminator = []byte("Content-Length: 0\r\n\r\n")

// errBodyTooLarge marks a request whose declared Content-Length exceeds the
// configured cap. The declaration alone must never size a buffer.
var errBodyTooLarge = errors.New("declared request body exceeds limit")

// Handler proxies a single accepted client connection: read the request,
// rewrite its Host to the configured target, forward it over a fresh
// upstream connection, relay the response preamble, stream the body, close.
// A Handler holds its own Config copy and nothing else survives the job.
type Handler struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler creates a Handler for one connection job. The metrics
// parameter is optional; pass nil to disable recording.
func NewHandler(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		cfg:     cfg,
		logger:  logger.With("component", "handler"),
		metrics: m,
	}
}

// Handle runs the full proxy sequence for one client connection. All steps
// execute strictly in order within the job; Handle owns both connections
// and closes them before returning.
func (h *Handler) Handle(client *transport.Conn) {
	defer func() { _ = client.Close() }()

	if h.metrics != nil {
		h.metrics.ConnectionsInFlight.Inc()
		defer h.metrics.ConnectionsInFlight.Dec()
	}

	preamble, body, err := h.receiveRequest(client)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			h.logger.Warn("request rejected", "remote", client.RemoteAddr(), "err", err)
			h.reject(client, http.StatusBadRequest, metrics.ReasonBodyTooLarge)
			return
		}
		// No response is possible without a complete request; the
		// connection is simply dropped.
		h.logger.Error("read client request", "remote", client.RemoteAddr(), "err", err)
		return
	}

	set, err := header.ParseBytes(preamble)
	if err != nil {
		h.logger.Warn("undecodable request preamble", "remote", client.RemoteAddr(), "err", err)
		h.reject(client, http.StatusBadRequest, metrics.ReasonBadEncoding)
		return
	}

	h.logger.Info("handle proxy",
		"remote", client.RemoteAddr(),
		"method", header.ExtractMethod(set.Raw),
		"url", header.ExtractURL(set.Raw),
		"proto", header.ExtractProtocol(set.Raw),
		"headers", len(set.List),
		"body_bytes", len(body),
	)

	rewritten, ok := header.RewriteHost(set.Raw, h.cfg.TargetAddr)
	if !ok {
		h.logger.Warn("request has no Host header", "remote", client.RemoteAddr())
		h.reject(client, http.StatusBadRequest, metrics.ReasonMissingHost)
		return
	}

	upstream, err := h.connectUpstream()
	if err != nil {
		h.logger.Warn("upstream connect failed", "target", h.cfg.TargetAddr, "err", err)
		h.reject(client, http.StatusBadGateway, metrics.ReasonUpstreamDown)
		// Throttle, not a retry: slows tight failure loops while the
		// target is down.
		time.Sleep(h.cfg.GatewayDelay)
		return
	}
	defer func() { _ = upstream.Close() }()

	if err := forward(upstream, []byte(rewritten), body); err != nil {
		h.logger.Error("forward request upstream", "target", h.cfg.TargetAddr, "err", err)
		return
	}

	respPreamble, err := upstream.ReadPreamble()
	if err != nil {
		h.logger.Error("read upstream response preamble", "target", h.cfg.TargetAddr, "err", err)
		return
	}
	if _, err := client.Write(respPreamble); err != nil {
		h.logger.Error("relay response preamble", "remote", client.RemoteAddr(), "err", err)
		return
	}
	if err := client.Flush(); err != nil {
		h.logger.Error("flush response preamble", "remote", client.RemoteAddr(), "err", err)
		return
	}

	h.streamBody(upstream, client, respPreamble)
}

// receiveRequest reads the client's preamble and, when one is declared, its
// content-length body.
func (h *Handler) receiveRequest(client *transport.Conn) (preamble, body []byte, err error) {
	preamble, err = client.ReadPreamble()
	if err != nil {
		return nil, nil, err
	}
	if n, ok := header.ContentLength(string(preamble)); ok && n > 0 {
		if h.cfg.BodyMaxBytes > 0 && n > h.cfg.BodyMaxBytes {
			return nil, nil, fmt.Errorf("%w: declared %d, limit %d", errBodyTooLarge, n, h.cfg.BodyMaxBytes)
		}
		body, err = client.ReadBody(n)
		if err != nil {
			return nil, nil, fmt.Errorf("request body: %w", err)
		}
	}
	return preamble, body, nil
}

// connectUpstream opens a fresh connection to the target, one per request.
func (h *Handler) connectUpstream() (*transport.Conn, error) {
	start := time.Now()
	upstream, err := transport.Dial(h.cfg.TargetAddr, h.cfg.ConnectTimeout, h.cfg.ReadTimeout, h.cfg.WriteTimeout)
	if h.metrics != nil {
		h.metrics.UpstreamConnectDuration.Observe(time.Since(start).Seconds())
	}
	return upstream, err
}

// forward writes the rewritten preamble and any request body upstream.
func forward(upstream *transport.Conn, preamble, body []byte) error {
	if _, err := upstream.Write(preamble); err != nil {
		return fmt.Errorf("write preamble: %w", err)
	}
	if len(body) > 0 {
		if _, err := upstream.Write(body); err != nil {
			return fmt.Errorf("write body: %w", err)
		}
	}
	return upstream.Flush()
}

// streamBody relays the response body in ChunkSize reads. It stops at
// end-of-stream: upstream EOF, or the declared content length consumed.
// Read errors are tolerated up to maxChunkReadErrors in a row; a peer reset
// stops the stream immediately since it just means the upstream closed
// abruptly after its last byte.
func (h *Handler) streamBody(upstream, client *transport.Conn, respPreamble []byte) {
	remaining, declared := header.ContentLength(string(respPreamble))
	if declared && remaining == 0 {
		return
	}

	buf := make([]byte, h.cfg.ChunkSize)
	budget := maxChunkReadErrors
	var total uint64

	for {
		limit := len(buf)
		if declared && remaining < uint64(limit) {
			limit = int(remaining)
		}

		n, err := upstream.ReadChunk(buf[:limit])
		if n > 0 {
			if _, werr := client.Write(buf[:n]); werr != nil {
				h.logger.Error("write chunk to client", "remote", client.RemoteAddr(), "err", werr)
				break
			}
			if ferr := client.Flush(); ferr != nil {
				h.logger.Error("flush chunk to client", "remote", client.RemoteAddr(), "err", ferr)
				break
			}
			total += uint64(n)
			budget = maxChunkReadErrors
			if declared {
				remaining -= uint64(n)
				if remaining == 0 {
					break
				}
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if isPeerReset(err) {
				h.logger.Info("upstream reset during body", "err", err)
				break
			}
			budget--
			h.logger.Error("read body chunk", "err", err, "attempts_left", budget)
			if budget <= 0 {
				break
			}
		}
	}

	if h.metrics != nil {
		h.metrics.BodyBytesStreamed.Add(float64(total))
	}
	h.logger.Info("body relayed", "bytes", total)
}

// reject answers the client with a status line and a zero-length-body
// terminator, the wire shape legacy clients expect for 400 and 502.
func (h *Handler) reject(client *transport.Conn, code int, reason string) {
	if h.metrics != nil {
		h.metrics.RequestsRejected.WithLabelValues(metrics.NormalizeReason(reason)).Inc()
	}
	if err := client.WriteStatus(code); err != nil {
		h.logger.Error("write reject status", "remote", client.RemoteAddr(), "err", err)
		return
	}
	if _, err := client.Write(zeroLengthTerminator); err != nil {
		h.logger.Error("write reject terminator", "remote", client.RemoteAddr(), "err", err)
		return
	}
	if err := client.Flush(); err != nil {
		h.logger.Error("flush reject response", "remote", client.RemoteAddr(), "err", err)
	}
}

// isPeerReset reports whether err is the peer abruptly closing the
// connection rather than an unexpected I/O fault.
func isPeerReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}
