package proxy

import "time"

// Built-in defaults, applied by DefaultConfig.
const (
	DefaultListenAddr = "127.0.0.1:3000"
	DefaultTargetAddr = "127.0.0.1:3001"
	DefaultWorkers    = 4
	DefaultChunkSize  = 1024

	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 30 * time.Second
	DefaultWriteTimeout   = 30 * time.Second

	// DefaultGatewayDelay is the pause after a failed upstream connect. It
	// throttles tight failure loops while the target is down; the connect
	// is never retried.
	DefaultGatewayDelay = 100 * time.Millisecond

	// DefaultBodyMaxBytes caps the request body size a client may declare.
	DefaultBodyMaxBytes uint64 = 10 * 1024 * 1024 // 10 MB
)

// Config describes one proxy instance. It is a plain value, immutable after
// startup: each connection job works on its own copy, so no configuration
// state is shared for mutation across connections.
type Config struct {
	// ListenAddr is the address the dispatch loop binds.
	ListenAddr string
	// TargetAddr is the fixed upstream every request is forwarded to; it
	// also becomes the rewritten Host value.
	TargetAddr string
	// Workers is the size of the connection-handling pool.
	Workers int
	// ChunkSize is the body-streaming read size in bytes.
	ChunkSize int
	// BodyMaxBytes is the largest request body a client may declare via
	// Content-Length. Larger declarations are rejected with 400 before any
	// buffer is sized from them; 0 disables the cap.
	BodyMaxBytes uint64

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	GatewayDelay   time.Duration

	// AcceptPerSecond rate-limits the accept loop when > 0.
	AcceptPerSecond float64
}

// DefaultConfig returns the built-in defaults. Callers adjust fields with
// the With* methods before binding.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     DefaultListenAddr,
		TargetAddr:     DefaultTargetAddr,
		Workers:        DefaultWorkers,
		ChunkSize:      DefaultChunkSize,
		BodyMaxBytes:   DefaultBodyMaxBytes,
		ConnectTimeout: DefaultConnectTimeout,
		ReadTimeout:    DefaultReadTimeout,
		WriteTimeout:   DefaultWriteTimeout,
		GatewayDelay:   DefaultGatewayDelay,
	}
}

// WithListenAddr returns a copy of c listening on addr.
func (c Config) WithListenAddr(addr string) Config {
	c.ListenAddr = addr
	return c
}

// WithTargetAddr returns a copy of c forwarding to addr.
func (c Config) WithTargetAddr(addr string) Config {
	c.TargetAddr = addr
	return c
}

// WithWorkers returns a copy of c with n pool workers.
func (c Config) WithWorkers(n int) Config {
	c.Workers = n
	return c
}

// WithChunkSize returns a copy of c streaming bodies in n-byte reads.
func (c Config) WithChunkSize(n int) Config {
	c.ChunkSize = n
	return c
}

// WithBodyMaxBytes returns a copy of c accepting declared request bodies up
// to n bytes.
func (c Config) WithBodyMaxBytes(n uint64) Config {
	c.BodyMaxBytes = n
	return c
}
