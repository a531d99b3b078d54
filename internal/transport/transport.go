// Package transport wraps a raw network connection with the framing
// operations the proxy handler needs: preamble-boundary reads, status
// lines, and buffered, deadline-bounded writes.
package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"time"
)

// terminator ends an HTTP-like preamble: the CRLF of the last header line
// followed by the blank line.
var terminator = []byte("\r\n\r\n")

// maxPreambleBytes caps how large a preamble a peer may send before the
// read is abandoned.
const maxPreambleBytes = 64 * 1024

// ErrPreambleTooLarge reports a peer that sent maxPreambleBytes without a
// blank-line terminator.
var ErrPreambleTooLarge = errors.New("transport: preamble exceeds size limit")

// Conn wraps a net.Conn. Every read and write arms a fresh deadline so a
// slow or silent peer cannot occupy a worker indefinitely; a zero timeout
// disables the corresponding deadline.
type Conn struct {
	conn         net.Conn
	r            *bufio.Reader
	w            *bufio.Writer
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// New wraps an accepted or dialed connection.
func New(conn net.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{
		conn:         conn,
		r:            bufio.NewReader(conn),
		w:            bufio.NewWriter(conn),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// Dial opens a fresh TCP connection to addr and wraps it. Connections are
// never pooled or reused; one dial serves exactly one request.
func Dial(addr string, connectTimeout, readTimeout, writeTimeout time.Duration) (*Conn, error) {
	c, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(c, readTimeout, writeTimeout), nil
}

// ReadPreamble reads the header block up to and including the blank-line
// terminator. A peer that half-closes after sending a complete block but
// before the terminator still yields what was read, mirroring clients that
// frame their request by closing the write side.
func (c *Conn) ReadPreamble() ([]byte, error) {
	c.armReadDeadline()
	buf := make([]byte, 0, 512)
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			if err == io.EOF && len(buf) > 0 {
				return buf, nil
			}
			return nil, fmt.Errorf("read preamble: %w", err)
		}
		buf = append(buf, b)
		if bytes.HasSuffix(buf, terminator) {
			return buf, nil
		}
		if len(buf) >= maxPreambleBytes {
			return buf, ErrPreambleTooLarge
		}
	}
}

// ReadBody reads exactly n body bytes following a preamble. Callers are
// expected to bound n by policy first; lengths that cannot even be
// represented as a slice size fail here rather than panic.
func (c *Conn) ReadBody(n uint64) ([]byte, error) {
	if n > math.MaxInt {
		return nil, fmt.Errorf("read body: length %d overflows buffer size", n)
	}
	c.armReadDeadline()
	body := make([]byte, n)
	if _, err := io.ReadFull(c.r, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// ReadChunk performs one deadline-bounded read of up to len(buf) bytes.
func (c *Conn) ReadChunk(buf []byte) (int, error) {
	c.armReadDeadline()
	return c.r.Read(buf)
}

// WriteStatus writes an HTTP/1.1 status line for the given code.
func (c *Conn) WriteStatus(code int) error {
	c.armWriteDeadline()
	if _, err := fmt.Fprintf(c.w, "HTTP/1.1 %d %s\r\n", code, http.StatusText(code)); err != nil {
		return fmt.Errorf("write status line: %w", err)
	}
	return nil
}

// Write buffers p for sending to the peer.
func (c *Conn) Write(p []byte) (int, error) {
	c.armWriteDeadline()
	return c.w.Write(p)
}

// Flush pushes buffered writes to the peer.
func (c *Conn) Flush() error {
	c.armWriteDeadline()
	return c.w.Flush()
}

// RemoteAddr reports the peer address for logging.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Close flushes any buffered data and closes the underlying connection.
func (c *Conn) Close() error {
	_ = c.Flush()
	return c.conn.Close()
}

func (c *Conn) armReadDeadline() {
	if c.readTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
}

func (c *Conn) armWriteDeadline() {
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
}
