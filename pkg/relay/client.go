// Package relay forwards command APDUs to a remote oracle over one persistent
// TCP connection and reads back its answers.
//
// Every message in both directions is a single length byte followed by that
// many payload bytes. The client always speaks first and the exchange strictly
// alternates: one command frame, then one response frame.
package relay

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultHost        = "localhost"
	DefaultPort        = 12345
	DefaultDialTimeout = 5 * time.Second
	DefaultIOTimeout   = 5 * time.Second
)

// Config describes where the oracle listens and how long I/O may block.
// A zero IOTimeout disables read and write deadlines.
type Config struct {
	Host        string
	Port        int
	DialTimeout time.Duration
	IOTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Host:        DefaultHost,
		Port:        DefaultPort,
		DialTimeout: DefaultDialTimeout,
		IOTimeout:   DefaultIOTimeout,
	}
}

// Client owns the relay connection. Connect and Disconnect may be called from
// any goroutine; Exchange serializes users of the connection.
type Client struct {
	cfg Config
	log zerolog.Logger

	mu          sync.Mutex // guards conn and the in-flight exchange
	conn        net.Conn
	established atomic.Bool
}

// NewClient builds a disconnected client. Missing config fields take their defaults.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	return &Client{
		cfg: cfg,
		log: log.With().Str("component", "relay").Logger(),
	}
}

// Addr returns the oracle address as host:port.
func (c *Client) Addr() string {
	return net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

// Established reports whether a connection is currently open.
func (c *Client) Established() bool {
	return c.established.Load()
}

// Connect dials the oracle unless a connection is already open and returns
// whether the client is established afterwards. Failures are logged, not returned.
func (c *Client) Connect(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.established.Load() {
		return true
	}

	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.Addr())
	if err != nil {
		c.log.Warn().Err(err).Str("addr", c.Addr()).Msg("relay connect failed")
		return false
	}

	c.conn = conn
	c.established.Store(true)
	c.log.Info().Str("addr", c.Addr()).Msg("relay connected")
	return true
}

// Disconnect closes the connection if one is open and returns whether the
// client is disconnected afterwards.
func (c *Client) Disconnect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.established.Load() {
		return true
	}

	err := c.conn.Close()
	c.conn = nil
	c.established.Store(false)
	if err != nil {
		c.log.Warn().Err(err).Str("addr", c.Addr()).Msg("relay close failed, connection dropped")
		return true
	}
	c.log.Info().Str("addr", c.Addr()).Msg("relay disconnected")
	return true
}

// Close releases the connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.established.Load() {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.established.Store(false)
	return err
}

// SendCommand writes one command frame. It returns false without any I/O
// when the client is not established or the payload does not fit a frame.
func (c *Client) SendCommand(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(payload)
}

// WaitForResponse reads one response frame. It returns false when the client
// is not established, on I/O failure or when the stream ends mid-frame; the
// last two also drop the connection.
func (c *Client) WaitForResponse() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receive()
}

// Exchange sends a command and waits for its response while holding the
// connection, so concurrent callers cannot interleave frames.
func (c *Client) Exchange(payload []byte) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.send(payload) {
		return nil, false
	}
	return c.receive()
}

func (c *Client) send(payload []byte) bool {
	if !c.established.Load() {
		return false
	}
	if len(payload) > MaxPayload {
		c.log.Error().Err(ErrPayloadTooLarge).Int("len", len(payload)).Msg("relay send refused")
		return false
	}

	if c.cfg.IOTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.IOTimeout))
	}
	if err := WriteFrame(c.conn, payload); err != nil {
		c.drop(err, "relay send failed")
		return false
	}
	return true
}

func (c *Client) receive() ([]byte, bool) {
	if !c.established.Load() {
		return nil, false
	}

	if c.cfg.IOTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.IOTimeout))
	}
	resp, err := ReadFrame(c.conn)
	if err != nil {
		msg := "relay receive failed"
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			msg = "relay response timed out"
		}
		c.drop(err, msg)
		return nil, false
	}
	return resp, true
}

// drop closes the connection after a failed send or receive, so a late frame
// can never answer a later command. Callers hold c.mu.
func (c *Client) drop(err error, msg string) {
	_ = c.conn.Close()
	c.conn = nil
	c.established.Store(false)
	c.log.Warn().Err(err).Str("addr", c.Addr()).Msg(msg + ", connection dropped")
}
