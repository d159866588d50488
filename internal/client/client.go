package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/liuscraft/orion-stream/internal/logging"
	"github.com/liuscraft/orion-stream/internal/protocol"
)

var (
	// ErrAbnormalClose reports a connection that ended without a normal
	// closure.
	ErrAbnormalClose = errors.New("connection closed abnormally")
	ErrNotConnected  = errors.New("not connected")
)

type Config struct {
	URL string
	// MaxTries bounds dial attempts per (re)connect. Zero disables
	// reconnecting after a drop; the first connect still tries once.
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	WriteTimeout    time.Duration
	Dialer          *websocket.Dialer
}

func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		MaxTries:        5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
	}
}

// Client speaks the streaming protocol to one server session at a time.
// A reconnect always opens a fresh session; server state is not resumed.
type Client struct {
	cfg       Config
	log       *zap.SugaredLogger
	onMessage func(protocol.Outbound)

	mu          sync.Mutex
	conn        *websocket.Conn
	onReconnect func()
}

func New(cfg Config, onMessage func(protocol.Outbound)) *Client {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	return &Client{
		cfg:       cfg,
		log:       logging.Component("client"),
		onMessage: onMessage,
	}
}

// OnReconnect registers a callback run after a dropped connection has been
// replaced by a new session.
func (c *Client) OnReconnect(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnect = f
}

// Connect dials with exponential backoff and sends the handshake.
func (c *Client) Connect(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialInterval
	b.MaxInterval = c.cfg.MaxInterval

	op := func() (*websocket.Conn, error) {
		conn, resp, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, backoff.Permanent(fmt.Errorf("dial %s: %s", c.cfg.URL, resp.Status))
			}
			return nil, err
		}
		return conn, nil
	}
	notify := func(err error, next time.Duration) {
		c.log.Warnw("dial failed, retrying", "url", c.cfg.URL, "retry_in", next, "error", err)
	}

	conn, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(max(c.cfg.MaxTries, 1)),
		backoff.WithNotify(notify),
	)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.mu.Unlock()
	c.log.Infow("connected", "url", c.cfg.URL)
	return c.send(protocol.Handshake())
}

// Run reads server messages until a normal closure, ctx ending, or a drop
// that cannot be recovered.
func (c *Client) Run(ctx context.Context) error {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return ErrNotConnected
		}

		err := c.read(ctx, conn)
		if err == nil {
			c.log.Infow("session closed normally")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.cfg.MaxTries == 0 {
			return err
		}

		c.log.Warnw("connection lost, reconnecting", "error", err)
		if rerr := c.Connect(ctx); rerr != nil {
			return fmt.Errorf("%w: %v", err, rerr)
		}
		c.mu.Lock()
		f := c.onReconnect
		c.mu.Unlock()
		if f != nil {
			f()
		}
	}
}

func (c *Client) read(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrAbnormalClose, err)
		}
		msg, err := protocol.DecodeOutbound(data)
		if err != nil {
			c.log.Warnw("bad server message", "error", err)
			continue
		}
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}
}

func (c *Client) SendText(text string) error { return c.send(protocol.Text(text)) }
func (c *Client) Flush(text string) error    { return c.send(protocol.Flush(text)) }
func (c *Client) Reset() error               { return c.send(protocol.Reset()) }

// Close asks the server to finish the session; Run returns once the
// server's normal closure arrives.
func (c *Client) Close() error { return c.send(protocol.Close()) }

// Abort drops the connection without the closing handshake.
func (c *Client) Abort() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) send(msg protocol.Inbound) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
