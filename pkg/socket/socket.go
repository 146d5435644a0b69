// Package socket wraps a single client WebSocket connection to a peer.
//
// A Conn is bound to its URL when created and dialed by Open. Incoming text
// frames are decoded as domain.Message values and handed to the message
// handler from a dedicated read goroutine. There is no reconnection,
// backpressure or delivery acknowledgment.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sbm367/syft/internal/logging"
	"github.com/sbm367/syft/pkg/domain"
)

// DefaultHandshakeTimeout bounds the opening handshake.
const DefaultHandshakeTimeout = 10 * time.Second

const closeGracePeriod = time.Second

// MessageHandler receives decoded messages from the read goroutine.
type MessageHandler func(context.Context, domain.Message)

// Option configures a Conn.
type Option func(*Conn)

// WithHandshakeTimeout overrides DefaultHandshakeTimeout.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Conn) {
		c.dialer.HandshakeTimeout = d
	}
}

// WithHeader adds request headers to the opening handshake.
func WithHeader(h http.Header) Option {
	return func(c *Conn) {
		c.header = h.Clone()
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMessageHandler sets the handler for incoming messages.
func WithMessageHandler(h MessageHandler) Option {
	return func(c *Conn) {
		c.onMessage = h
	}
}

// WithCloseHandler is called once when the read loop ends because the peer
// went away or the connection failed. It is not called for Close.
func WithCloseHandler(h func(error)) Option {
	return func(c *Conn) {
		c.onClose = h
	}
}

// Conn is a client connection to a peer.
type Conn struct {
	url       string
	dialer    *websocket.Dialer
	header    http.Header
	logger    *slog.Logger
	onMessage MessageHandler
	onClose   func(error)

	mu      sync.Mutex
	ws      *websocket.Conn
	opened  bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	writeMu sync.Mutex
}

// New returns a connection bound to url without dialing it.
// It returns nil when url is empty.
func New(url string, opts ...Option) *Conn {
	if url == "" {
		return nil
	}
	c := &Conn{
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultHandshakeTimeout,
		},
		logger: logging.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the peer address the connection is bound to.
func (c *Conn) URL() string {
	return c.url
}

// Open dials the peer and starts reading messages.
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("connection to %s is closed", c.url)
	}
	if c.opened {
		return fmt.Errorf("connection to %s was already opened", c.url)
	}

	ws, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to %s (status %d): %w", c.url, resp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c.ws = ws
	c.opened = true
	c.cancel = cancel
	c.logger.Info("socket opened", "url", c.url)

	go c.readLoop(readCtx, ws)
	return nil
}

// Connected reports whether the connection is open.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws != nil && !c.closed
}

// Done is closed when the connection stops reading, either after Close or
// because the peer went away.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) {
	var readErr error
	defer func() {
		c.mu.Lock()
		intentional := c.closed
		c.ws = nil
		c.mu.Unlock()

		close(c.done)
		if intentional {
			return
		}
		c.logger.Warn("socket closed by peer", "url", c.url, "error", readErr)
		if c.onClose != nil {
			c.onClose(readErr)
		}
	}()

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			readErr = err
			return
		}
		if kind != websocket.TextMessage {
			c.logger.Warn("skipping non-text frame", "url", c.url, "kind", kind)
			continue
		}

		var msg domain.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("skipping undecodable frame", "url", c.url, "error", err)
			continue
		}

		c.logger.Debug("message received", "id", msg.ID, "type", msg.Type)
		if c.onMessage != nil {
			c.onMessage(ctx, msg)
		}
	}
}

// Send writes msg as a single JSON text frame. The context deadline, if any,
// bounds the write.
func (c *Conn) Send(ctx context.Context, msg domain.Message) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return domain.ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message %s: %w", msg.ID, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send message %s: %w", msg.ID, err)
	}

	c.logger.Debug("message sent", "id", msg.ID, "type", msg.Type)
	return nil
}

// Close sends a close frame and closes the socket. It does not wait for the
// read loop, so it is safe to call from a message handler; use Done to wait.
// Closing twice, or closing a connection that was never opened, is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws, cancel, opened := c.ws, c.cancel, c.opened
	c.mu.Unlock()

	if !opened {
		close(c.done)
		return nil
	}
	if ws == nil {
		// The peer already went away and the read loop has exited.
		cancel()
		return nil
	}

	c.writeMu.Lock()
	err := ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod))
	c.writeMu.Unlock()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug("close frame not sent", "url", c.url, "error", err)
	}

	closeErr := ws.Close()
	cancel()

	c.logger.Info("socket closed", "url", c.url)
	return closeErr
}
