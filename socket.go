package syft

import (
	"context"
	"errors"
	"fmt"

	"github.com/sbm367/syft/pkg/domain"
	"github.com/sbm367/syft/pkg/socket"
)

// CreateSocketConnection returns a connection to url wired to this client's
// message handling, without dialing it or making it current.
// It returns nil when url is empty.
func (s *Syft) CreateSocketConnection(url string) *socket.Conn {
	var conn *socket.Conn
	opts := []socket.Option{
		socket.WithHandshakeTimeout(s.dialTimeout),
		socket.WithLogger(s.logger),
		socket.WithMessageHandler(s.handleMessage),
		socket.WithCloseHandler(func(err error) {
			s.detach(conn, err)
		}),
	}
	if len(s.header) > 0 {
		opts = append(opts, socket.WithHeader(s.header))
	}
	conn = socket.New(url, opts...)
	return conn
}

// Start connects to url and makes the connection current, closing any
// previous one.
func (s *Syft) Start(ctx context.Context, url string) error {
	conn := s.CreateSocketConnection(url)
	if conn == nil {
		return errors.New("cannot start without a peer url")
	}
	if err := conn.Open(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.socket
	s.socket = conn
	s.url = url
	s.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			s.logger.Warn("failed to close previous socket", "url", prev.URL(), "error", err)
		}
	}

	// The peer may hang up before conn became current, in which case its
	// close handler found nothing to detach.
	if !conn.Connected() {
		s.detach(conn, nil)
		return fmt.Errorf("%w: peer at %s closed the connection", domain.ErrNotConnected, url)
	}
	s.logger.Info("connected to peer", "url", url)
	return nil
}

// Stop closes the current connection. Stopping a client without one is a
// no-op.
func (s *Syft) Stop() error {
	s.mu.Lock()
	conn := s.socket
	s.socket = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	s.logger.Info("disconnecting from peer", "url", conn.URL())
	return conn.Close()
}

// Socket returns the current connection, or nil.
func (s *Syft) Socket() *socket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.socket
}

// SendMessage wraps payload in a message of type t and writes it to the peer.
// It fails with domain.ErrNotConnected when there is no connection.
func (s *Syft) SendMessage(ctx context.Context, t domain.MessageType, payload any) (domain.Message, error) {
	conn := s.Socket()
	if conn == nil {
		return domain.Message{}, domain.ErrNotConnected
	}

	msg, err := domain.NewMessage(t, payload)
	if err != nil {
		return domain.Message{}, err
	}
	if err := conn.Send(ctx, msg); err != nil {
		return domain.Message{}, fmt.Errorf("failed to send %s: %w", t, err)
	}

	s.observer.Broadcast(ctx, &domain.MessageEvent{
		EventBase: domain.NewEventBase(domain.EventMessageSent),
		Message:   msg,
	})
	return msg, nil
}

// detach forgets conn after the peer dropped it, unless it was already
// replaced.
func (s *Syft) detach(conn *socket.Conn, err error) {
	s.mu.Lock()
	current := s.socket == conn
	if current {
		s.socket = nil
	}
	s.mu.Unlock()

	if current {
		s.logger.Warn("peer connection lost", "url", conn.URL(), "error", err)
	}
}
