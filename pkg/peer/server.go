// Package peer implements the remote side of a syft connection: a WebSocket
// endpoint that mirrors the tensors of connected clients, records the results
// they report and relays commands posted over HTTP.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sbm367/syft/internal/logging"
	"github.com/sbm367/syft/internal/runtime"
	"github.com/sbm367/syft/pkg/domain"
	"github.com/sbm367/syft/pkg/metrics"
	"github.com/sbm367/syft/pkg/observer"
)

// DefaultResultLimit is the number of reported results kept in memory.
const DefaultResultLimit = 100

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithResultLimit caps how many reported results are retained.
func WithResultLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.resultLimit = n
		}
	}
}

// WithMetrics exports the mirrored activity on reg and serves it at /metrics.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// Server mirrors connected clients.
type Server struct {
	logger      *slog.Logger
	observer    *observer.Observer
	store       *runtime.Store
	hub         *hub
	upgrader    websocket.Upgrader
	registry    *prometheus.Registry
	resultLimit int

	mu      sync.RWMutex
	results []domain.Message
}

// New creates a peer server.
func New(opts ...Option) (*Server, error) {
	s := &Server{
		logger:      logging.NewNop(),
		observer:    observer.New(),
		resultLimit: DefaultResultLimit,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = newHub(s.logger)
	s.store = runtime.NewStore(s.observer, runtime.WithStoreLogger(s.logger))

	if s.registry != nil {
		collector, err := metrics.New(s.registry)
		if err != nil {
			return nil, fmt.Errorf("failed to register peer metrics: %w", err)
		}
		collector.Attach(s.observer)
	}
	return s, nil
}

// Handler returns the HTTP routes of the peer.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", s.ServeWS)
	r.Get("/health", s.getHealth)
	r.Get("/tensors", s.getTensors)
	r.Get("/results", s.getResults)
	r.Post("/commands", s.postCommand)
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return r
}

// Observer returns the registry notified of mirrored mutations and messages.
func (s *Server) Observer() *observer.Observer {
	return s.observer
}

// Tensors returns the mirrored tensors in the order clients added them.
func (s *Server) Tensors() []domain.Record {
	return s.store.List()
}

// Results returns the most recent operation results and errors reported by
// clients, oldest first.
func (s *Server) Results() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Message{}, s.results...)
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	return s.hub.count()
}

// Send relays a command to every connected client and returns how many
// accepted it.
func (s *Server) Send(ctx context.Context, msg domain.Message) (int, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to encode message %s: %w", msg.ID, err)
	}
	n := s.hub.broadcast(data)
	if n > 0 {
		s.observer.Broadcast(ctx, &domain.MessageEvent{
			EventBase: domain.NewEventBase(domain.EventMessageSent),
			Message:   msg,
		})
	}
	s.logger.Debug("peer: command relayed", "id", msg.ID, "type", msg.Type, "clients", n)
	return n, nil
}

// Close disconnects every client.
func (s *Server) Close() {
	s.hub.closeAll()
}

// ServeWS upgrades the request and mirrors the client until it disconnects.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("peer: upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	total := s.hub.add(c)
	s.logger.Info("peer: client connected", "remote", conn.RemoteAddr().String(), "clients", total)
	go c.writeLoop(s.logger)

	defer func() {
		total := s.hub.remove(c)
		s.logger.Info("peer: client disconnected", "remote", conn.RemoteAddr().String(), "clients", total)
	}()

	ctx := context.Background()
	for {
		var msg domain.Message
		if err := conn.ReadJSON(&msg); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				s.logger.Debug("peer: read ended", "error", err)
			}
			return
		}
		s.handle(ctx, msg)
	}
}

func (s *Server) handle(ctx context.Context, msg domain.Message) {
	s.observer.Broadcast(ctx, &domain.MessageEvent{
		EventBase: domain.NewEventBase(domain.EventMessageReceived),
		Message:   msg,
	})

	switch msg.Type {
	case domain.MsgTensorAdded:
		var p domain.TensorPayload
		if err := msg.Decode(&p); err != nil {
			s.logger.Warn("peer: bad tensor-added", "id", msg.ID, "error", err)
			return
		}
		s.mirrorAdd(ctx, p)
	case domain.MsgTensorRemoved:
		var p domain.RemovePayload
		if err := msg.Decode(&p); err != nil {
			s.logger.Warn("peer: bad tensor-removed", "id", msg.ID, "error", err)
			return
		}
		if _, err := s.store.Remove(ctx, p.ID); err != nil {
			s.logger.Debug("peer: remove not mirrored", "tensor", p.ID, "error", err)
		}
	case domain.MsgOperationResult, domain.MsgError, domain.MsgTensors:
		s.record(msg)
	default:
		s.logger.Debug("peer: ignoring message", "id", msg.ID, "type", msg.Type)
	}
}

// mirrorAdd stores the tensor, replacing any earlier tensor with the same id.
func (s *Server) mirrorAdd(ctx context.Context, p domain.TensorPayload) {
	t, err := p.Tensor()
	if err != nil {
		s.logger.Warn("peer: tensor not mirrored", "tensor", p.ID, "error", err)
		return
	}
	if _, ok := s.store.Get(p.ID); ok {
		if _, err := s.store.Remove(ctx, p.ID); err != nil {
			s.logger.Warn("peer: failed to replace tensor", "tensor", p.ID, "error", err)
			return
		}
	}
	if _, err := s.store.Add(ctx, p.ID, t); err != nil {
		s.logger.Warn("peer: tensor not mirrored", "tensor", p.ID, "error", err)
	}
}

func (s *Server) record(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, msg)
	if over := len(s.results) - s.resultLimit; over > 0 {
		s.results = append([]domain.Message{}, s.results[over:]...)
	}
}

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "clients": s.Clients()})
}

func (s *Server) getTensors(w http.ResponseWriter, _ *http.Request) {
	records := s.store.List()
	out := domain.TensorsPayload{Tensors: make([]domain.TensorPayload, 0, len(records))}
	for _, rec := range records {
		out.Tensors = append(out.Tensors, domain.NewTensorPayload(rec.ID, rec.Tensor))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getResults(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Results())
}

// commandRequest is the body of POST /commands.
type commandRequest struct {
	Type domain.MessageType `json:"type"`
	Data json.RawMessage    `json:"data,omitempty"`
}

func (s *Server) postCommand(w http.ResponseWriter, r *http.Request) {
	var body commandRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("peer: invalid command body", "error", err)
		return
	}
	switch body.Type {
	case domain.MsgAddTensor, domain.MsgRemoveTensor, domain.MsgRunOperation, domain.MsgGetTensors:
	default:
		http.Error(w, fmt.Sprintf("%v: %q", domain.ErrUnknownMessage, body.Type), http.StatusBadRequest)
		return
	}

	var payload any
	if len(body.Data) > 0 {
		payload = body.Data
	}
	msg, err := domain.NewMessage(body.Type, payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n, err := s.Send(r.Context(), msg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": msg.ID, "clients": n})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("peer: response encode failed", "error", err)
	}
}
