package syft

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sbm367/syft/internal/logging"
	"github.com/sbm367/syft/internal/runtime"
	"github.com/sbm367/syft/pkg/config"
	"github.com/sbm367/syft/pkg/domain"
	"github.com/sbm367/syft/pkg/observer"
	"github.com/sbm367/syft/pkg/ports"
	"github.com/sbm367/syft/pkg/socket"
	"github.com/sbm367/syft/pkg/tensor"
)

// Version of the syft client.
const Version = "0.1.0"

// Syft is the high-level entry point of the library.
// It owns the tensor store, the operation runner, the observer and at most one
// live peer connection.
type Syft struct {
	observer *observer.Observer
	store    *runtime.Store
	runner   *runtime.Runner
	logger   *slog.Logger

	url         string
	verbose     bool
	logOutput   io.Writer
	dialTimeout time.Duration
	header      http.Header
	persist     ports.TensorStore
	registry    *tensor.Registry

	mu     sync.Mutex
	socket *socket.Conn
}

// Option defines a functional option for configuring Syft.
type Option func(*Syft)

// WithURL connects to the peer at url during New.
func WithURL(url string) Option {
	return func(s *Syft) {
		s.url = url
	}
}

// WithVerbose enables log output.
func WithVerbose(verbose bool) Option {
	return func(s *Syft) {
		s.verbose = verbose
	}
}

// WithLogOutput sets where verbose logs are written (default: Stderr).
func WithLogOutput(w io.Writer) Option {
	return func(s *Syft) {
		s.logOutput = w
	}
}

// WithLogger sets a custom structured logger, bypassing the verbose flag.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syft) {
		s.logger = logger
	}
}

// WithStore persists tensors in a ports.TensorStore.
func WithStore(store ports.TensorStore) Option {
	return func(s *Syft) {
		s.persist = store
	}
}

// WithRegistry replaces the default operation registry.
func WithRegistry(reg *tensor.Registry) Option {
	return func(s *Syft) {
		s.registry = reg
	}
}

// WithDialTimeout bounds the WebSocket opening handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(s *Syft) {
		s.dialTimeout = d
	}
}

// WithHeader adds a header to every WebSocket handshake.
func WithHeader(key, value string) Option {
	return func(s *Syft) {
		if s.header == nil {
			s.header = http.Header{}
		}
		s.header.Add(key, value)
	}
}

// WithConfig applies URL, verbosity, dial timeout and handshake headers from
// a loaded config.
func WithConfig(cfg config.Config) Option {
	return func(s *Syft) {
		s.url = cfg.URL
		s.verbose = cfg.Verbose
		if d := cfg.DialTimeoutDuration(); d > 0 {
			s.dialTimeout = d
		}
		for k, v := range cfg.Headers {
			WithHeader(k, v)(s)
		}
	}
}

// New initializes a client. Without options it holds no connection and logs
// nothing. When a URL is configured the connection is opened before New
// returns.
func New(opts ...Option) (*Syft, error) {
	s := &Syft{
		dialTimeout: socket.DefaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logging.New(s.verbose, s.logOutput)
	}

	s.observer = observer.New()

	storeOpts := []runtime.StoreOption{runtime.WithStoreLogger(s.logger)}
	if s.persist != nil {
		storeOpts = append(storeOpts, runtime.WithPersistence(s.persist))
	}
	s.store = runtime.NewStore(s.observer, storeOpts...)
	s.runner = runtime.NewRunner(s.store, s.registry, s.observer, s.logger)

	s.subscribeMirror()

	if s.url != "" {
		if err := s.Start(context.Background(), s.url); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Observer returns the instance-owned event registry.
func (s *Syft) Observer() *observer.Observer {
	return s.observer
}

// Logger returns the client logger.
func (s *Syft) Logger() *slog.Logger {
	return s.logger
}

// Verbose reports whether log output is enabled.
func (s *Syft) Verbose() bool {
	return s.verbose
}

// Registry returns the operation registry.
func (s *Syft) Registry() *tensor.Registry {
	return s.runner.Registry()
}

// GetTensors returns the tensors in insertion order.
func (s *Syft) GetTensors() []domain.Record {
	return s.store.List()
}

// GetTensorByID looks a tensor up by id.
func (s *Syft) GetTensorByID(id string) (domain.Record, bool) {
	return s.store.Get(id)
}

// GetTensorIndex returns the insertion position of id, or -1.
func (s *Syft) GetTensorIndex(id string) int {
	return s.store.Index(id)
}

// AddTensor builds a tensor from nested numeric slices (or a *tensor.Tensor),
// stores it under id and returns the updated list. Adding an id that is
// already present fails with domain.ErrDuplicateTensor.
func (s *Syft) AddTensor(ctx context.Context, id string, data any) ([]domain.Record, error) {
	return s.store.Add(ctx, id, data)
}

// RemoveTensor deletes the tensor and returns the updated list. Removing an
// unknown id fails with domain.ErrTensorNotFound.
func (s *Syft) RemoveTensor(ctx context.Context, id string) ([]domain.Record, error) {
	return s.store.Remove(ctx, id)
}

// RunOperation applies funcName to the tensors named by ids and returns the
// result without storing it.
func (s *Syft) RunOperation(ctx context.Context, funcName string, ids []string) (*tensor.Tensor, error) {
	return s.runner.Run(ctx, funcName, ids)
}

// RunOperationInto runs an operation and stores its result under resultID.
// An empty or already used resultID fails before the operation runs, and no
// run-operation event is broadcast unless the result was stored.
func (s *Syft) RunOperationInto(ctx context.Context, funcName string, ids []string, resultID string) (*tensor.Tensor, error) {
	return s.runner.RunInto(ctx, funcName, ids, resultID)
}

// Restore loads tensors from the configured ports.TensorStore into an empty
// client.
func (s *Syft) Restore(ctx context.Context) ([]domain.Record, error) {
	return s.store.Restore(ctx)
}

// OnTensorAdded registers a handler for tensor-added events.
// The returned function unsubscribes it.
func (s *Syft) OnTensorAdded(fn func(context.Context, *domain.TensorAddedEvent)) func() {
	return s.on(domain.EventTensorAdded, func(ctx context.Context, e domain.Event) {
		if ev, ok := e.(*domain.TensorAddedEvent); ok {
			fn(ctx, ev)
		}
	})
}

// OnTensorRemoved registers a handler for tensor-removed events.
func (s *Syft) OnTensorRemoved(fn func(context.Context, *domain.TensorRemovedEvent)) func() {
	return s.on(domain.EventTensorRemoved, func(ctx context.Context, e domain.Event) {
		if ev, ok := e.(*domain.TensorRemovedEvent); ok {
			fn(ctx, ev)
		}
	})
}

// OnRunOperation registers a handler for completed operations.
func (s *Syft) OnRunOperation(fn func(context.Context, *domain.OperationEvent)) func() {
	return s.on(domain.EventRunOperation, func(ctx context.Context, e domain.Event) {
		if ev, ok := e.(*domain.OperationEvent); ok {
			fn(ctx, ev)
		}
	})
}

// OnMessageSent registers a handler for messages written to the peer.
func (s *Syft) OnMessageSent(fn func(context.Context, *domain.MessageEvent)) func() {
	return s.onMessage(domain.EventMessageSent, fn)
}

// OnMessageReceived registers a handler for messages read from the peer.
// It runs on the connection's read goroutine.
func (s *Syft) OnMessageReceived(fn func(context.Context, *domain.MessageEvent)) func() {
	return s.onMessage(domain.EventMessageReceived, fn)
}

func (s *Syft) onMessage(event domain.EventType, fn func(context.Context, *domain.MessageEvent)) func() {
	return s.on(event, func(ctx context.Context, e domain.Event) {
		if ev, ok := e.(*domain.MessageEvent); ok {
			fn(ctx, ev)
		}
	})
}

func (s *Syft) on(event domain.EventType, h domain.Handler) func() {
	sub := s.observer.Subscribe(event, h)
	return func() {
		s.observer.Unsubscribe(event, sub)
	}
}

// Close stops the connection and closes the persistent store when it
// implements io.Closer.
func (s *Syft) Close() error {
	err := s.Stop()
	if c, ok := s.persist.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
