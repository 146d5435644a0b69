package syft_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sbm367/syft"
	"github.com/sbm367/syft/pkg/adapters/file"
	"github.com/sbm367/syft/pkg/adapters/memory"
	"github.com/sbm367/syft/pkg/config"
	"github.com/sbm367/syft/pkg/domain"
	"github.com/sbm367/syft/pkg/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// fakePeer accepts client connections, records every message they send and
// lets the test push messages back over the latest connection.
type fakePeer struct {
	url      string
	received chan domain.Message
	conns    chan *websocket.Conn
}

func newFakePeer(t *testing.T) *fakePeer {
	t.Helper()
	p := &fakePeer{
		received: make(chan domain.Message, 64),
		conns:    make(chan *websocket.Conn, 4),
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(_ *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("Upgrade error: %v", err)
			return
		}
		defer conn.Close()
		p.conns <- conn

		for {
			var msg domain.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			p.received <- msg
		}
	}))
	t.Cleanup(server.Close)

	p.url = "ws" + strings.TrimPrefix(server.URL, "http")
	return p
}

func (p *fakePeer) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-p.conns:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("Timeout waiting for client to connect")
		return nil
	}
}

// next returns the next message of type want, skipping others.
func (p *fakePeer) next(t *testing.T, want domain.MessageType) domain.Message {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case msg := <-p.received:
			if msg.Type == want {
				return msg
			}
		case <-deadline:
			t.Fatalf("Timeout waiting for %s message", want)
			return domain.Message{}
		}
	}
}

func newClient(t *testing.T, opts ...syft.Option) *syft.Syft {
	t.Helper()
	s, err := syft.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNew(t *testing.T) {
	peer := newFakePeer(t)
	var logs bytes.Buffer

	s := newClient(t, syft.WithURL(peer.url), syft.WithVerbose(true), syft.WithLogOutput(&logs))

	assert.Empty(t, s.GetTensors())
	assert.NotNil(t, s.Observer())
	assert.NotNil(t, s.Logger())
	assert.True(t, s.Verbose())
	require.NotNil(t, s.Socket())
	assert.Equal(t, peer.url, s.Socket().URL())
	assert.Contains(t, logs.String(), "connected to peer")
}

func TestNew_Defaults(t *testing.T) {
	s := newClient(t)

	assert.False(t, s.Verbose())
	assert.Nil(t, s.Socket())
	assert.Contains(t, s.Registry().Names(), "add")
}

func TestNew_DialFailure(t *testing.T) {
	_, err := syft.New(syft.WithURL("ws://127.0.0.1:1/"), syft.WithDialTimeout(200*time.Millisecond))
	assert.Error(t, err)
}

func TestSyft_Helpers(t *testing.T) {
	ctx := context.Background()
	s := newClient(t)
	matrix := [][]float64{{1, 2}, {3, 4}}

	assert.Empty(t, s.GetTensors())

	_, err := s.AddTensor(ctx, "first-tensor", matrix)
	require.NoError(t, err)
	assert.Len(t, s.GetTensors(), 1)

	rec, ok := s.GetTensorByID("first-tensor")
	require.True(t, ok)
	assert.Equal(t, "first-tensor", rec.ID)

	_, ok = s.GetTensorByID("missing")
	assert.False(t, ok)

	_, err = s.AddTensor(ctx, "second-tensor", matrix)
	require.NoError(t, err)
	_, err = s.AddTensor(ctx, "third-tensor", matrix)
	require.NoError(t, err)

	assert.Equal(t, 1, s.GetTensorIndex("second-tensor"))
	assert.Equal(t, -1, s.GetTensorIndex("missing"))
}

func TestSyft_AddRemoveTensor(t *testing.T) {
	ctx := context.Background()
	s := newClient(t)

	tensors, err := s.AddTensor(ctx, "first-tensor", [][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	require.Len(t, tensors, 1)
	assert.Equal(t, "first-tensor", tensors[0].ID)

	_, err = s.AddTensor(ctx, "first-tensor", []float64{1})
	assert.ErrorIs(t, err, domain.ErrDuplicateTensor)

	tensors, err = s.RemoveTensor(ctx, "first-tensor")
	require.NoError(t, err)
	assert.Empty(t, tensors)

	_, err = s.RemoveTensor(ctx, "first-tensor")
	assert.ErrorIs(t, err, domain.ErrTensorNotFound)
}

func TestSyft_RunOperation(t *testing.T) {
	ctx := context.Background()
	s := newClient(t)

	_, err := s.AddTensor(ctx, "first-tensor", [][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	_, err = s.AddTensor(ctx, "second-tensor", [][]float64{{5, 6}, {7, 8}})
	require.NoError(t, err)

	result, err := s.RunOperation(ctx, "add", []string{"first-tensor", "second-tensor"})
	require.NoError(t, err)
	assert.Equal(t, []float64{6, 8, 10, 12}, result.Data())
	assert.Len(t, s.GetTensors(), 2, "results are not stored")

	_, err = s.RunOperation(ctx, "frobnicate", []string{"first-tensor"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)

	_, err = s.RunOperation(ctx, "add", []string{"first-tensor", "missing"})
	assert.ErrorIs(t, err, domain.ErrTensorNotFound)

	result, err = s.RunOperationInto(ctx, "mul", []string{"first-tensor", "second-tensor"}, "product")
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 12, 21, 32}, result.Data())
	rec, ok := s.GetTensorByID("product")
	require.True(t, ok)
	assert.True(t, result.Equal(rec.Tensor))
}

// rejectingStore fails to save one id.
type rejectingStore struct {
	*memory.Store
	reject string
}

func (s rejectingStore) Save(ctx context.Context, rec domain.Record) error {
	if rec.ID == s.reject {
		return errors.New("disk full")
	}
	return s.Store.Save(ctx, rec)
}

func TestSyft_RunOperationInto_Failures(t *testing.T) {
	ctx := context.Background()
	s := newClient(t, syft.WithStore(rejectingStore{Store: memory.NewStore(), reject: "lost"}))

	_, err := s.AddTensor(ctx, "a", []float64{1, 2})
	require.NoError(t, err)

	runs := 0
	s.OnRunOperation(func(context.Context, *domain.OperationEvent) { runs++ })

	_, err = s.RunOperationInto(ctx, "add", []string{"a", "a"}, "a")
	assert.ErrorIs(t, err, domain.ErrDuplicateTensor)

	_, err = s.RunOperationInto(ctx, "add", []string{"a", "a"}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTensorID)

	_, err = s.RunOperationInto(ctx, "add", []string{"a", "a"}, "lost")
	assert.Error(t, err)

	assert.Zero(t, runs, "failed calls must not report an operation")
	assert.Equal(t, []string{"a"}, domain.IDs(s.GetTensors()))

	_, err = s.RunOperationInto(ctx, "add", []string{"a", "a"}, "b")
	require.NoError(t, err)
	assert.Equal(t, 1, runs)
}

func TestSyft_NonFiniteResults(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	peer := newFakePeer(t)
	s := newClient(t, syft.WithURL(peer.url), syft.WithStore(file.New(dir)))

	_, err := s.AddTensor(ctx, "a", []float64{1, -1, 0})
	require.NoError(t, err)
	_, err = s.AddTensor(ctx, "z", []float64{0, 0, 0})
	require.NoError(t, err)

	q, err := s.RunOperationInto(ctx, "div", []string{"a", "z"}, "q")
	require.NoError(t, err)
	assert.True(t, math.IsInf(q.At(0), 1))
	assert.True(t, math.IsInf(q.At(1), -1))
	assert.True(t, math.IsNaN(q.At(2)))

	var added domain.TensorPayload
	for added.ID != "q" {
		require.NoError(t, peer.next(t, domain.MsgTensorAdded).Decode(&added))
	}
	mirrored, err := added.Tensor()
	require.NoError(t, err)
	assert.True(t, q.Equal(mirrored))

	var result domain.OperationPayload
	require.NoError(t, peer.next(t, domain.MsgOperationResult).Decode(&result))
	assert.Equal(t, []any{"Inf", "-Inf", "NaN"}, result.Result)

	rec, err := file.New(dir).Load(ctx, "q")
	require.NoError(t, err)
	assert.True(t, q.Equal(rec.Tensor))
}

func TestSyft_OnRunOperation(t *testing.T) {
	ctx := context.Background()
	s := newClient(t)

	var got *domain.OperationEvent
	s.OnRunOperation(func(_ context.Context, ev *domain.OperationEvent) {
		got = ev
	})

	_, err := s.AddTensor(ctx, "first-tensor", [][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	_, err = s.AddTensor(ctx, "second-tensor", [][]float64{{5, 6}, {7, 8}})
	require.NoError(t, err)
	_, err = s.RunOperation(ctx, "add", []string{"first-tensor", "second-tensor"})
	require.NoError(t, err)

	require.NotNil(t, got, "handler must run before RunOperation returns")
	assert.Equal(t, "add", got.Func)
	assert.Equal(t, []string{"first-tensor", "second-tensor"}, got.Operands)
	assert.Equal(t, []float64{6, 8, 10, 12}, got.Result.Data())
}

func TestSyft_OnTensorAdded(t *testing.T) {
	ctx := context.Background()
	s := newClient(t)

	calls := 0
	unsubscribe := s.OnTensorAdded(func(_ context.Context, ev *domain.TensorAddedEvent) {
		calls++
		assert.Equal(t, "first-tensor", ev.ID)
		assert.Equal(t, 4, ev.Tensor.Size())
		assert.Len(t, ev.Tensors, 1)
	})

	_, err := s.AddTensor(ctx, "first-tensor", [][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	unsubscribe()
	_, err = s.AddTensor(ctx, "second-tensor", []float64{1})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestSyft_OnTensorRemoved(t *testing.T) {
	ctx := context.Background()
	s := newClient(t)

	calls := 0
	s.OnTensorRemoved(func(_ context.Context, ev *domain.TensorRemovedEvent) {
		calls++
		assert.Equal(t, "first-tensor", ev.ID)
		assert.Empty(t, ev.Tensors)
	})

	_, err := s.AddTensor(ctx, "first-tensor", [][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	_, err = s.RemoveTensor(ctx, "first-tensor")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	_, err = s.RemoveTensor(ctx, "first-tensor")
	require.Error(t, err)
	assert.Equal(t, 1, calls, "failed removals broadcast nothing")
}

func TestSyft_CreateSocketConnection(t *testing.T) {
	s := newClient(t)

	assert.Nil(t, s.CreateSocketConnection(""))

	conn := s.CreateSocketConnection("ws://localhost:8080/")
	require.NotNil(t, conn)
	assert.Equal(t, "ws://localhost:8080/", conn.URL())
	assert.False(t, conn.Connected())
	assert.Nil(t, s.Socket(), "a created connection is not made current")
}

func TestSyft_StartStop(t *testing.T) {
	peer := newFakePeer(t)
	s := newClient(t)

	require.Error(t, s.Start(context.Background(), ""))

	require.NoError(t, s.Start(context.Background(), peer.url))
	require.NotNil(t, s.Socket())
	assert.Equal(t, peer.url, s.Socket().URL())
	assert.True(t, s.Socket().Connected())

	require.NoError(t, s.Stop())
	assert.Nil(t, s.Socket())
	require.NoError(t, s.Stop(), "stopping twice is a no-op")
}

func TestSyft_StartReplacesConnection(t *testing.T) {
	peer := newFakePeer(t)
	s := newClient(t)

	require.NoError(t, s.Start(context.Background(), peer.url))
	first := s.Socket()
	require.NoError(t, s.Start(context.Background(), peer.url))

	assert.NotSame(t, first, s.Socket())
	select {
	case <-first.Done():
	case <-time.After(waitTimeout):
		t.Fatal("Timeout waiting for previous connection to close")
	}
}

func TestSyft_SendMessage(t *testing.T) {
	ctx := context.Background()
	s := newClient(t)

	_, err := s.SendMessage(ctx, domain.MsgGetTensors, nil)
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	peer := newFakePeer(t)
	require.NoError(t, s.Start(ctx, peer.url))

	var sent []domain.Message
	s.OnMessageSent(func(_ context.Context, ev *domain.MessageEvent) {
		sent = append(sent, ev.Message)
	})

	msg, err := s.SendMessage(ctx, domain.MsgRemoveTensor, domain.RemovePayload{ID: "x"})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, msg.ID, sent[0].ID)

	got := peer.next(t, domain.MsgRemoveTensor)
	assert.Equal(t, msg.ID, got.ID)
	var p domain.RemovePayload
	require.NoError(t, got.Decode(&p))
	assert.Equal(t, "x", p.ID)
}

func TestSyft_MirrorsMutations(t *testing.T) {
	ctx := context.Background()
	peer := newFakePeer(t)
	s := newClient(t, syft.WithURL(peer.url))

	_, err := s.AddTensor(ctx, "a", [][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)

	var added domain.TensorPayload
	require.NoError(t, peer.next(t, domain.MsgTensorAdded).Decode(&added))
	assert.Equal(t, "a", added.ID)
	assert.Equal(t, []int{2, 2}, added.Shape)

	_, err = s.RunOperation(ctx, "sum", []string{"a"})
	require.NoError(t, err)

	var result domain.OperationPayload
	require.NoError(t, peer.next(t, domain.MsgOperationResult).Decode(&result))
	assert.Equal(t, "sum", result.Func)
	assert.Equal(t, 10.0, result.Result)

	_, err = s.RemoveTensor(ctx, "a")
	require.NoError(t, err)

	var removed domain.RemovePayload
	require.NoError(t, peer.next(t, domain.MsgTensorRemoved).Decode(&removed))
	assert.Equal(t, "a", removed.ID)
}

func TestSyft_PeerCommands(t *testing.T) {
	peer := newFakePeer(t)
	s := newClient(t, syft.WithURL(peer.url))
	ws := peer.conn(t)

	received := make(chan domain.Message, 8)
	s.OnMessageReceived(func(_ context.Context, ev *domain.MessageEvent) {
		received <- ev.Message
	})

	push := func(mt domain.MessageType, payload any) domain.Message {
		msg, err := domain.NewMessage(mt, payload)
		require.NoError(t, err)
		require.NoError(t, ws.WriteJSON(msg))
		return msg
	}

	push(domain.MsgAddTensor, domain.TensorPayload{ID: "a", Shape: []int{2, 2}, Values: []float64{1, 2, 3, 4}})
	peer.next(t, domain.MsgTensorAdded)
	push(domain.MsgAddTensor, domain.TensorPayload{ID: "b", Values: [][]float64{{5, 6}, {7, 8}}})
	peer.next(t, domain.MsgTensorAdded)

	rec, ok := s.GetTensorByID("a")
	require.True(t, ok)
	assert.Equal(t, []int{2, 2}, rec.Tensor.Shape())

	push(domain.MsgRunOperation, domain.OperationPayload{Func: "add", Operands: []string{"a", "b"}, ResultID: "c"})
	peer.next(t, domain.MsgOperationResult)
	peer.next(t, domain.MsgTensorAdded)

	rec, ok = s.GetTensorByID("c")
	require.True(t, ok)
	assert.Equal(t, []float64{6, 8, 10, 12}, rec.Tensor.Data())

	push(domain.MsgGetTensors, nil)
	var list domain.TensorsPayload
	require.NoError(t, peer.next(t, domain.MsgTensors).Decode(&list))
	require.Len(t, list.Tensors, 3)
	assert.Equal(t, "c", list.Tensors[2].ID)

	bad := push(domain.MsgRemoveTensor, domain.RemovePayload{ID: "missing"})
	var failure domain.ErrorPayload
	require.NoError(t, peer.next(t, domain.MsgError).Decode(&failure))
	assert.Equal(t, bad.ID, failure.RequestID)
	assert.Contains(t, failure.Error, "missing")

	push(domain.MsgRemoveTensor, domain.RemovePayload{ID: "c"})
	peer.next(t, domain.MsgTensorRemoved)
	assert.Len(t, s.GetTensors(), 2)

	select {
	case msg := <-received:
		assert.Equal(t, domain.MsgAddTensor, msg.Type)
	case <-time.After(waitTimeout):
		t.Fatal("Timeout waiting for message-received event")
	}
}

func TestSyft_PeerGoesAway(t *testing.T) {
	peer := newFakePeer(t)
	s := newClient(t, syft.WithURL(peer.url))
	conn := s.Socket()
	ws := peer.conn(t)

	require.NoError(t, ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"), time.Now().Add(time.Second)))

	select {
	case <-conn.Done():
	case <-time.After(waitTimeout):
		t.Fatal("Timeout waiting for connection to drop")
	}
	assert.Eventually(t, func() bool { return s.Socket() == nil }, waitTimeout, 10*time.Millisecond)

	_, err := s.SendMessage(context.Background(), domain.MsgGetTensors, nil)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestSyft_HandshakeHeaders(t *testing.T) {
	auth := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.URL = "ws" + strings.TrimPrefix(server.URL, "http")
	cfg.Headers = map[string]string{"Authorization": "Bearer t0ken"}
	newClient(t, syft.WithConfig(cfg))

	assert.Equal(t, "Bearer t0ken", <-auth)
}

func TestSyft_StartPeerHangsUp(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	t.Cleanup(server.Close)

	s := newClient(t)
	err := s.Start(context.Background(), "ws"+strings.TrimPrefix(server.URL, "http"))
	if err != nil {
		assert.ErrorIs(t, err, domain.ErrNotConnected)
	}
	assert.Eventually(t, func() bool { return s.Socket() == nil }, waitTimeout, 10*time.Millisecond,
		"a connection the peer dropped must not stay current")

	_, err = s.SendMessage(context.Background(), domain.MsgGetTensors, nil)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestSyft_Persistence(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	first := newClient(t, syft.WithStore(store))
	_, err := first.AddTensor(ctx, "a", []float64{1, 2})
	require.NoError(t, err)
	_, err = first.AddTensor(ctx, "b", []float64{3})
	require.NoError(t, err)

	second := newClient(t, syft.WithStore(store))
	var restored []string
	second.OnTensorAdded(func(_ context.Context, ev *domain.TensorAddedEvent) {
		restored = append(restored, ev.ID)
	})

	tensors, err := second.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, domain.IDs(tensors))
	assert.Equal(t, []string{"a", "b"}, restored)
}

func TestSyft_CustomRegistry(t *testing.T) {
	ctx := context.Background()
	reg := tensor.NewRegistry()
	require.NoError(t, reg.Register("double", tensor.Op{Arity: 1, Fn: func(ops ...*tensor.Tensor) (*tensor.Tensor, error) {
		return tensor.DefaultRegistry().Apply("mul", ops[0], tensor.Scalar(2))
	}}))

	s := newClient(t, syft.WithRegistry(reg))
	_, err := s.AddTensor(ctx, "a", []float64{1, 2})
	require.NoError(t, err)

	got, err := s.RunOperation(ctx, "double", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4}, got.Data())

	_, err = s.RunOperation(ctx, "add", []string{"a", "a"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)
}
