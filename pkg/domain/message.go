package domain

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/sbm367/syft/pkg/tensor"
)

// MessageType identifies the payload carried by a Message.
type MessageType string

// Commands accepted from the peer.
const (
	MsgAddTensor    MessageType = "add-tensor"
	MsgRemoveTensor MessageType = "remove-tensor"
	MsgRunOperation MessageType = "run-operation"
	MsgGetTensors   MessageType = "get-tensors"
)

// Notifications mirrored to the peer.
const (
	MsgTensorAdded     MessageType = "tensor-added"
	MsgTensorRemoved   MessageType = "tensor-removed"
	MsgOperationResult MessageType = "operation-result"
	MsgTensors         MessageType = "tensors"
	MsgError           MessageType = "error"
)

// Message is the envelope exchanged over the socket.
type Message struct {
	ID   string          `json:"id"`
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage wraps payload in an envelope with a fresh id.
// A nil payload produces a message without data.
func NewMessage(t MessageType, payload any) (Message, error) {
	msg := Message{ID: uuid.NewString(), Type: t}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	msg.Data = data
	return msg, nil
}

// Decode unmarshals the message data into v.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("message %s (%s) has no data", m.ID, m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Type, err)
	}
	return nil
}

// TensorPayload carries a tensor. Values may be nested lists or a flat list
// combined with Shape.
type TensorPayload struct {
	ID     string `json:"id"`
	Shape  []int  `json:"shape,omitempty"`
	Values any    `json:"values"`
}

// NewTensorPayload describes t as nested values. NaN and infinities are
// carried as "NaN", "Inf" and "-Inf".
func NewTensorPayload(id string, t *tensor.Tensor) TensorPayload {
	return TensorPayload{ID: id, Shape: t.Shape(), Values: t.NestedValues()}
}

// Tensor builds the tensor described by the payload. A flat list is
// reshaped to Shape; nested values must already have that shape.
func (p TensorPayload) Tensor() (*tensor.Tensor, error) {
	t, err := tensor.FromNested(p.Values)
	if err != nil {
		return nil, err
	}
	if p.Shape == nil || slices.Equal(p.Shape, t.Shape()) {
		return t, nil
	}
	if t.Rank() <= 1 {
		return t.Reshape(p.Shape...)
	}
	return nil, fmt.Errorf("%w: shape %v does not match values of shape %v", tensor.ErrInvalidShape, p.Shape, t.Shape())
}

// RemovePayload names the tensor to remove.
type RemovePayload struct {
	ID string `json:"id"`
}

// OperationPayload describes an operation request or its result.
// ResultID, when set on a request, stores the result as a new tensor.
type OperationPayload struct {
	Func     string   `json:"func"`
	Operands []string `json:"operands"`
	ResultID string   `json:"result_id,omitempty"`
	Result   any      `json:"result,omitempty"`
	Shape    []int    `json:"shape,omitempty"`
}

// TensorsPayload lists the tensors held by a client.
type TensorsPayload struct {
	Tensors []TensorPayload `json:"tensors"`
}

// ErrorPayload answers a command that could not be applied.
type ErrorPayload struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
}
