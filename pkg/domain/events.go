package domain

import (
	"context"
	"time"

	"github.com/sbm367/syft/pkg/tensor"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTensorAdded     EventType = "tensor-added"
	EventTensorRemoved   EventType = "tensor-removed"
	EventRunOperation    EventType = "run-operation"
	EventMessageSent     EventType = "message-sent"
	EventMessageReceived EventType = "message-received"
)

// Event is implemented by every lifecycle event payload.
type Event interface {
	Type() EventType
}

// Handler receives broadcast events.
type Handler func(context.Context, Event)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      EventType `json:"type"`
}

// Type implements Event.
func (e EventBase) Type() EventType { return e.Kind }

// NewEventBase stamps an event of the given type with the current time.
func NewEventBase(t EventType) EventBase {
	return EventBase{Timestamp: time.Now(), Kind: t}
}

// TensorAddedEvent is broadcast after a tensor joins the store.
type TensorAddedEvent struct {
	EventBase
	ID      string         `json:"id"`
	Tensor  *tensor.Tensor `json:"tensor"`
	Tensors []Record       `json:"tensors"`
}

// TensorRemovedEvent is broadcast after a tensor leaves the store.
type TensorRemovedEvent struct {
	EventBase
	ID      string   `json:"id"`
	Tensors []Record `json:"tensors"`
}

// OperationEvent is broadcast after an operation completes.
type OperationEvent struct {
	EventBase
	Func     string         `json:"func"`
	Operands []string       `json:"operands"`
	Result   *tensor.Tensor `json:"result"`
}

// MessageEvent is broadcast for every message written to or read from the peer.
type MessageEvent struct {
	EventBase
	Message Message `json:"message"`
}
