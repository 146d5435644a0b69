package syft

import (
	"context"
	"errors"
	"fmt"

	"github.com/sbm367/syft/pkg/domain"
)

// subscribeMirror forwards local mutations to the connected peer.
func (s *Syft) subscribeMirror() {
	s.observer.Subscribe(domain.EventTensorAdded, func(ctx context.Context, e domain.Event) {
		ev, ok := e.(*domain.TensorAddedEvent)
		if !ok {
			return
		}
		s.mirror(ctx, domain.MsgTensorAdded, domain.NewTensorPayload(ev.ID, ev.Tensor))
	})
	s.observer.Subscribe(domain.EventTensorRemoved, func(ctx context.Context, e domain.Event) {
		ev, ok := e.(*domain.TensorRemovedEvent)
		if !ok {
			return
		}
		s.mirror(ctx, domain.MsgTensorRemoved, domain.RemovePayload{ID: ev.ID})
	})
	s.observer.Subscribe(domain.EventRunOperation, func(ctx context.Context, e domain.Event) {
		ev, ok := e.(*domain.OperationEvent)
		if !ok {
			return
		}
		s.mirror(ctx, domain.MsgOperationResult, domain.OperationPayload{
			Func:     ev.Func,
			Operands: ev.Operands,
			Result:   ev.Result.NestedValues(),
			Shape:    ev.Result.Shape(),
		})
	})
}

func (s *Syft) mirror(ctx context.Context, t domain.MessageType, payload any) {
	if s.Socket() == nil {
		return
	}
	if _, err := s.SendMessage(ctx, t, payload); err != nil && !errors.Is(err, domain.ErrNotConnected) {
		s.logger.Warn("failed to mirror event to peer", "type", t, "error", err)
	}
}

// handleMessage runs on the socket read goroutine for every incoming message.
func (s *Syft) handleMessage(ctx context.Context, msg domain.Message) {
	s.observer.Broadcast(ctx, &domain.MessageEvent{
		EventBase: domain.NewEventBase(domain.EventMessageReceived),
		Message:   msg,
	})

	var err error
	switch msg.Type {
	case domain.MsgAddTensor:
		err = s.applyAddTensor(ctx, msg)
	case domain.MsgRemoveTensor:
		err = s.applyRemoveTensor(ctx, msg)
	case domain.MsgRunOperation:
		err = s.applyRunOperation(ctx, msg)
	case domain.MsgGetTensors:
		_, err = s.SendMessage(ctx, domain.MsgTensors, s.tensorsPayload())
	default:
		s.logger.Debug("ignoring message", "id", msg.ID, "type", msg.Type)
		return
	}

	if err == nil {
		return
	}
	s.logger.Warn("peer command failed", "id", msg.ID, "type", msg.Type, "error", err)
	if _, serr := s.SendMessage(ctx, domain.MsgError, domain.ErrorPayload{
		RequestID: msg.ID,
		Error:     err.Error(),
	}); serr != nil {
		s.logger.Warn("failed to report command error", "id", msg.ID, "error", serr)
	}
}

func (s *Syft) applyAddTensor(ctx context.Context, msg domain.Message) error {
	var p domain.TensorPayload
	if err := msg.Decode(&p); err != nil {
		return err
	}
	t, err := p.Tensor()
	if err != nil {
		return fmt.Errorf("failed to build tensor %s: %w", p.ID, err)
	}
	_, err = s.AddTensor(ctx, p.ID, t)
	return err
}

func (s *Syft) applyRemoveTensor(ctx context.Context, msg domain.Message) error {
	var p domain.RemovePayload
	if err := msg.Decode(&p); err != nil {
		return err
	}
	_, err := s.RemoveTensor(ctx, p.ID)
	return err
}

func (s *Syft) applyRunOperation(ctx context.Context, msg domain.Message) error {
	var p domain.OperationPayload
	if err := msg.Decode(&p); err != nil {
		return err
	}
	if p.ResultID != "" {
		_, err := s.RunOperationInto(ctx, p.Func, p.Operands, p.ResultID)
		return err
	}
	_, err := s.RunOperation(ctx, p.Func, p.Operands)
	return err
}

func (s *Syft) tensorsPayload() domain.TensorsPayload {
	records := s.GetTensors()
	out := domain.TensorsPayload{Tensors: make([]domain.TensorPayload, 0, len(records))}
	for _, rec := range records {
		out.Tensors = append(out.Tensors, domain.NewTensorPayload(rec.ID, rec.Tensor))
	}
	return out
}
