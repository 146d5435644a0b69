// Package metrics exports client lifecycle events as Prometheus metrics.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sbm367/syft/pkg/domain"
	"github.com/sbm367/syft/pkg/observer"
)

const namespace = "syft"

// Collector turns observer events into Prometheus series.
type Collector struct {
	tensors    prometheus.Gauge
	added      prometheus.Counter
	removed    prometheus.Counter
	operations *prometheus.CounterVec
	messages   *prometheus.CounterVec
}

// New creates a collector and registers its metrics with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		tensors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tensors",
			Help:      "Number of tensors currently held by the client",
		}),
		added: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tensors_added_total",
			Help:      "Total number of tensors added",
		}),
		removed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tensors_removed_total",
			Help:      "Total number of tensors removed",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of completed tensor operations",
		}, []string{"func"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total number of peer messages by direction and type",
		}, []string{"direction", "type"}),
	}

	for _, col := range []prometheus.Collector{c.tensors, c.added, c.removed, c.operations, c.messages} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Attach subscribes the collector to obs. The returned function detaches it.
func (c *Collector) Attach(obs *observer.Observer) func() {
	subs := map[domain.EventType]observer.Subscription{
		domain.EventTensorAdded:     obs.Subscribe(domain.EventTensorAdded, c.handle),
		domain.EventTensorRemoved:   obs.Subscribe(domain.EventTensorRemoved, c.handle),
		domain.EventRunOperation:    obs.Subscribe(domain.EventRunOperation, c.handle),
		domain.EventMessageSent:     obs.Subscribe(domain.EventMessageSent, c.handle),
		domain.EventMessageReceived: obs.Subscribe(domain.EventMessageReceived, c.handle),
	}
	return func() {
		for event, sub := range subs {
			obs.Unsubscribe(event, sub)
		}
	}
}

func (c *Collector) handle(_ context.Context, e domain.Event) {
	switch ev := e.(type) {
	case *domain.TensorAddedEvent:
		c.added.Inc()
		c.tensors.Set(float64(len(ev.Tensors)))
	case *domain.TensorRemovedEvent:
		c.removed.Inc()
		c.tensors.Set(float64(len(ev.Tensors)))
	case *domain.OperationEvent:
		c.operations.WithLabelValues(ev.Func).Inc()
	case *domain.MessageEvent:
		direction := "received"
		if ev.Type() == domain.EventMessageSent {
			direction = "sent"
		}
		c.messages.WithLabelValues(direction, string(ev.Message.Type)).Inc()
	}
}
