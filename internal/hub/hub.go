// Package hub republishes scheduler events on a juju pubsub hub so that
// scene components can subscribe by event type instead of registering
// scheduler observers.
package hub

import (
	"fmt"
	"log/slog"

	"github.com/juju/pubsub/v2"

	"github.com/roach88/opqueue/internal/op"
)

// New creates a SimpleHub that logs through logger. A nil logger uses
// slog.Default().
func New(logger *slog.Logger) *pubsub.SimpleHub {
	if logger == nil {
		logger = slog.Default()
	}
	return pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
		Logger: hubLogger{logger: logger.With("component", "hub")},
	})
}

// Bridge is an op.Observer publishing each event on its hub, with the
// event type as topic and the op.Event value as data.
type Bridge struct {
	hub *pubsub.SimpleHub
}

// NewBridge publishes to h.
func NewBridge(h *pubsub.SimpleHub) *Bridge {
	return &Bridge{hub: h}
}

// OnEvent implements op.Observer.
func (b *Bridge) OnEvent(e op.Event) {
	_ = b.hub.Publish(string(e.Type), e)
}

// Subscribe calls fn for every event of type t published on h. Handlers
// for one subscription run in publish order. The returned func
// unsubscribes.
func Subscribe(h *pubsub.SimpleHub, t op.EventType, fn func(op.Event)) func() {
	return h.Subscribe(string(t), adapt(fn))
}

// SubscribeAll calls fn for every scheduler event published on h.
func SubscribeAll(h *pubsub.SimpleHub, fn func(op.Event)) func() {
	known := make(map[string]bool)
	for _, t := range op.EventTypes() {
		known[string(t)] = true
	}
	return h.SubscribeMatch(func(topic string) bool { return known[topic] }, adapt(fn))
}

func adapt(fn func(op.Event)) func(string, interface{}) {
	return func(_ string, data interface{}) {
		if e, ok := data.(op.Event); ok {
			fn(e)
		}
	}
}

// hubLogger routes the hub's printf-style logging to slog.
type hubLogger struct {
	logger *slog.Logger
}

func (l hubLogger) Criticalf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), "severity", "critical")
}

func (l hubLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l hubLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l hubLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l hubLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l hubLogger) Tracef(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "severity", "trace")
}
