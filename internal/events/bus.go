package events

import (
	"reflect"
	"sync"

	"github.com/rs/zerolog"

	"voice-command-pipeline/internal/observability/logging"
	"voice-command-pipeline/internal/observability/metrics"
)

// Named events exchanged between the router and the world controller.
const (
	OnAirSupportRequest             = "OnAirSupportRequest"
	OnAirSupportRequestFromKeyboard = "OnAirSupportRequestFromKeyboard"
	OnAirstrikeCollide              = "OnAirstrikeCollide"
	OnTeleportRequest               = "OnTeleportRequest"
)

// Receiver handles a named event. Registration uses receiver identity, so
// receivers that cannot be compared with == are rejected.
type Receiver interface {
	Receive(name string, args ...any)
}

type funcReceiver struct {
	fn func(name string, args ...any)
}

func (r *funcReceiver) Receive(name string, args ...any) { r.fn(name, args...) }

// NewReceiver wraps fn in a Receiver with its own identity. Keep the
// returned value to unregister it later.
func NewReceiver(fn func(name string, args ...any)) Receiver {
	return &funcReceiver{fn: fn}
}

// Bus dispatches named events synchronously to registered receivers in
// registration order.
type Bus struct {
	mu        sync.RWMutex
	receivers map[string][]Receiver
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

func NewBus() *Bus {
	return &Bus{
		receivers: make(map[string][]Receiver),
		logger:    logging.WithComponent("event_bus"),
		metrics:   metrics.DefaultMetrics,
	}
}

// Register adds r for name. It returns false if r was already registered
// or cannot be compared.
func (b *Bus) Register(name string, r Receiver) bool {
	if r == nil {
		return false
	}
	if !identifiable(r) {
		b.logger.Warn().Str("event", name).Str("type", reflect.TypeOf(r).String()).
			Msg("Receiver is not comparable, use a pointer or NewReceiver")
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.receivers[name] {
		if existing == r {
			return false
		}
	}
	b.receivers[name] = append(b.receivers[name], r)
	return true
}

// Unregister removes r for name. It returns false if r was not registered.
func (b *Bus) Unregister(name string, r Receiver) bool {
	if !identifiable(r) {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.receivers[name]
	for i, existing := range list {
		if existing != r {
			continue
		}
		next := make([]Receiver, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(b.receivers, name)
		} else {
			b.receivers[name] = next
		}
		return true
	}
	return false
}

// identifiable reports whether r can be matched with ==. Nil is not.
func identifiable(r Receiver) bool {
	return r != nil && reflect.ValueOf(r).Comparable()
}

// Publish delivers args to every receiver registered for name on the
// calling goroutine and returns the number of receivers reached.
// Receivers may register or unregister during dispatch; changes apply to
// the next Publish.
func (b *Bus) Publish(name string, args ...any) int {
	b.mu.RLock()
	snapshot := b.receivers[name]
	b.mu.RUnlock()

	b.metrics.RecordBusEvent(name)
	if len(snapshot) == 0 {
		b.logger.Debug().Str("event", name).Msg("No receivers for event")
		return 0
	}

	b.logger.Debug().Str("event", name).Int("receivers", len(snapshot)).Msg("Dispatching event")
	for _, r := range snapshot {
		r.Receive(name, args...)
	}
	return len(snapshot)
}

// Receivers returns the number of receivers registered for name.
func (b *Bus) Receivers(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.receivers[name])
}
