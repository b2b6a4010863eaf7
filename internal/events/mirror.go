package events

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"voice-command-pipeline/internal/models"
	"voice-command-pipeline/internal/observability/logging"
)

// EventExporter writes payloads to the events topic.
type EventExporter interface {
	PublishEvent(ctx context.Context, key string, event any) error
}

// Mirror forwards bus events to an exporter. Dispatch never blocks on the
// exporter; events beyond the queue capacity are dropped.
type Mirror struct {
	bus      *Bus
	exporter EventExporter
	names    []string
	queue    chan models.NamedEvent
	receiver Receiver
	logger   zerolog.Logger
}

func NewMirror(bus *Bus, exporter EventExporter, names ...string) *Mirror {
	m := &Mirror{
		bus:      bus,
		exporter: exporter,
		names:    names,
		queue:    make(chan models.NamedEvent, 64),
		logger:   logging.WithComponent("event_mirror"),
	}
	m.receiver = NewReceiver(m.enqueue)
	return m
}

func (m *Mirror) enqueue(name string, args ...any) {
	ev := models.NamedEvent{
		EventType: models.EventNamed,
		Name:      name,
		Timestamp: time.Now().UnixMilli(),
	}
	for _, a := range args {
		ev.Args = append(ev.Args, fmt.Sprint(a))
	}
	select {
	case m.queue <- ev:
	default:
		m.logger.Warn().Str("event", name).Msg("Mirror queue full, dropping event")
	}
}

// Run registers the mirror and exports events until ctx is done. The
// mirror unregisters itself before returning.
func (m *Mirror) Run(ctx context.Context) error {
	for _, name := range m.names {
		m.bus.Register(name, m.receiver)
	}
	defer func() {
		for _, name := range m.names {
			m.bus.Unregister(name, m.receiver)
		}
	}()

	m.logger.Info().Strs("events", m.names).Msg("Mirroring bus events")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-m.queue:
			if err := m.exporter.PublishEvent(ctx, ev.Name, ev); err != nil {
				m.logger.Error().Err(err).Str("event", ev.Name).Msg("Failed to export event")
			}
		}
	}
}
