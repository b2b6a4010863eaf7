// Package mqttsink publishes world actions to an MQTT broker.
package mqttsink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"voice-command-pipeline/internal/config"
	"voice-command-pipeline/internal/observability/logging"
	"voice-command-pipeline/internal/service/world"
)

const publishTimeout = 5 * time.Second

// Publisher is the subset of mqtt.Client the sink uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Action is the JSON body of every published message.
type Action struct {
	Action      string       `json:"action"`
	Timestamp   int64        `json:"timestamp"`
	Airstrike   *world.Spawn `json:"airstrike,omitempty"`
	Position    *world.Vec3  `json:"position,omitempty"`
	AirstrikeID string       `json:"airstrikeId,omitempty"`
	Hits        []world.Hit  `json:"hits,omitempty"`
	Intensity   *float64     `json:"intensity,omitempty"`
}

// Sink is a world.World that mirrors state locally and publishes every
// action to <prefix>/world/<action>.
type Sink struct {
	*world.Local
	client Publisher
	prefix string
	logger zerolog.Logger
}

// New wraps an already connected client.
func New(client Publisher, prefix string, local *world.Local) *Sink {
	if local == nil {
		local = world.NewLocal(world.Vec3{})
	}
	return &Sink{
		Local:  local,
		client: client,
		prefix: strings.TrimRight(prefix, "/"),
		logger: logging.WithComponent("mqtt_sink"),
	}
}

// Connect dials the broker described by cfg.
func Connect(cfg config.MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	logger := logging.WithComponent("mqtt_sink")
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info().Str("broker", cfg.BrokerURL).Msg("Connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

// Topic returns the topic for an action.
func (s *Sink) Topic(action string) string {
	return s.prefix + "/world/" + action
}

func (s *Sink) publish(ctx context.Context, a Action) error {
	a.Timestamp = time.Now().UnixMilli()
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal %s action: %w", a.Action, err)
	}

	topic := s.Topic(a.Action)
	token := s.client.Publish(topic, 1, false, payload)

	timeout := publishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	s.logger.Debug().Str("topic", topic).RawJSON("payload", payload).Msg("Published world action")
	return nil
}

func (s *Sink) SpawnAirstrike(ctx context.Context, sp world.Spawn) error {
	s.Local.SpawnAirstrike(ctx, sp)
	return s.publish(ctx, Action{Action: "spawn_airstrike", Airstrike: &sp})
}

func (s *Sink) MovePlayer(ctx context.Context, to world.Vec3) error {
	s.Local.MovePlayer(ctx, to)
	return s.publish(ctx, Action{Action: "teleport", Position: &to})
}

func (s *Sink) Detonated(ctx context.Context, airstrikeID string, at world.Vec3, hits []world.Hit) error {
	s.Local.Detonated(ctx, airstrikeID, at, hits)
	return s.publish(ctx, Action{Action: "detonate", AirstrikeID: airstrikeID, Position: &at, Hits: hits})
}

func (s *Sink) SetFlash(ctx context.Context, intensity float64) error {
	s.Local.SetFlash(ctx, intensity)
	return s.publish(ctx, Action{Action: "flash", Intensity: &intensity})
}
