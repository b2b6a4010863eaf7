package mqttsink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"voice-command-pipeline/internal/config"
	"voice-command-pipeline/internal/events"
	"voice-command-pipeline/internal/service/world"
)

type token struct {
	err  error
	done chan struct{}
}

func newToken(err error) *token {
	t := &token{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *token) Wait() bool                       { return true }
func (t *token) WaitTimeout(d time.Duration) bool { return true }
func (t *token) Done() <-chan struct{}            { return t.done }
func (t *token) Error() error                     { return t.err }

type message struct {
	topic   string
	payload Action
}

type fakeClient struct {
	mu       sync.Mutex
	err      error
	messages []message
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	var a Action
	json.Unmarshal(payload.([]byte), &a)
	c.messages = append(c.messages, message{topic: topic, payload: a})
	return newToken(c.err)
}

func TestSink_Topics(t *testing.T) {
	s := New(&fakeClient{}, "game/", nil)
	if got := s.Topic("teleport"); got != "game/world/teleport" {
		t.Errorf("expected 'game/world/teleport', got %s", got)
	}
}

func TestSink_ControllerActions(t *testing.T) {
	client := &fakeClient{}
	local := world.NewLocal(world.Vec3{X: 1}, world.Target{ID: "hellephant", Position: world.Vec3{X: 2}})
	sink := New(client, "game", local)

	bus := events.NewBus()
	c := world.NewController(bus, sink, nil)
	c.Start()
	defer c.Stop()

	bus.Publish(events.OnAirSupportRequest)
	c.Update(context.Background(), 0.5)
	c.Update(context.Background(), 0.1)
	bus.Publish(events.OnTeleportRequest)

	want := []string{"game/world/spawn_airstrike", "game/world/detonate", "game/world/flash", "game/world/teleport"}
	if len(client.messages) != len(want) {
		t.Fatalf("expected %d messages, got %d: %+v", len(want), len(client.messages), client.messages)
	}
	for i, topic := range want {
		if client.messages[i].topic != topic {
			t.Errorf("message %d: expected topic %s, got %s", i, topic, client.messages[i].topic)
		}
	}

	spawn := client.messages[0].payload
	if spawn.Action != "spawn_airstrike" || spawn.Airstrike == nil || spawn.Airstrike.Position.Y != 10 {
		t.Errorf("unexpected spawn payload %+v", spawn)
	}
	det := client.messages[1].payload
	if len(det.Hits) != 1 || det.Hits[0].TargetID != "hellephant" {
		t.Errorf("expected one hit on hellephant, got %+v", det.Hits)
	}
	if flash := client.messages[2].payload; flash.Intensity == nil || *flash.Intensity != 1 {
		t.Errorf("expected full flash, got %+v", flash)
	}
	if len(local.Spawns()) != 1 || local.Teleports() != 1 {
		t.Errorf("expected local state to track actions, got %d spawns %d teleports", len(local.Spawns()), local.Teleports())
	}
}

func TestSink_PublishError(t *testing.T) {
	broken := errors.New("not connected")
	s := New(&fakeClient{err: broken}, "game", nil)

	err := s.MovePlayer(context.Background(), world.Vec3{X: 5})
	if !errors.Is(err, broken) {
		t.Errorf("expected publish error, got %v", err)
	}
	if s.PlayerPosition().X != 5 {
		t.Errorf("expected local state updated despite publish error, got %+v", s.PlayerPosition())
	}
}

func TestConnect_BrokerUnreachable(t *testing.T) {
	_, err := Connect(config.MQTTConfig{BrokerURL: "tcp://127.0.0.1:1", ClientID: "voice-test"})
	if err == nil {
		t.Fatal("expected connect error")
	}
}
