// Transcript Viewer - live display of pipeline transcripts and events.
// Consumes the pipeline's Kafka topics and pushes them to browsers over WebSocket.
package main

import (
	"context"
	"embed"
	"encoding/json"
	"flag"
	"io/fs"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"voice-command-pipeline/internal/config"
	"voice-command-pipeline/internal/observability/logging"
)

//go:embed static/*
var staticFiles embed.FS

// ViewerEvent is the subset of every published payload the viewer shows.
type ViewerEvent struct {
	EventType   string  `json:"eventType"`
	StreamID    string  `json:"streamId,omitempty"`
	UtteranceID string  `json:"utteranceId,omitempty"`
	Text        string  `json:"text,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	Intent      string  `json:"intent,omitempty"`
	Translation string  `json:"translation,omitempty"`
	Name        string  `json:"name,omitempty"`
	Timestamp   int64   `json:"timestamp"`
}

// Summary is a one-line description for logs.
func (e ViewerEvent) Summary() string {
	switch {
	case e.Intent != "":
		return e.Intent
	case e.Translation != "":
		return truncate(e.Translation, 40)
	case e.Name != "":
		return e.Name
	default:
		return truncate(e.Text, 40)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Hub fans events out to connected browsers.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{})}
}

func (h *Hub) add(conn *websocket.Conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = struct{}{}
	return len(h.clients)
}

func (h *Hub) remove(conn *websocket.Conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	return len(h.clients)
}

// Broadcast writes event to every client, dropping clients that fail.
func (h *Hub) Broadcast(event ViewerEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(event); err != nil {
			log.Warn().Err(err).Msg("WebSocket write failed")
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local dev tool
	},
}

func wsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		log.Info().Int("clients", hub.add(conn)).Msg("Client connected")

		go func() {
			defer func() {
				log.Info().Int("clients", hub.remove(conn)).Msg("Client disconnected")
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

func consumeKafka(ctx context.Context, hub *Hub, brokers []string, topic string) error {
	// partition reader without a consumer group, so every viewer sees everything
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-time.Hour)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Could not rewind to the last hour")
	}
	log.Info().Str("topic", topic).Msg("Consuming from Kafka")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Str("topic", topic).Msg("Kafka read error")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		var event ViewerEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Undecodable message")
			continue
		}
		log.Debug().
			Str("eventType", event.EventType).
			Str("utteranceId", event.UtteranceID).
			Str("summary", event.Summary()).
			Msg("Received event")
		hub.Broadcast(event)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	addr := flag.String("addr", ":8081", "HTTP listen address")
	brokers := flag.String("brokers", strings.Join(cfg.Kafka.Brokers, ","), "Kafka brokers (comma-separated)")
	topics := flag.String("topics", strings.Join([]string{cfg.Kafka.TopicPartial, cfg.Kafka.TopicFinal, cfg.Kafka.TopicEvents}, ","), "Topics to display (comma-separated)")
	flag.Parse()

	logging.Init(logging.Config{Level: cfg.Observability.LogLevel, Format: "console"})

	if *brokers == "" {
		*brokers = "localhost:9092"
	}
	brokerList := strings.Split(*brokers, ",")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	hub := newHub()
	for _, topic := range strings.Split(*topics, ",") {
		topic := strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		g.Go(func() error { return consumeKafka(gctx, hub, brokerList, topic) })
	}

	staticFS, _ := fs.Sub(staticFiles, "static")
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("/ws", wsHandler(hub))
	srv := &http.Server{Addr: *addr, Handler: mux}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		log.Info().Str("addr", *addr).Strs("brokers", brokerList).Str("topics", *topics).Msg("Transcript viewer starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Transcript viewer failed")
	}
}
