package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	grpcapi "voice-command-pipeline/internal/api/grpc"
	"voice-command-pipeline/internal/app"
	"voice-command-pipeline/internal/capture"
	"voice-command-pipeline/internal/config"
	"voice-command-pipeline/internal/events"
	apihttp "voice-command-pipeline/internal/http"
	"voice-command-pipeline/internal/observability"
	"voice-command-pipeline/internal/service/assistant"
	"voice-command-pipeline/internal/service/auth"
	"voice-command-pipeline/internal/service/pipeline"
	"voice-command-pipeline/internal/service/recorder"
	"voice-command-pipeline/internal/service/router"
	"voice-command-pipeline/internal/service/stt"
	"voice-command-pipeline/internal/service/stt/google"
	sttmock "voice-command-pipeline/internal/service/stt/mock"
	"voice-command-pipeline/internal/service/stt/watson"
	"voice-command-pipeline/internal/service/translate"
	"voice-command-pipeline/internal/service/world"
	"voice-command-pipeline/internal/service/world/mqttsink"
)

const worldTick = 20 * time.Millisecond

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("Voice command pipeline exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	bus := events.NewBus()

	// logger first so every component below picks up the configured output
	application := app.New(cfg, bus, nil)
	if err := cfg.Validate(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	// Kafka publisher with separate topics for partial, final and pipeline events
	publisher := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicFinal:   cfg.Kafka.TopicFinal,
		TopicEvents:  cfg.Kafka.TopicEvents,
		Principal:    cfg.Kafka.Principal,
	})
	defer publisher.Close()

	recognizer, sttAuth, err := newRecognizer(gctx, g, cfg)
	if err != nil {
		return err
	}

	classifier, err := newClassifier(gctx, g, cfg)
	if err != nil {
		return err
	}
	translator, err := newTranslator(gctx, g, cfg)
	if err != nil {
		return err
	}

	w, closeWorld, err := newWorld(cfg)
	if err != nil {
		return err
	}
	defer closeWorld()
	controller := world.NewController(bus, w, nil)
	g.Go(func() error { return controller.Run(gctx, worldTick) })

	mirror := events.NewMirror(bus, publisher, world.Events()...)
	g.Go(func() error { return mirror.Run(gctx) })

	var rc router.Classifier
	if classifier != nil {
		rc = classifier
	}
	var rt router.Translator
	if translator != nil {
		rt = translator
	}
	rtr := router.New(bus, rc, rt, publisher)

	listener := pipeline.New(recorder.New(capture.NewSimDevice(440, 0.2)), recognizer, rtr, pipeline.Config{
		Capture: recorder.SessionConfig{
			DeviceID:      cfg.Capture.Device,
			BufferSeconds: cfg.Capture.BufferSeconds,
			SampleRateHz:  cfg.Capture.SampleRateHz,
		},
		Channels: cfg.Capture.Channels,
		Options:  stt.OptionsFromConfig(cfg.STT),
		Auth:     sttAuth,
	})
	application.Pipeline = listener

	httpServer := observability.NewServer(cfg.Service.HTTPAddr, application.Ready, apihttp.NewRouter(application))
	g.Go(func() error { return httpServer.Run(gctx) })

	grpcServer := grpcapi.New(application.Ready)
	g.Go(func() error { return grpcServer.Run(gctx, ":"+cfg.Service.GRPCPort) })

	g.Go(func() error {
		// a failed start leaves the servers up with the error in the status
		_ = application.Start(gctx)
		<-gctx.Done()
		application.Shutdown()
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newRecognizer selects the recognition backend. The returned readiness is
// nil when the backend needs no bearer token.
func newRecognizer(ctx context.Context, g *errgroup.Group, cfg *config.Config) (stt.Recognizer, auth.Readiness, error) {
	switch cfg.STT.Provider {
	case config.ProviderWatson:
		iam, err := auth.NewIAM(cfg.STT.APIKey, cfg.IAM.URL)
		if err != nil {
			return nil, nil, err
		}
		g.Go(func() error { iam.Run(ctx); return nil })
		return watson.New(cfg.STT.ServiceURL, iam), iam, nil

	case config.ProviderGoogle:
		r, err := google.New(ctx)
		if err != nil {
			return nil, nil, err
		}
		g.Go(func() error {
			<-ctx.Done()
			return r.Close()
		})
		return r, nil, nil

	default:
		return sttmock.New(), nil, nil
	}
}

func newClassifier(ctx context.Context, g *errgroup.Group, cfg *config.Config) (*assistant.Classifier, error) {
	if cfg.Assistant.ServiceURL == "" {
		log.Info().Msg("Assistant not configured, classification disabled")
		return nil, nil
	}
	iam, err := auth.NewIAM(cfg.Assistant.APIKey, cfg.IAM.URL)
	if err != nil {
		return nil, err
	}
	c, err := assistant.NewFromConfig(cfg.Assistant, iam, iam)
	if err != nil {
		return nil, err
	}
	g.Go(func() error { iam.Run(ctx); return nil })
	g.Go(func() error {
		if err := c.Connect(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Assistant session setup failed")
		}
		return nil
	})
	return c, nil
}

func newTranslator(ctx context.Context, g *errgroup.Group, cfg *config.Config) (*translate.Translator, error) {
	if cfg.Translator.ServiceURL == "" {
		log.Info().Msg("Translator not configured, translation disabled")
		return nil, nil
	}
	iam, err := auth.NewIAM(cfg.Translator.APIKey, cfg.IAM.URL)
	if err != nil {
		return nil, err
	}
	g.Go(func() error { iam.Run(ctx); return nil })
	return translate.NewFromConfig(cfg.Translator, iam, iam), nil
}

// newWorld returns the MQTT-backed world when enabled, else the in-memory one.
func newWorld(cfg *config.Config) (world.World, func(), error) {
	local := world.NewLocal(world.Vec3{})
	if !cfg.MQTT.Enabled {
		return local, func() {}, nil
	}
	client, err := mqttsink.Connect(cfg.MQTT)
	if err != nil {
		return nil, nil, err
	}
	return mqttsink.New(client, cfg.MQTT.TopicPrefix, local), func() { client.Disconnect(250) }, nil
}
