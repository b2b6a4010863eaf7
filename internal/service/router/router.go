// Package router turns recognition results into status text, downstream
// classification and translation calls, and named trigger events.
package router

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"voice-command-pipeline/internal/events"
	"voice-command-pipeline/internal/models"
	"voice-command-pipeline/internal/observability/logging"
	"voice-command-pipeline/internal/observability/metrics"
	"voice-command-pipeline/internal/service/assistant"
	"voice-command-pipeline/internal/service/stt"
	"voice-command-pipeline/internal/service/utterance"
)

// Classifier returns the top intent for a transcript, or nil.
type Classifier interface {
	Classify(ctx context.Context, text string) (*assistant.Intent, error)
}

// Translator translates a transcript.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Exporter receives transcript and outcome payloads. *events.Publisher
// implements it.
type Exporter interface {
	PublishPartial(ctx context.Context, key string, event any) error
	PublishFinal(ctx context.Context, key string, event any) error
	PublishEvent(ctx context.Context, key string, event any) error
}

// DefaultTriggers maps intent names to the events they publish.
func DefaultTriggers() map[string]string {
	return map[string]string{
		"air-support": events.OnAirSupportRequest,
		"teleport":    events.OnTeleportRequest,
	}
}

// StreamInfo identifies the stream results come from.
type StreamInfo struct {
	StreamID string
	DeviceID string
	Provider string
}

// Status is the latest user-visible text per stage.
type Status struct {
	Transcript     string `json:"transcript"`
	Classification string `json:"classification"`
	Translation    string `json:"translation"`
}

// Outcome is what OnFinal did with one transcript.
type Outcome struct {
	Intent       *assistant.Intent
	Trigger      string
	Translation  string
	ClassifyErr  error
	TranslateErr error
}

// Router handles the result stream of one pipeline.
type Router struct {
	bus        *events.Bus
	classifier Classifier
	translator Translator
	exporter   Exporter
	triggers   map[string]string
	ids        *utterance.Generator
	logger     zerolog.Logger
	metrics    *metrics.Metrics

	mu     sync.RWMutex
	status Status
}

// New creates a router. classifier, translator and exporter may be nil.
func New(bus *events.Bus, classifier Classifier, translator Translator, exporter Exporter) *Router {
	return &Router{
		bus:        bus,
		classifier: classifier,
		translator: translator,
		exporter:   exporter,
		triggers:   DefaultTriggers(),
		ids:        utterance.NewGenerator(),
		logger:     logging.WithComponent("router"),
		metrics:    metrics.DefaultMetrics,
	}
}

// SetTrigger maps an intent name to an event name.
func (r *Router) SetTrigger(intent, event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers[intent] = event
}

func (r *Router) trigger(intent string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.triggers[intent]
}

// Status returns the latest status texts.
func (r *Router) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Router) update(fn func(*Status)) {
	r.mu.Lock()
	fn(&r.status)
	r.mu.Unlock()
}

// ResultText formats a result for display.
func ResultText(res stt.Result) string {
	if res.Final {
		return fmt.Sprintf("%s (final, confidence: %.2f)", res.Transcript, res.Confidence)
	}
	return fmt.Sprintf("%s (interim)", res.Transcript)
}

// Run consumes results in receipt order until the channel closes or ctx
// is done.
func (r *Router) Run(ctx context.Context, info StreamInfo, results <-chan stt.Result) {
	tracker := utterance.NewTracker(r.ids, info.StreamID)
	defer func() {
		if id, ok := tracker.Drop(); ok {
			logger := logging.WithUtterance(info.StreamID, id)
			logger.Warn().Msg("Utterance dropped without final")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			id, deliver := tracker.Observe(res.ResultIndex, res.Final)
			if !deliver {
				logger := logging.WithUtterance(info.StreamID, id)
				logger.Debug().
					Bool("final", res.Final).
					Msg("Suppressed result for finalized utterance")
				continue
			}
			r.HandleResult(ctx, info, id, res)
		}
	}
}

// HandleResult processes one delivered result.
func (r *Router) HandleResult(ctx context.Context, info StreamInfo, utteranceID string, res stt.Result) {
	logger := logging.WithUtterance(info.StreamID, utteranceID)
	text := ResultText(res)
	r.update(func(s *Status) { s.Transcript = text })

	if !res.Final {
		logger.Debug().Str("text", res.Transcript).Msg("Interim result")
		r.export(ctx, func(e Exporter) error {
			return e.PublishPartial(ctx, info.StreamID, models.TranscriptPartial{
				EventType:   models.EventTranscriptPartial,
				StreamID:    info.StreamID,
				DeviceID:    info.DeviceID,
				Provider:    info.Provider,
				Timestamp:   receivedAt(res),
				UtteranceID: utteranceID,
				Text:        res.Transcript,
				Confidence:  res.Confidence,
			})
		})
		return
	}

	logger.Info().
		Str("text", res.Transcript).
		Float64("confidence", res.Confidence).
		Int("alternatives", len(res.Alternatives)).
		Msg("Final result")
	logFinalDetails(logger, res)

	r.export(ctx, func(e Exporter) error {
		return e.PublishFinal(ctx, info.StreamID, finalEvent(info, utteranceID, res))
	})

	r.OnFinal(ctx, utteranceID, res.Transcript)
}

// OnFinal classifies and translates a final transcript independently and
// publishes the trigger event mapped to the top intent.
func (r *Router) OnFinal(ctx context.Context, utteranceID, transcript string) Outcome {
	var out Outcome
	var g errgroup.Group

	if r.classifier != nil {
		g.Go(func() error {
			out.Intent, out.Trigger, out.ClassifyErr = r.classify(ctx, utteranceID, transcript)
			return nil
		})
	}
	if r.translator != nil {
		g.Go(func() error {
			out.Translation, out.TranslateErr = r.translate(ctx, utteranceID, transcript)
			return nil
		})
	}
	g.Wait()
	return out
}

func (r *Router) classify(ctx context.Context, utteranceID, transcript string) (*assistant.Intent, string, error) {
	start := time.Now()
	intent, err := r.classifier.Classify(ctx, transcript)
	name := ""
	if intent != nil {
		name = intent.Name
	}
	r.metrics.RecordClassification(name, err, time.Since(start).Seconds())

	if err != nil {
		r.logger.Warn().Err(err).Str("utteranceId", utteranceID).Msg("Classification failed")
		r.update(func(s *Status) { s.Classification = "classification failed: " + err.Error() })
		return nil, "", err
	}
	if intent == nil {
		return nil, "", nil
	}

	r.update(func(s *Status) {
		s.Classification = fmt.Sprintf("classification: %s, confidence: %.2f", intent.Name, intent.Confidence)
	})

	trigger := r.trigger(intent.Name)
	r.logger.Info().
		Str("utteranceId", utteranceID).
		Str("intent", intent.Name).
		Float64("confidence", intent.Confidence).
		Str("trigger", trigger).
		Msg("Transcript classified")

	r.export(ctx, func(e Exporter) error {
		return e.PublishEvent(ctx, utteranceID, models.IntentClassified{
			EventType:   models.EventIntentClassified,
			UtteranceID: utteranceID,
			Timestamp:   time.Now().UnixMilli(),
			Text:        transcript,
			Intent:      intent.Name,
			Confidence:  intent.Confidence,
			Trigger:     trigger,
		})
	})

	if trigger != "" && r.bus != nil {
		r.bus.Publish(trigger)
	}
	return intent, trigger, nil
}

func (r *Router) translate(ctx context.Context, utteranceID, transcript string) (string, error) {
	start := time.Now()
	translation, err := r.translator.Translate(ctx, transcript)
	r.metrics.RecordTranslation(err, time.Since(start).Seconds())

	if err != nil {
		r.logger.Warn().Err(err).Str("utteranceId", utteranceID).Msg("Translation failed")
		r.update(func(s *Status) { s.Translation = "translation failed: " + err.Error() })
		return "", err
	}
	if translation == "" {
		return "", nil
	}

	r.update(func(s *Status) { s.Translation = "translation: " + translation })
	r.logger.Info().Str("utteranceId", utteranceID).Str("translation", translation).Msg("Transcript translated")

	r.export(ctx, func(e Exporter) error {
		return e.PublishEvent(ctx, utteranceID, models.TranscriptTranslated{
			EventType:   models.EventTranslation,
			UtteranceID: utteranceID,
			Timestamp:   time.Now().UnixMilli(),
			Text:        transcript,
			Translation: translation,
		})
	})
	return translation, nil
}

func (r *Router) export(ctx context.Context, fn func(Exporter) error) {
	if r.exporter == nil {
		return
	}
	if err := fn(r.exporter); err != nil {
		r.logger.Error().Err(err).Msg("Failed to export payload")
	}
}

func finalEvent(info StreamInfo, utteranceID string, res stt.Result) models.TranscriptFinal {
	ev := models.TranscriptFinal{
		EventType:   models.EventTranscriptFinal,
		StreamID:    info.StreamID,
		DeviceID:    info.DeviceID,
		Provider:    info.Provider,
		Timestamp:   receivedAt(res),
		UtteranceID: utteranceID,
		Text:        res.Transcript,
		Confidence:  res.Confidence,
	}
	for _, alt := range res.Alternatives {
		ev.Alternatives = append(ev.Alternatives, models.Alternative{Text: alt.Transcript, Confidence: alt.Confidence})
	}
	for kw := range res.Keywords {
		ev.Keywords = append(ev.Keywords, kw)
	}
	sort.Strings(ev.Keywords)
	seen := map[int]bool{}
	for _, l := range res.SpeakerLabels {
		if !seen[l.Speaker] {
			seen[l.Speaker] = true
			ev.Speakers = append(ev.Speakers, l.Speaker)
		}
	}
	return ev
}

func receivedAt(res stt.Result) int64 {
	if res.ReceivedAt.IsZero() {
		return time.Now().UnixMilli()
	}
	return res.ReceivedAt.UnixMilli()
}

func logFinalDetails(logger zerolog.Logger, res stt.Result) {
	for kw, matches := range res.Keywords {
		for _, m := range matches {
			logger.Debug().
				Str("keyword", kw).
				Str("normalizedText", m.NormalizedText).
				Float64("startTime", m.StartTime).
				Float64("endTime", m.EndTime).
				Float64("confidence", m.Confidence).
				Msg("Keyword result")
		}
	}
	for _, wa := range res.WordAlternatives {
		logger.Debug().
			Float64("startTime", wa.StartTime).
			Float64("endTime", wa.EndTime).
			Int("alternatives", len(wa.Alternatives)).
			Msg("Word alternatives")
	}
	for _, l := range res.SpeakerLabels {
		logger.Debug().
			Int("speaker", l.Speaker).
			Float64("from", l.From).
			Float64("to", l.To).
			Float64("confidence", l.Confidence).
			Msg("Speaker result")
	}
}
