// Package watson provides a streaming recognizer for the IBM Watson Speech to
// Text WebSocket interface. It implements stt.Recognizer.
package watson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"voice-command-pipeline/internal/observability/logging"
	"voice-command-pipeline/internal/service/stt"
)

// DefaultServiceURL is used when no service URL is configured.
const DefaultServiceURL = "https://stream.watsonplatform.net/speech-to-text/api"

const closeTimeout = 3 * time.Second

// TokenSource supplies bearer tokens for the service.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Recognizer opens Watson recognition streams.
type Recognizer struct {
	serviceURL string
	tokens     TokenSource
	logger     zerolog.Logger
}

// New creates a recognizer. An empty serviceURL selects DefaultServiceURL.
func New(serviceURL string, tokens TokenSource) *Recognizer {
	if serviceURL == "" {
		serviceURL = DefaultServiceURL
	}
	return &Recognizer{
		serviceURL: serviceURL,
		tokens:     tokens,
		logger:     logging.WithComponent("stt-watson"),
	}
}

// Name implements stt.Recognizer.
func (r *Recognizer) Name() string { return "watson" }

// Open dials the recognize endpoint and sends the start message.
func (r *Recognizer) Open(ctx context.Context, opts stt.Options, format stt.AudioFormat) (stt.Stream, error) {
	wsURL, err := buildURL(r.serviceURL, opts)
	if err != nil {
		return nil, fmt.Errorf("watson: build URL: %w", err)
	}

	headers := http.Header{}
	if r.tokens != nil {
		token, err := r.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: watson: %w", stt.ErrAuthenticationPending, err)
		}
		headers.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("%w: watson: dial: %w", stt.ErrConnection, err)
	}
	conn.SetReadLimit(1 << 20)

	start, err := json.Marshal(newStartMessage(opts, format))
	if err != nil {
		conn.Close(websocket.StatusInternalError, "marshal start")
		return nil, fmt.Errorf("watson: marshal start message: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, start); err != nil {
		conn.Close(websocket.StatusInternalError, "start failed")
		return nil, fmt.Errorf("%w: watson: send start: %w", stt.ErrConnection, err)
	}

	s := &stream{
		conn:    conn,
		results: make(chan stt.Result, 64),
		done:    make(chan struct{}),
		logger:  r.logger,
	}
	s.wg.Add(1)
	go s.readLoop()

	return s, nil
}

// buildURL converts the service URL to the WebSocket recognize endpoint.
func buildURL(serviceURL string, opts stt.Options) (string, error) {
	u, err := url.Parse(strings.TrimRight(serviceURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/v1/recognize"

	q := u.Query()
	q.Set("model", opts.Model)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// startMessage is the first text frame of a recognition session.
type startMessage struct {
	Action                    string   `json:"action"`
	ContentType               string   `json:"content-type"`
	InterimResults            bool     `json:"interim_results"`
	WordConfidence            bool     `json:"word_confidence"`
	Timestamps                bool     `json:"timestamps"`
	MaxAlternatives           int      `json:"max_alternatives"`
	InactivityTimeout         int      `json:"inactivity_timeout"`
	ProfanityFilter           bool     `json:"profanity_filter"`
	SmartFormatting           bool     `json:"smart_formatting"`
	SpeakerLabels             bool     `json:"speaker_labels"`
	WordAlternativesThreshold *float64 `json:"word_alternatives_threshold,omitempty"`
	Keywords                  []string `json:"keywords,omitempty"`
	KeywordsThreshold         *float64 `json:"keywords_threshold,omitempty"`
}

func newStartMessage(opts stt.Options, format stt.AudioFormat) startMessage {
	channels := format.Channels
	if channels <= 0 {
		channels = 1
	}
	return startMessage{
		Action:                    "start",
		ContentType:               fmt.Sprintf("audio/l16;rate=%d;channels=%d;endianness=little-endian", format.SampleRateHz, channels),
		InterimResults:            opts.InterimResults,
		WordConfidence:            opts.WordConfidence,
		Timestamps:                opts.Timestamps,
		MaxAlternatives:           opts.MaxAlternatives,
		InactivityTimeout:         opts.InactivityTimeout,
		ProfanityFilter:           opts.ProfanityFilter,
		SmartFormatting:           opts.SmartFormatting,
		SpeakerLabels:             opts.SpeakerLabels,
		WordAlternativesThreshold: opts.WordAlternativesThreshold,
		Keywords:                  opts.Keywords,
		KeywordsThreshold:         opts.KeywordsThreshold,
	}
}

// ---- session ----

// recognizeEvent is any JSON message received on the recognize socket.
type recognizeEvent struct {
	Error         string               `json:"error"`
	State         string               `json:"state"`
	ResultIndex   int                  `json:"result_index"`
	Results       []recognizeResult    `json:"results"`
	SpeakerLabels []speakerLabelResult `json:"speaker_labels"`
}

type recognizeResult struct {
	Final        bool `json:"final"`
	Alternatives []struct {
		Transcript string  `json:"transcript"`
		Confidence float64 `json:"confidence"`
	} `json:"alternatives"`
	KeywordsResult map[string][]struct {
		NormalizedText string  `json:"normalized_text"`
		StartTime      float64 `json:"start_time"`
		EndTime        float64 `json:"end_time"`
		Confidence     float64 `json:"confidence"`
	} `json:"keywords_result"`
	WordAlternatives []struct {
		StartTime    float64 `json:"start_time"`
		EndTime      float64 `json:"end_time"`
		Alternatives []struct {
			Word       string  `json:"word"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"word_alternatives"`
}

type speakerLabelResult struct {
	From       float64 `json:"from"`
	To         float64 `json:"to"`
	Speaker    int     `json:"speaker"`
	Confidence float64 `json:"confidence"`
	Final      bool    `json:"final"`
}

// stream is a live Watson recognition session. It implements stt.Stream.
type stream struct {
	conn    *websocket.Conn
	results chan stt.Result
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	logger  zerolog.Logger

	mu       sync.Mutex
	err      error
	speakers []stt.SpeakerLabel
}

// Send writes one binary audio frame.
func (s *stream) Send(ctx context.Context, pcm []byte) error {
	select {
	case <-s.done:
		return errors.New("watson: stream is closed")
	default:
	}
	return s.conn.Write(ctx, websocket.MessageBinary, pcm)
}

// Results implements stt.Stream.
func (s *stream) Results() <-chan stt.Result { return s.results }

// Err implements stt.Stream.
func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close sends the stop action and closes the socket.
func (s *stream) Close() error {
	s.once.Do(func() {
		close(s.done)
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		_ = s.conn.Write(ctx, websocket.MessageText, []byte(`{"action":"stop"}`))
		cancel()
		s.conn.Close(websocket.StatusNormalClosure, "stream closed")
		s.wg.Wait()
	})
	return nil
}

func (s *stream) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *stream) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// readLoop decodes recognize events and forwards results until the socket closes.
func (s *stream) readLoop() {
	defer s.wg.Done()
	defer close(s.results)

	for {
		_, msg, err := s.conn.Read(context.Background())
		if err != nil {
			if !s.closed() {
				s.setErr(fmt.Errorf("%w: watson: read: %w", stt.ErrTransport, err))
			}
			return
		}

		var ev recognizeEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			s.logger.Warn().Err(err).Msg("Unparseable recognize event")
			continue
		}

		if ev.Error != "" {
			s.setErr(fmt.Errorf("%w: watson: %s", stt.ErrRemoteService, ev.Error))
			s.conn.Close(websocket.StatusNormalClosure, "remote error")
			return
		}
		if ev.State != "" {
			s.logger.Debug().Str("state", ev.State).Msg("Recognize state")
			continue
		}
		if len(ev.SpeakerLabels) > 0 {
			s.addSpeakers(ev.SpeakerLabels)
		}

		for i, res := range ev.Results {
			r, ok := s.toResult(res, ev.ResultIndex+i)
			if !ok {
				continue
			}
			select {
			case s.results <- r:
			case <-s.done:
				return
			}
		}
	}
}

func (s *stream) addSpeakers(labels []speakerLabelResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range labels {
		s.speakers = append(s.speakers, stt.SpeakerLabel{
			From:       l.From,
			To:         l.To,
			Speaker:    l.Speaker,
			Confidence: l.Confidence,
			Final:      l.Final,
		})
	}
}

// toResult converts a wire result. Speaker labels received so far are attached
// to the next final result.
func (s *stream) toResult(res recognizeResult, index int) (stt.Result, bool) {
	if len(res.Alternatives) == 0 {
		return stt.Result{}, false
	}

	r := stt.Result{
		Final:       res.Final,
		Transcript:  strings.TrimSpace(res.Alternatives[0].Transcript),
		Confidence:  res.Alternatives[0].Confidence,
		ResultIndex: index,
		ReceivedAt:  time.Now(),
	}
	for _, alt := range res.Alternatives {
		r.Alternatives = append(r.Alternatives, stt.Alternative{
			Transcript: strings.TrimSpace(alt.Transcript),
			Confidence: alt.Confidence,
		})
	}

	if len(res.KeywordsResult) > 0 {
		r.Keywords = make(map[string][]stt.KeywordMatch, len(res.KeywordsResult))
		for kw, matches := range res.KeywordsResult {
			for _, m := range matches {
				r.Keywords[kw] = append(r.Keywords[kw], stt.KeywordMatch{
					NormalizedText: m.NormalizedText,
					StartTime:      m.StartTime,
					EndTime:        m.EndTime,
					Confidence:     m.Confidence,
				})
			}
		}
	}

	for _, wa := range res.WordAlternatives {
		slot := stt.WordAlternatives{StartTime: wa.StartTime, EndTime: wa.EndTime}
		for _, a := range wa.Alternatives {
			slot.Alternatives = append(slot.Alternatives, stt.WordAlternative{Word: a.Word, Confidence: a.Confidence})
		}
		r.WordAlternatives = append(r.WordAlternatives, slot)
	}

	if r.Final {
		s.mu.Lock()
		r.SpeakerLabels = s.speakers
		s.speakers = nil
		s.mu.Unlock()
	}
	return r, true
}
