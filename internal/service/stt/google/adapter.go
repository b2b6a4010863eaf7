// Package google provides a Google Cloud Speech-to-Text recognizer.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/protobuf/types/known/durationpb"

	"voice-command-pipeline/internal/service/stt"
)

// Recognizer implements stt.Recognizer using Google Cloud Speech-to-Text.
type Recognizer struct {
	client *speech.Client
}

// New creates a new Google recognizer.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context) (*Recognizer, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Recognizer{client: c}, nil
}

// Name implements stt.Recognizer.
func (r *Recognizer) Name() string { return "google" }

// Close releases the underlying client.
func (r *Recognizer) Close() error {
	return r.client.Close()
}

// Open begins a streaming recognition session and sends the initial config.
func (r *Recognizer) Open(ctx context.Context, opts stt.Options, format stt.AudioFormat) (stt.Stream, error) {
	sctx, cancel := context.WithCancel(context.Background())
	client, err := r.client.StreamingRecognize(sctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: google: %w", stt.ErrConnection, err)
	}

	// Send streaming config as the first message
	err = client.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: streamingConfig(opts, format),
		},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: google: send config: %w", stt.ErrConnection, err)
	}

	s := &stream{
		client:  client,
		cancel:  cancel,
		results: make(chan stt.Result, 64),
		done:    make(chan struct{}),
	}
	go s.listen()
	return s, nil
}

// streamingConfig maps recognition options onto the Google request. Options
// without a Google equivalent are not sent.
func streamingConfig(opts stt.Options, format stt.AudioFormat) *speechpb.StreamingRecognitionConfig {
	channels := format.Channels
	if channels <= 0 {
		channels = 1
	}
	rc := &speechpb.RecognitionConfig{
		Encoding:                   speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:            int32(format.SampleRateHz),
		AudioChannelCount:          int32(channels),
		LanguageCode:               opts.LanguageCode,
		MaxAlternatives:            int32(opts.MaxAlternatives),
		ProfanityFilter:            opts.ProfanityFilter,
		EnableWordTimeOffsets:      opts.Timestamps,
		EnableWordConfidence:       opts.WordConfidence,
		EnableAutomaticPunctuation: opts.SmartFormatting,
		Model:                      modelName(opts.Model),
	}
	if rc.LanguageCode == "" {
		rc.LanguageCode = "en-US"
	}
	if opts.SpeakerLabels {
		rc.DiarizationConfig = &speechpb.SpeakerDiarizationConfig{EnableSpeakerDiarization: true}
	}
	if len(opts.Keywords) > 0 {
		rc.SpeechContexts = []*speechpb.SpeechContext{{Phrases: opts.Keywords}}
	}

	sc := &speechpb.StreamingRecognitionConfig{
		Config:                    rc,
		InterimResults:            opts.InterimResults,
		EnableVoiceActivityEvents: opts.DetectSilence,
	}
	if opts.InactivityTimeout >= 0 {
		sc.VoiceActivityTimeout = &speechpb.StreamingRecognitionConfig_VoiceActivityTimeout{
			SpeechEndTimeout: durationpb.New(time.Duration(opts.InactivityTimeout) * time.Second),
		}
	}
	return sc
}

// modelName drops Watson-style model identifiers, which Google rejects.
func modelName(model string) string {
	if strings.HasSuffix(model, "Model") {
		return ""
	}
	return model
}

// stream wraps a Google streaming client. It implements stt.Stream.
type stream struct {
	client  speechpb.Speech_StreamingRecognizeClient
	cancel  context.CancelFunc
	results chan stt.Result
	done    chan struct{}
	once    sync.Once
	sendMu  sync.Mutex

	mu  sync.Mutex
	err error
}

// Send sends audio bytes to Google Speech-to-Text.
func (s *stream) Send(ctx context.Context, pcm []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	select {
	case <-s.done:
		return errors.New("google: stream is closed")
	default:
	}
	return s.client.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: pcm,
		},
	})
}

// Results implements stt.Stream.
func (s *stream) Results() <-chan stt.Result { return s.results }

// Err implements stt.Stream.
func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the streaming session.
func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.sendMu.Lock()
		err = s.client.CloseSend()
		s.sendMu.Unlock()
		s.cancel()
	})
	return err
}

func (s *stream) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// listen receives transcript responses from Google until the stream ends.
func (s *stream) listen() {
	defer close(s.results)

	// Google has no result index; number utterances by finals seen.
	index := 0
	for {
		resp, err := s.client.Recv()
		if err != nil {
			if err != io.EOF && !s.closed() {
				s.mu.Lock()
				s.err = fmt.Errorf("%w: google: %w", stt.ErrTransport, err)
				s.mu.Unlock()
			}
			return
		}
		if st := resp.GetError(); st != nil && st.GetCode() != 0 {
			s.mu.Lock()
			s.err = fmt.Errorf("%w: google: %s", stt.ErrRemoteService, st.GetMessage())
			s.mu.Unlock()
			s.cancel()
			return
		}

		for _, r := range resp.GetResults() {
			res, ok := toResult(r)
			if !ok {
				continue
			}
			res.ResultIndex = index
			if res.Final {
				index++
			}
			select {
			case s.results <- res:
			case <-s.done:
				return
			}
		}
	}
}

func toResult(r *speechpb.StreamingRecognitionResult) (stt.Result, bool) {
	alts := r.GetAlternatives()
	if len(alts) == 0 {
		return stt.Result{}, false
	}

	res := stt.Result{
		Final:      r.GetIsFinal(),
		Transcript: strings.TrimSpace(alts[0].GetTranscript()),
		Confidence: float64(alts[0].GetConfidence()),
		ReceivedAt: time.Now(),
	}
	for _, alt := range alts {
		res.Alternatives = append(res.Alternatives, stt.Alternative{
			Transcript: strings.TrimSpace(alt.GetTranscript()),
			Confidence: float64(alt.GetConfidence()),
		})
	}

	if res.Final {
		for _, w := range alts[0].GetWords() {
			if w.GetSpeakerTag() == 0 {
				continue
			}
			res.SpeakerLabels = append(res.SpeakerLabels, stt.SpeakerLabel{
				From:       w.GetStartTime().AsDuration().Seconds(),
				To:         w.GetEndTime().AsDuration().Seconds(),
				Speaker:    int(w.GetSpeakerTag()),
				Confidence: float64(w.GetConfidence()),
				Final:      true,
			})
		}
	}
	return res, true
}
