// Package config loads pipeline configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrConfigurationMissing is returned when a required credential or identifier is empty.
var ErrConfigurationMissing = errors.New("configuration missing")

// Recognizer provider names.
const (
	ProviderWatson = "watson"
	ProviderGoogle = "google"
	ProviderMock   = "mock"
)

// Config is the root configuration.
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	Observability ObservabilityConfig `yaml:"observability"`
	STT           STTConfig           `yaml:"stt"`
	IAM           IAMConfig           `yaml:"iam"`
	Assistant     AssistantConfig     `yaml:"assistant"`
	Translator    TranslatorConfig    `yaml:"translator"`
	Capture       CaptureConfig       `yaml:"capture"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
}

type ServiceConfig struct {
	Name     string `yaml:"name"`
	GRPCPort string `yaml:"grpc_port"`
	HTTPAddr string `yaml:"http_addr"`
}

type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// STTConfig holds the recognizer selection and the options passed verbatim to
// the remote recognition session.
type STTConfig struct {
	Provider     string `yaml:"provider"`
	ServiceURL   string `yaml:"service_url"`
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	LanguageCode string `yaml:"language_code"`

	DetectSilence             bool     `yaml:"detect_silence"`
	SilenceThreshold          float64  `yaml:"silence_threshold"`
	WordConfidence            bool     `yaml:"word_confidence"`
	Timestamps                bool     `yaml:"timestamps"`
	MaxAlternatives           int      `yaml:"max_alternatives"`
	InterimResults            bool     `yaml:"interim_results"`
	InactivityTimeout         int      `yaml:"inactivity_timeout"` // seconds, negative = unbounded
	ProfanityFilter           bool     `yaml:"profanity_filter"`
	SmartFormatting           bool     `yaml:"smart_formatting"`
	SpeakerLabels             bool     `yaml:"speaker_labels"`
	WordAlternativesThreshold *float64 `yaml:"word_alternatives_threshold"`
}

type IAMConfig struct {
	URL string `yaml:"url"`
}

type AssistantConfig struct {
	ServiceURL  string `yaml:"service_url"`
	APIKey      string `yaml:"api_key"`
	AssistantID string `yaml:"assistant_id"`
	Version     string `yaml:"version"`
}

type TranslatorConfig struct {
	ServiceURL string `yaml:"service_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Version    string `yaml:"version"`
}

type CaptureConfig struct {
	Device        string `yaml:"device"`
	SampleRateHz  int    `yaml:"sample_rate_hz"`
	BufferSeconds int    `yaml:"buffer_seconds"`
	Channels      int    `yaml:"channels"`
}

type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	TopicPartial string   `yaml:"topic_partial"`
	TopicFinal   string   `yaml:"topic_final"`
	TopicEvents  string   `yaml:"topic_events"`
	Principal    string   `yaml:"principal"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BrokerURL   string `yaml:"broker_url"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "svc-voice-pipeline",
			GRPCPort: "50051",
			HTTPAddr: ":9090",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
		STT: STTConfig{
			Provider:          ProviderMock,
			Model:             "en-US_BroadbandModel",
			LanguageCode:      "en-US",
			DetectSilence:     true,
			SilenceThreshold:  0.01,
			WordConfidence:    true,
			Timestamps:        true,
			MaxAlternatives:   1,
			InterimResults:    true,
			InactivityTimeout: -1,
			ProfanityFilter:   false,
			SmartFormatting:   true,
			SpeakerLabels:     false,
		},
		IAM: IAMConfig{
			URL: "https://iam.cloud.ibm.com/identity/token",
		},
		Assistant: AssistantConfig{
			Version: "2019-11-12",
		},
		Translator: TranslatorConfig{
			Model:   "en-es",
			Version: "2018-05-01",
		},
		Capture: CaptureConfig{
			Device:        "default",
			SampleRateHz:  22050,
			BufferSeconds: 1,
			Channels:      1,
		},
		Kafka: KafkaConfig{
			Enabled:      false,
			TopicPartial: "voice.transcript.partial",
			TopicFinal:   "voice.transcript.final",
			TopicEvents:  "voice.events",
			Principal:    "svc-voice-pipeline",
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			BrokerURL:   "tcp://localhost:1883",
			ClientID:    "voice-pipeline",
			TopicPrefix: "game",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// PIPELINE_CONFIG_FILE (if any), then environment variables. A .env file in
// the working directory is loaded into the environment first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("PIPELINE_CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("config: decode %q: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Service.Name = envOrDefault("SERVICE_NAME", cfg.Service.Name)
	cfg.Service.GRPCPort = envOrDefault("GRPC_PORT", cfg.Service.GRPCPort)
	cfg.Service.HTTPAddr = envOrDefault("HTTP_ADDR", cfg.Service.HTTPAddr)

	cfg.Observability.LogLevel = envOrDefault("LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogFormat = envOrDefault("LOG_FORMAT", cfg.Observability.LogFormat)

	cfg.STT.Provider = envOrDefault("STT_PROVIDER", cfg.STT.Provider)
	cfg.STT.ServiceURL = envOrDefault("STT_SERVICE_URL", cfg.STT.ServiceURL)
	cfg.STT.APIKey = envOrDefault("STT_API_KEY", cfg.STT.APIKey)
	cfg.STT.Model = envOrDefault("STT_MODEL", cfg.STT.Model)
	cfg.STT.LanguageCode = envOrDefault("STT_LANGUAGE_CODE", cfg.STT.LanguageCode)
	cfg.STT.DetectSilence = envBool("STT_DETECT_SILENCE", cfg.STT.DetectSilence)
	cfg.STT.SilenceThreshold = envFloat("STT_SILENCE_THRESHOLD", cfg.STT.SilenceThreshold)
	cfg.STT.WordConfidence = envBool("STT_WORD_CONFIDENCE", cfg.STT.WordConfidence)
	cfg.STT.Timestamps = envBool("STT_TIMESTAMPS", cfg.STT.Timestamps)
	cfg.STT.MaxAlternatives = envInt("STT_MAX_ALTERNATIVES", cfg.STT.MaxAlternatives)
	cfg.STT.InterimResults = envBool("STT_INTERIM_RESULTS", cfg.STT.InterimResults)
	cfg.STT.InactivityTimeout = envInt("STT_INACTIVITY_TIMEOUT", cfg.STT.InactivityTimeout)
	cfg.STT.ProfanityFilter = envBool("STT_PROFANITY_FILTER", cfg.STT.ProfanityFilter)
	cfg.STT.SmartFormatting = envBool("STT_SMART_FORMATTING", cfg.STT.SmartFormatting)
	cfg.STT.SpeakerLabels = envBool("STT_SPEAKER_LABELS", cfg.STT.SpeakerLabels)
	if v := os.Getenv("STT_WORD_ALTERNATIVES_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.STT.WordAlternativesThreshold = &f
		}
	}

	cfg.IAM.URL = envOrDefault("IAM_URL", cfg.IAM.URL)

	cfg.Assistant.ServiceURL = envOrDefault("ASSISTANT_SERVICE_URL", cfg.Assistant.ServiceURL)
	cfg.Assistant.APIKey = envOrDefault("ASSISTANT_API_KEY", cfg.Assistant.APIKey)
	cfg.Assistant.AssistantID = envOrDefault("ASSISTANT_ID", cfg.Assistant.AssistantID)
	cfg.Assistant.Version = envOrDefault("ASSISTANT_VERSION", cfg.Assistant.Version)

	cfg.Translator.ServiceURL = envOrDefault("TRANSLATOR_SERVICE_URL", cfg.Translator.ServiceURL)
	cfg.Translator.APIKey = envOrDefault("TRANSLATOR_API_KEY", cfg.Translator.APIKey)
	cfg.Translator.Model = envOrDefault("TRANSLATOR_MODEL", cfg.Translator.Model)
	cfg.Translator.Version = envOrDefault("TRANSLATOR_VERSION", cfg.Translator.Version)

	cfg.Capture.Device = envOrDefault("CAPTURE_DEVICE", cfg.Capture.Device)
	cfg.Capture.SampleRateHz = envInt("CAPTURE_SAMPLE_RATE_HZ", cfg.Capture.SampleRateHz)
	cfg.Capture.BufferSeconds = envInt("CAPTURE_BUFFER_SECONDS", cfg.Capture.BufferSeconds)
	cfg.Capture.Channels = envInt("CAPTURE_CHANNELS", cfg.Capture.Channels)

	cfg.Kafka.Enabled = envBool("KAFKA_ENABLED", cfg.Kafka.Enabled)
	cfg.Kafka.Brokers = envList("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.TopicPartial = envOrDefault("KAFKA_TOPIC_PARTIAL", cfg.Kafka.TopicPartial)
	cfg.Kafka.TopicFinal = envOrDefault("KAFKA_TOPIC_FINAL", cfg.Kafka.TopicFinal)
	cfg.Kafka.TopicEvents = envOrDefault("KAFKA_TOPIC_EVENTS", cfg.Kafka.TopicEvents)
	cfg.Kafka.Principal = envOrDefault("SERVICE_PRINCIPAL", cfg.Kafka.Principal)

	cfg.MQTT.Enabled = envBool("MQTT_ENABLED", cfg.MQTT.Enabled)
	cfg.MQTT.BrokerURL = envOrDefault("MQTT_BROKER_URL", cfg.MQTT.BrokerURL)
	cfg.MQTT.ClientID = envOrDefault("MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.Username = envOrDefault("MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = envOrDefault("MQTT_PASSWORD", cfg.MQTT.Password)
	cfg.MQTT.TopicPrefix = envOrDefault("MQTT_TOPIC_PREFIX", cfg.MQTT.TopicPrefix)
}

// Validate checks cfg and returns every failure joined into one error.
// Missing credentials wrap ErrConfigurationMissing.
func (c *Config) Validate() error {
	var errs []error

	switch c.STT.Provider {
	case ProviderWatson:
		if c.STT.APIKey == "" {
			errs = append(errs, fmt.Errorf("stt.api_key is required for provider %q: %w", c.STT.Provider, ErrConfigurationMissing))
		}
	case ProviderGoogle, ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("stt.provider %q is invalid; valid values: watson, google, mock", c.STT.Provider))
	}
	if c.STT.SilenceThreshold < 0 {
		errs = append(errs, fmt.Errorf("stt.silence_threshold %.3f must not be negative", c.STT.SilenceThreshold))
	}
	if c.STT.MaxAlternatives < 1 {
		errs = append(errs, fmt.Errorf("stt.max_alternatives %d must be at least 1", c.STT.MaxAlternatives))
	}
	if t := c.STT.WordAlternativesThreshold; t != nil && *t < 0 {
		errs = append(errs, fmt.Errorf("stt.word_alternatives_threshold %.3f must not be negative", *t))
	}

	if c.Assistant.ServiceURL != "" {
		if c.Assistant.APIKey == "" {
			errs = append(errs, fmt.Errorf("assistant.api_key is required: %w", ErrConfigurationMissing))
		}
		if c.Assistant.AssistantID == "" {
			errs = append(errs, fmt.Errorf("assistant.assistant_id is required: %w", ErrConfigurationMissing))
		}
	}
	if c.Translator.ServiceURL != "" && c.Translator.APIKey == "" {
		errs = append(errs, fmt.Errorf("translator.api_key is required: %w", ErrConfigurationMissing))
	}

	if c.Capture.SampleRateHz <= 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate_hz %d must be positive", c.Capture.SampleRateHz))
	}
	if c.Capture.BufferSeconds <= 0 {
		errs = append(errs, fmt.Errorf("capture.buffer_seconds %d must be positive", c.Capture.BufferSeconds))
	}
	if c.Capture.Channels <= 0 {
		errs = append(errs, fmt.Errorf("capture.channels %d must be positive", c.Capture.Channels))
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	if c.MQTT.Enabled && c.MQTT.BrokerURL == "" {
		errs = append(errs, errors.New("mqtt.broker_url is required when mqtt is enabled"))
	}

	return errors.Join(errs...)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
