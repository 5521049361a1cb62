package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Provider names accepted by the *_PROVIDER settings
const (
	ProviderGroq         = "groq"
	ProviderDeepgram     = "deepgram"
	ProviderOrchestrator = "orchestrator"
	ProviderElevenLabs   = "elevenlabs"
	ProviderCartesia     = "cartesia"
)

// Capture sources
const (
	CaptureSourceFFmpeg = "ffmpeg"
	CaptureSourceRemote = "remote"
)

// Turn scheduling modes
const (
	TurnModeSerial     = "serial"
	TurnModeConcurrent = "concurrent"
)

// DefaultSystemPrompt is the persona used for reply generation
const DefaultSystemPrompt = `You are a smart, friendly, and conversational voice assistant.
Your responses should be natural, clear, and concise, as if you're speaking to someone directly.
You should keep the tone helpful and human-like, avoiding robotic or overly formal phrasing.
Always aim to understand what the user *means*, not just what they *say*.
If the user gives an incomplete or vague input, ask clarifying questions or try to help based on best assumptions.
Avoid saying you're an AI unless explicitly asked. Just be a helpful assistant the user can talk to naturally.`

// Config holds all configuration for the voice assistant service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Collaborator selection
	STTProvider string `envconfig:"STT_PROVIDER" default:"groq"`       // groq, deepgram
	LLMProvider string `envconfig:"LLM_PROVIDER" default:"groq"`       // groq, orchestrator
	TTSProvider string `envconfig:"TTS_PROVIDER" default:"elevenlabs"` // elevenlabs, cartesia

	// Groq (OpenAI-compatible) configuration, used for transcription and generation
	GroqAPIKey          string  `envconfig:"GROQ_API_KEY"`
	GroqBaseURL         string  `envconfig:"GROQ_BASE_URL" default:"https://api.groq.com/openai/v1/"`
	GroqTranscribeModel string  `envconfig:"GROQ_TRANSCRIBE_MODEL" default:"whisper-large-v3-turbo"`
	GroqChatModel       string  `envconfig:"GROQ_CHAT_MODEL" default:"llama-3.3-70b-versatile"`
	GroqTemperature     float64 `envconfig:"GROQ_TEMPERATURE" default:"1.0"`
	GroqMaxRetries      int     `envconfig:"GROQ_MAX_RETRIES" default:"2"`
	SystemPrompt        string  `envconfig:"SYSTEM_PROMPT"`

	// Deepgram STT API configuration
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"` // nova-2, enhanced, base
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`  // Language code (en, es, fr, etc.)

	// Cognitive Orchestrator gRPC endpoint
	OrchestratorURL        string `envconfig:"ORCHESTRATOR_URL" default:"localhost:50051"`
	OrchestratorTLSEnabled bool   `envconfig:"ORCHESTRATOR_TLS_ENABLED" default:"false"`
	OrchestratorTimeout    int    `envconfig:"ORCHESTRATOR_TIMEOUT" default:"30"` // seconds

	// ElevenLabs TTS API configuration
	ElevenLabsAPIKey       string `envconfig:"ELEVENLABS_API_KEY"`
	ElevenLabsVoiceID      string `envconfig:"ELEVENLABS_VOICE_ID" default:"JBFqnCBsd6RMkjVDRZzb"`
	ElevenLabsModelID      string `envconfig:"ELEVENLABS_MODEL_ID" default:"eleven_multilingual_v2"`
	ElevenLabsOutputFormat string `envconfig:"ELEVENLABS_OUTPUT_FORMAT" default:"mp3_44100_128"`

	// Cartesia TTS API configuration
	CartesiaAPIKey  string `envconfig:"CARTESIA_API_KEY"`
	CartesiaVoiceID string `envconfig:"CARTESIA_VOICE_ID" default:"sonic-english"` // Voice ID for Cartesia
	CartesiaModelID string `envconfig:"CARTESIA_MODEL_ID" default:"sonic"`         // Model ID (sonic, etc.)

	// Host media configuration
	CaptureSource      string `envconfig:"CAPTURE_SOURCE" default:"remote"` // ffmpeg, remote
	FFmpegPath         string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	CaptureInputFormat string `envconfig:"CAPTURE_INPUT_FORMAT" default:"pulse"`
	CaptureInputDevice string `envconfig:"CAPTURE_INPUT_DEVICE" default:"default"`
	CaptureBitrate     string `envconfig:"CAPTURE_BITRATE" default:"128k"`
	FFplayPath         string `envconfig:"FFPLAY_PATH" default:"ffplay"`
	Autoplay           bool   `envconfig:"AUTOPLAY" default:"false"`
	MaxClipBytes       int64  `envconfig:"MAX_CLIP_BYTES" default:"26214400"` // 25 MiB, the Whisper upload limit

	// Turn pipeline configuration
	TurnMode            string `envconfig:"TURN_MODE" default:"serial"` // serial, concurrent
	TurnQueueSize       int    `envconfig:"TURN_QUEUE_SIZE" default:"16"`
	CollaboratorTimeout int    `envconfig:"COLLABORATOR_TIMEOUT" default:"30"` // seconds, per call
	ExportTimeLayout    string `envconfig:"EXPORT_TIME_LAYOUT" default:"03:04 PM"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Maximum reconnection attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Reconnection backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks provider selections and that each selected provider has its credentials
func (c *Config) Validate() error {
	switch c.STTProvider {
	case ProviderGroq:
		if c.GroqAPIKey == "" {
			return fmt.Errorf("GROQ_API_KEY is required for STT_PROVIDER=%s", c.STTProvider)
		}
	case ProviderDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required for STT_PROVIDER=%s", c.STTProvider)
		}
	default:
		return fmt.Errorf("unknown STT_PROVIDER %q", c.STTProvider)
	}

	switch c.LLMProvider {
	case ProviderGroq:
		if c.GroqAPIKey == "" {
			return fmt.Errorf("GROQ_API_KEY is required for LLM_PROVIDER=%s", c.LLMProvider)
		}
	case ProviderOrchestrator:
		if c.OrchestratorURL == "" {
			return fmt.Errorf("ORCHESTRATOR_URL is required for LLM_PROVIDER=%s", c.LLMProvider)
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}

	switch c.TTSProvider {
	case ProviderElevenLabs:
		if c.ElevenLabsAPIKey == "" {
			return fmt.Errorf("ELEVENLABS_API_KEY is required for TTS_PROVIDER=%s", c.TTSProvider)
		}
	case ProviderCartesia:
		if c.CartesiaAPIKey == "" {
			return fmt.Errorf("CARTESIA_API_KEY is required for TTS_PROVIDER=%s", c.TTSProvider)
		}
	default:
		return fmt.Errorf("unknown TTS_PROVIDER %q", c.TTSProvider)
	}

	if c.CaptureSource != CaptureSourceFFmpeg && c.CaptureSource != CaptureSourceRemote {
		return fmt.Errorf("unknown CAPTURE_SOURCE %q", c.CaptureSource)
	}
	if c.TurnMode != TurnModeSerial && c.TurnMode != TurnModeConcurrent {
		return fmt.Errorf("unknown TURN_MODE %q", c.TurnMode)
	}

	return nil
}

// CollaboratorCallTimeout returns the per-call deadline for remote collaborators
func (c *Config) CollaboratorCallTimeout() time.Duration {
	return time.Duration(c.CollaboratorTimeout) * time.Second
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
