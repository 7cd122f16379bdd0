// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Configuration holds all service configuration.
type Configuration struct {
	Service       ServiceConfig
	Session       SessionConfig
	STT           STTConfig
	Buffer        BufferConfig
	Cache         CacheConfig
	Answers       AnswersConfig
	LLM           LLMConfig
	Embedding     EmbeddingConfig
	RAG           RAGConfig
	Store         StoreConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	HTTP          HTTPConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds general service settings.
type ServiceConfig struct {
	Name      string
	Principal string
	GRPCPort  string
	HTTPPort  string
}

// SessionConfig configures the live session.
type SessionConfig struct {
	ID            string
	Profile       string   // interview, sales or support
	AnswerSources []string // audio sources answered automatically
	MaxHistory    int
}

// STTConfig holds speech-to-text settings.
type STTConfig struct {
	Provider      string // "mock", "google" or "whisper"
	LanguageCode  string
	SampleRateHz  int
	AudioEncoding string
	Model         string
	BaseURL       string // whisper endpoint, empty means api.openai.com
	APIKey        string
}

// BufferConfig tunes the transcription buffer and its queues.
type BufferConfig struct {
	MinChunk         time.Duration
	MaxBuffer        time.Duration
	SilenceThreshold float64
	SilenceTrigger   time.Duration
	GraceWindow      time.Duration
	FrameQueue       int
	FlushQueue       int
	FlushTimeout     time.Duration
}

// CacheConfig sizes the answer caches.
type CacheConfig struct {
	ExactSize         int
	SemanticSize      int
	SemanticThreshold float64
	EmbeddingMemo     int
}

// AnswersConfig configures the precomputed answer store.
type AnswersConfig struct {
	InstantThreshold float64
	ContextThreshold float64
	PreparedFile     string
}

// LLMConfig selects the inference backend.
type LLMConfig struct {
	Provider  string // "ollama" or "openai"
	BaseURL   string
	Model     string
	APIKey    string
	Timeout   time.Duration
	KeepAlive string
}

// EmbeddingConfig selects the embedding backend. Empty fields inherit from LLM.
type EmbeddingConfig struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
}

// RAGConfig tunes context assembly and the knowledge corpus.
type RAGConfig struct {
	TopK            int
	ReferenceK      int
	MaxContextChars int
	RelevanceFloor  float64
	UserContextFile string
}

// StoreConfig selects where durable state lives.
type StoreConfig struct {
	Backend string // "file" or "redis"
	Dir     string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// KafkaConfig holds Kafka settings.
type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicTranscript string
	TopicAnswer     string
	Principal       string
}

// HTTPConfig holds API rate limits.
type HTTPConfig struct {
	RateLimit float64 // requests per second per client
	RateBurst int
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	MetricsPort string
	LogLevel    string
	LogFormat   string
	LogFile     string
}

// Load reads configuration from the environment, after loading a .env
// file when one is present.
func Load() *Configuration {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded .env file")
	}

	servicePrincipal := envOrDefault("SERVICE_PRINCIPAL", "ai-live-hints-service")
	llmProvider := envOrDefault("LLM_PROVIDER", "ollama")
	llmURL := envOrDefault("LLM_BASE_URL", defaultLLMURL(llmProvider))

	return &Configuration{
		Service: ServiceConfig{
			Name:      envOrDefault("SERVICE_NAME", "ai-live-hints-service"),
			Principal: servicePrincipal,
			GRPCPort:  envOrDefault("GRPC_PORT", "50051"),
			HTTPPort:  envOrDefault("HTTP_PORT", "8080"),
		},
		Session: SessionConfig{
			ID:            envOrDefault("SESSION_ID", "live"),
			Profile:       envOrDefault("SESSION_PROFILE", "interview"),
			AnswerSources: envOrDefaultList("SESSION_ANSWER_SOURCES", []string{"remote"}),
			MaxHistory:    envOrDefaultInt("SESSION_MAX_HISTORY", 50),
		},
		STT: STTConfig{
			Provider:      envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:  envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:  envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			AudioEncoding: envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			Model:         os.Getenv("STT_MODEL"),
			BaseURL:       os.Getenv("STT_BASE_URL"),
			APIKey:        os.Getenv("STT_API_KEY"),
		},
		Buffer: BufferConfig{
			MinChunk:         envOrDefaultDuration("BUFFER_MIN_CHUNK", 250*time.Millisecond),
			MaxBuffer:        envOrDefaultDuration("BUFFER_MAX_DURATION", 4*time.Second),
			SilenceThreshold: envOrDefaultFloat("BUFFER_SILENCE_THRESHOLD", 0.015),
			SilenceTrigger:   envOrDefaultDuration("BUFFER_SILENCE_TRIGGER", 800*time.Millisecond),
			GraceWindow:      envOrDefaultDuration("BUFFER_GRACE_WINDOW", 2*time.Second),
			FrameQueue:       envOrDefaultInt("BUFFER_FRAME_QUEUE", 256),
			FlushQueue:       envOrDefaultInt("BUFFER_FLUSH_QUEUE", 4),
			FlushTimeout:     envOrDefaultDuration("BUFFER_FLUSH_TIMEOUT", 30*time.Second),
		},
		Cache: CacheConfig{
			ExactSize:         envOrDefaultInt("CACHE_EXACT_SIZE", 20),
			SemanticSize:      envOrDefaultInt("CACHE_SEMANTIC_SIZE", 200),
			SemanticThreshold: envOrDefaultFloat("CACHE_SEMANTIC_THRESHOLD", 0.77),
			EmbeddingMemo:     envOrDefaultInt("CACHE_EMBEDDING_MEMO", 512),
		},
		Answers: AnswersConfig{
			InstantThreshold: envOrDefaultFloat("ANSWERS_INSTANT_THRESHOLD", 0.88),
			ContextThreshold: envOrDefaultFloat("ANSWERS_CONTEXT_THRESHOLD", 0.70),
			PreparedFile:     envOrDefault("ANSWERS_PREPARED_FILE", "data/prepared_answers.json"),
		},
		LLM: LLMConfig{
			Provider:  llmProvider,
			BaseURL:   llmURL,
			Model:     envOrDefault("LLM_MODEL", "qwen2.5:7b"),
			APIKey:    os.Getenv("LLM_API_KEY"),
			Timeout:   envOrDefaultDuration("LLM_TIMEOUT", 60*time.Second),
			KeepAlive: envOrDefault("LLM_KEEP_ALIVE", "-1"),
		},
		Embedding: EmbeddingConfig{
			Provider: envOrDefault("EMBEDDING_PROVIDER", llmProvider),
			BaseURL:  envOrDefault("EMBEDDING_BASE_URL", llmURL),
			Model:    envOrDefault("EMBEDDING_MODEL", "nomic-embed-text"),
			APIKey:   envOrDefault("EMBEDDING_API_KEY", os.Getenv("LLM_API_KEY")),
		},
		RAG: RAGConfig{
			TopK:            envOrDefaultInt("RAG_TOP_K", 3),
			ReferenceK:      envOrDefaultInt("RAG_REFERENCE_K", 3),
			MaxContextChars: envOrDefaultInt("RAG_MAX_CONTEXT_CHARS", 4000),
			RelevanceFloor:  envOrDefaultFloat("RAG_RELEVANCE_FLOOR", 0.3),
			UserContextFile: envOrDefault("RAG_USER_CONTEXT_FILE", "data/user_context.txt"),
		},
		Store: StoreConfig{
			Backend: envOrDefault("STORE_BACKEND", "file"),
			Dir:     envOrDefault("STORE_DIR", "data/store"),
		},
		Redis: RedisConfig{
			Addr:     envOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envOrDefaultInt("REDIS_DB", 0),
			Prefix:   envOrDefault("REDIS_PREFIX", "hints"),
		},
		Kafka: KafkaConfig{
			Enabled:         envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:         envOrDefaultList("KAFKA_BROKERS", nil),
			TopicTranscript: envOrDefault("KAFKA_TOPIC_TRANSCRIPT", "session.transcript.segment"),
			TopicAnswer:     envOrDefault("KAFKA_TOPIC_ANSWER", "session.answer.ready"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", servicePrincipal),
		},
		HTTP: HTTPConfig{
			RateLimit: envOrDefaultFloat("HTTP_RATE_LIMIT", 5),
			RateBurst: envOrDefaultInt("HTTP_RATE_BURST", 10),
		},
		Observability: ObservabilityConfig{
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			LogFile:     os.Getenv("LOG_FILE"),
		},
	}
}

func defaultLLMURL(provider string) string {
	if provider == "openai" {
		return ""
	}
	return "http://localhost:11434"
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
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
