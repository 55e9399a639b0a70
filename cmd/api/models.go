package main

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"soundscape/internal/cache"
	"soundscape/internal/data"
	"soundscape/internal/synth"

	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
	Environment     string
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration

	AudioDir      string
	PublicBaseURL string
	SynthTimeout  time.Duration

	MusicServiceURL       string
	SoundEffectServiceURL string
	SpeechWssURL          string
	SpeechVoicesURL       string
	SpeechToken           string
	SidecarTimeout        time.Duration
}

// Store is the persistence surface the handlers need. *data.Repository
// implements it; tests substitute a fake.
type Store interface {
	RegisterUser(email string, password string) (uint, error)
	AuthenticateUser(email string, password string) (uint, error)
	CreatePrompt(userID uint, prompt string, audioFilePath string, model string) (uint, error)
	ListPrompts(userID uint) ([]data.Prompt, error)
	DeletePrompt(userID uint, promptID uint) error
}

// Synthesizer turns a prompt into a generated audio file.
// *synth.Dispatcher implements it.
type Synthesizer interface {
	Generate(ctx context.Context, prompt string, backend synth.Backend) (string, error)
	Supported(backend synth.Backend) bool
}

type Server struct {
	config     *ServerConfig
	router     *gin.Engine
	repo       Store
	dispatcher Synthesizer
	cache      *cache.Cache
	logger     *log.Logger
	metrics    *Metrics
}

type Metrics struct {
	RequestCount  atomic.Int64
	ErrorCount    atomic.Int64
	CacheHitCount atomic.Int64
}

func LoadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            GetEnvWithDefault("PORT", ":5000"),
		ShutdownTimeout: time.Duration(GetEnvAsIntWithDefault("SHUTDOWN_TIMEOUT_SECONDS", 5)) * time.Second,
		Environment:     GetEnvWithDefault("ENVIRONMENT", "development"),
		AllowedOrigins:  GetEnvAsSlice("ALLOWED_ORIGINS", []string{"*"}),
		ReadTimeout:     time.Duration(GetEnvAsIntWithDefault("READ_TIMEOUT_SECONDS", 5)) * time.Second,
		// Generation responses wait out the full inference, so the write
		// timeout has to cover the synthesis budget.
		WriteTimeout: time.Duration(GetEnvAsIntWithDefault("WRITE_TIMEOUT_SECONDS", 660)) * time.Second,
		IdleTimeout:  time.Duration(GetEnvAsIntWithDefault("IDLE_TIMEOUT_SECONDS", 120)) * time.Second,

		AudioDir:      GetEnvWithDefault("GENERATED_AUDIO_DIR", "generated_audio"),
		PublicBaseURL: GetEnvWithDefault("PUBLIC_BASE_URL", "http://localhost:5000"),
		SynthTimeout:  time.Duration(GetEnvAsIntWithDefault("SYNTH_TIMEOUT_SECONDS", 600)) * time.Second,

		MusicServiceURL:       GetEnvWithDefault("MUSIC_SERVICE_URL", "http://localhost:8001"),
		SoundEffectServiceURL: GetEnvWithDefault("SOUND_EFFECT_SERVICE_URL", "http://localhost:8002"),
		SpeechWssURL:          GetEnvWithDefault("SPEECH_WSS_URL", "wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1"),
		SpeechVoicesURL:       GetEnvWithDefault("SPEECH_VOICES_URL", "https://speech.platform.bing.com/consumer/speech/synthesize/readaloud/voices/list"),
		SpeechToken:           GetEnvWithDefault("SPEECH_CLIENT_TOKEN", ""),
		SidecarTimeout:        time.Duration(GetEnvAsIntWithDefault("SIDECAR_TIMEOUT_SECONDS", 600)) * time.Second,
	}
}

func NewServer(config *ServerConfig, repo Store, dispatcher Synthesizer, audioCache *cache.Cache, logger *log.Logger) *Server {
	if config.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config:     config,
		router:     gin.New(),
		repo:       repo,
		dispatcher: dispatcher,
		cache:      audioCache,
		logger:     logger,
		metrics:    &Metrics{},
	}

	s.SetupMiddleware()
	s.SetupRoutes()

	return s
}
