package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Supabase
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// Script analysis
	AnalysisProvider string // "openai" or "gemini"
	OpenAIKey        string // also used for Whisper captions
	GeminiKey        string

	// ElevenLabs (preferred TTS provider)
	ElevenLabsKey     string
	ElevenLabsVoiceID string

	// Cartesia (fallback TTS provider)
	CartesiaKey     string
	CartesiaURL     string
	CartesiaVoiceID string

	// Stock media
	PexelsKey  string
	PixabayKey string

	// Audio
	MusicLibraryPath string // YAML catalog; empty = no background music

	// Paths
	TempDir   string
	OutputDir string

	// Worker
	MaxConcurrentJobs    int
	SceneWorkers         int
	MaxConcurrentEncodes int

	// Temp sweeper
	TempSweepSchedule string
	TempMaxAgeHours   int

	// Tuning from REELS_CONFIG_FILE
	Mix   MixTuning
	Media MediaTuning
}

// MixTuning overrides the mixer defaults. Zero values keep the default.
type MixTuning struct {
	MusicVolume    float64 `toml:"music_volume"`
	MusicLowpassHz int     `toml:"music_lowpass_hz"`
	DuckThreshold  float64 `toml:"duck_threshold"`
	DuckRatio      float64 `toml:"duck_ratio"`
	TargetLUFS     float64 `toml:"target_lufs"`
	AudioBitrate   string  `toml:"audio_bitrate"`
}

// MediaTuning overrides the acquisition defaults. Zero values keep the
// default.
type MediaTuning struct {
	DurationTolerance   float64 `toml:"duration_tolerance"`
	PerPage             int     `toml:"per_page"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
}

type fileConfig struct {
	Render struct {
		SceneWorkers         int    `toml:"scene_workers"`
		MaxConcurrentEncodes int    `toml:"max_concurrent_encodes"`
		TempDir              string `toml:"temp_dir"`
		OutputDir            string `toml:"output_dir"`
	} `toml:"render"`
	Music struct {
		Library string `toml:"library"`
	} `toml:"music"`
	Mix   MixTuning   `toml:"mix"`
	Media MediaTuning `toml:"media"`
}

// Load reads configuration for the API process and validates everything it
// needs.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
	}
	if err := cfg.validatePipeline(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadLocal reads configuration for the CLI. Keys are validated by the
// command that needs them, not here.
func LoadLocal() (*Config, error) {
	return load()
}

func load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379"),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "reels"),
		AnalysisProvider:      strings.ToLower(getEnv("ANALYSIS_PROVIDER", "openai")),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		GeminiKey:             getEnv("GEMINI_API_KEY", ""),
		ElevenLabsKey:         getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:     getEnv("ELEVENLABS_VOICE_ID", ""),
		CartesiaKey:           getEnv("CARTESIA_API_KEY", ""),
		CartesiaURL:           getEnv("CARTESIA_API_URL", "https://api.cartesia.ai"),
		CartesiaVoiceID:       getEnv("CARTESIA_VOICE_ID", ""),
		PexelsKey:             getEnv("PEXELS_API_KEY", ""),
		PixabayKey:            getEnv("PIXABAY_API_KEY", ""),
		TempDir:               filepath.Join(os.TempDir(), "reels"),
		OutputDir:             "output",
		MaxConcurrentJobs:     getEnvInt("MAX_CONCURRENT_JOBS", 2),
		SceneWorkers:          3,
		MaxConcurrentEncodes:  2,
		TempSweepSchedule:     getEnv("TEMP_SWEEP_SCHEDULE", "@hourly"),
		TempMaxAgeHours:       getEnvInt("TEMP_MAX_AGE_HOURS", 6),
	}

	if path := os.Getenv("REELS_CONFIG_FILE"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	// env wins over the file
	cfg.MusicLibraryPath = getEnv("MUSIC_LIBRARY_PATH", cfg.MusicLibraryPath)
	cfg.TempDir = getEnv("TEMP_DIR", cfg.TempDir)
	cfg.OutputDir = getEnv("OUTPUT_DIR", cfg.OutputDir)
	cfg.SceneWorkers = getEnvInt("SCENE_WORKERS", cfg.SceneWorkers)
	cfg.MaxConcurrentEncodes = getEnvInt("MAX_CONCURRENT_ENCODES", cfg.MaxConcurrentEncodes)
	cfg.Mix.MusicVolume = getEnvFloat("MUSIC_VOLUME", cfg.Mix.MusicVolume)
	cfg.Media.DurationTolerance = getEnvFloat("MEDIA_DURATION_TOLERANCE", cfg.Media.DurationTolerance)

	if cfg.AnalysisProvider != "openai" && cfg.AnalysisProvider != "gemini" {
		return nil, fmt.Errorf("ANALYSIS_PROVIDER must be openai or gemini, got %q", cfg.AnalysisProvider)
	}
	if cfg.SceneWorkers < 1 || cfg.MaxConcurrentEncodes < 1 || cfg.MaxConcurrentJobs < 1 {
		return nil, fmt.Errorf("SCENE_WORKERS, MAX_CONCURRENT_ENCODES and MAX_CONCURRENT_JOBS must be positive")
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if fc.Render.SceneWorkers > 0 {
		cfg.SceneWorkers = fc.Render.SceneWorkers
	}
	if fc.Render.MaxConcurrentEncodes > 0 {
		cfg.MaxConcurrentEncodes = fc.Render.MaxConcurrentEncodes
	}
	if fc.Render.TempDir != "" {
		cfg.TempDir = fc.Render.TempDir
	}
	if fc.Render.OutputDir != "" {
		cfg.OutputDir = fc.Render.OutputDir
	}
	if fc.Music.Library != "" {
		cfg.MusicLibraryPath = fc.Music.Library
	}
	cfg.Mix = fc.Mix
	cfg.Media = fc.Media
	return nil
}

// validatePipeline checks the keys every full render needs.
func (c *Config) validatePipeline() error {
	if c.AnalysisProvider == "gemini" && c.GeminiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when ANALYSIS_PROVIDER=gemini")
	}
	// Whisper captions always need OpenAI
	if c.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.ElevenLabsKey == "" && c.CartesiaKey == "" {
		return fmt.Errorf("either ELEVENLABS_API_KEY or CARTESIA_API_KEY is required for TTS")
	}
	if err := c.ValidateMedia(); err != nil {
		return err
	}
	return nil
}

// ValidateMedia checks that at least one stock media provider is usable.
func (c *Config) ValidateMedia() error {
	if c.PexelsKey == "" && c.PixabayKey == "" {
		return fmt.Errorf("either PEXELS_API_KEY or PIXABAY_API_KEY is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}
