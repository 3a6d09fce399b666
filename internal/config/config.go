// Package config resolves runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/mudra/internal/clip"
)

// Config is the full runtime configuration.
type Config struct {
	Addr     string
	DataDir  string
	DBPath   string
	WebDir   string
	Headless bool

	Camera      CameraConfig
	Trigger     TriggerConfig
	Translation TranslationConfig
	Speech      SpeechConfig
	Archive     ArchiveConfig

	Playback    bool
	Notify      bool
	CORSOrigins []string
}

type CameraConfig struct {
	ID              int
	MotionThreshold float64
	Codecs          []clip.Codec
}

type TriggerConfig struct {
	Mode     string
	Debounce time.Duration
}

type TranslationConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	PromptDelay time.Duration
}

type SpeechConfig struct {
	URL     string
	Speaker string
}

type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Secure    bool
}

// Enabled reports whether an archive endpoint is configured.
func (a ArchiveConfig) Enabled() bool { return a.Endpoint != "" }

// Load resolves configuration from environment variables and defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	dataDir := envOrDefault("MUDRA_DATA_DIR", filepath.Join(home, ".mudra"))

	codecs := clip.DefaultCodecs()
	if spec := strings.TrimSpace(os.Getenv("MUDRA_CODECS")); spec != "" {
		codecs, err = clip.ParseCodecs(spec)
		if err != nil {
			return Config{}, fmt.Errorf("MUDRA_CODECS: %w", err)
		}
	}

	cfg := Config{
		Addr:    envOrDefault("MUDRA_ADDR", "127.0.0.1:8080"),
		DataDir: dataDir,
		DBPath:  envOrDefault("MUDRA_DB", filepath.Join(dataDir, "mudra.db")),
		WebDir:  strings.TrimSpace(os.Getenv("MUDRA_WEB_DIR")),
		Camera: CameraConfig{
			ID:              envOrDefaultInt("MUDRA_CAMERA_ID", 0),
			MotionThreshold: envOrDefaultFloat("MUDRA_MOTION_THRESHOLD", 1.0),
			Codecs:          codecs,
		},
		Trigger: TriggerConfig{
			Mode:     envOrDefault("MUDRA_MODE", "manual"),
			Debounce: time.Duration(envOrDefaultInt("MUDRA_DEBOUNCE_MS", 2500)) * time.Millisecond,
		},
		Translation: TranslationConfig{
			APIKey:      firstNonEmpty(os.Getenv("MUDRA_GEMINI_API_KEY"), os.Getenv("GEMINI_API_KEY")),
			BaseURL:     envOrDefault("MUDRA_GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			Model:       envOrDefault("MUDRA_GEMINI_MODEL", "gemini-2.0-flash"),
			PromptDelay: envOrDefaultDuration("MUDRA_CREDENTIAL_PROMPT_DELAY", 3*time.Second),
		},
		Speech: SpeechConfig{
			URL:     envOrDefault("MUDRA_TTS_URL", "http://localhost:8000"),
			Speaker: strings.TrimSpace(os.Getenv("MUDRA_TTS_SPEAKER")),
		},
		Archive: ArchiveConfig{
			Endpoint:  strings.TrimSpace(os.Getenv("MUDRA_MINIO_ENDPOINT")),
			AccessKey: strings.TrimSpace(os.Getenv("MUDRA_MINIO_ACCESS_KEY")),
			SecretKey: strings.TrimSpace(os.Getenv("MUDRA_MINIO_SECRET_KEY")),
			Bucket:    envOrDefault("MUDRA_MINIO_BUCKET", "mudra-clips"),
			Region:    envOrDefault("MUDRA_MINIO_REGION", "us-east-1"),
			Secure:    envOrDefaultBool("MUDRA_MINIO_SECURE", false),
		},
		Playback:    envOrDefaultBool("MUDRA_PLAYBACK", true),
		Notify:      envOrDefaultBool("MUDRA_NOTIFY", true),
		CORSOrigins: splitList(os.Getenv("MUDRA_CORS_ORIGINS")),
	}

	if cfg.Trigger.Debounce <= 0 {
		cfg.Trigger.Debounce = 2500 * time.Millisecond
	}
	if cfg.Camera.MotionThreshold <= 0 {
		cfg.Camera.MotionThreshold = 1.0
	}
	if cfg.Translation.PromptDelay < 0 {
		cfg.Translation.PromptDelay = 3 * time.Second
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// envOrDefaultDuration accepts Go durations ("3s") or bare milliseconds.
func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
