package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/clip"
)

var allKeys = []string{
	"MUDRA_ADDR", "MUDRA_DATA_DIR", "MUDRA_DB", "MUDRA_WEB_DIR", "MUDRA_CAMERA_ID",
	"MUDRA_MOTION_THRESHOLD", "MUDRA_CODECS", "MUDRA_MODE", "MUDRA_DEBOUNCE_MS",
	"MUDRA_GEMINI_API_KEY", "GEMINI_API_KEY", "MUDRA_GEMINI_BASE_URL", "MUDRA_GEMINI_MODEL",
	"MUDRA_CREDENTIAL_PROMPT_DELAY", "MUDRA_TTS_URL", "MUDRA_TTS_SPEAKER",
	"MUDRA_MINIO_ENDPOINT", "MUDRA_MINIO_ACCESS_KEY", "MUDRA_MINIO_SECRET_KEY",
	"MUDRA_MINIO_BUCKET", "MUDRA_MINIO_REGION", "MUDRA_MINIO_SECURE",
	"MUDRA_PLAYBACK", "MUDRA_NOTIFY", "MUDRA_CORS_ORIGINS",
}

func clearEnv(t *testing.T) string {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoadDefaults(t *testing.T) {
	home := clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Addr != "127.0.0.1:8080" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.DataDir != filepath.Join(home, ".mudra") || cfg.DBPath != filepath.Join(home, ".mudra", "mudra.db") {
		t.Errorf("DataDir = %q, DBPath = %q", cfg.DataDir, cfg.DBPath)
	}
	if cfg.Trigger.Debounce != 2500*time.Millisecond || cfg.Trigger.Mode != "manual" {
		t.Errorf("Trigger = %+v", cfg.Trigger)
	}
	if len(cfg.Camera.Codecs) != len(clip.DefaultCodecs()) {
		t.Errorf("Codecs = %v, want defaults", cfg.Camera.Codecs)
	}
	if cfg.Translation.APIKey != "" || cfg.Translation.PromptDelay != 3*time.Second {
		t.Errorf("Translation = %+v", cfg.Translation)
	}
	if cfg.Archive.Enabled() {
		t.Error("archive should be disabled without an endpoint")
	}
	if !cfg.Playback || !cfg.Notify {
		t.Error("playback and notifications should default on")
	}
	if len(cfg.CORSOrigins) != 0 {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLoadRespectsOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MUDRA_ADDR", ":9000")
	t.Setenv("MUDRA_DATA_DIR", "/var/lib/mudra")
	t.Setenv("MUDRA_CAMERA_ID", "2")
	t.Setenv("MUDRA_MOTION_THRESHOLD", "2.5")
	t.Setenv("MUDRA_CODECS", "mp4v:mp4")
	t.Setenv("MUDRA_MODE", "automatic")
	t.Setenv("MUDRA_DEBOUNCE_MS", "1000")
	t.Setenv("GEMINI_API_KEY", "fallback-key")
	t.Setenv("MUDRA_CREDENTIAL_PROMPT_DELAY", "500ms")
	t.Setenv("MUDRA_TTS_SPEAKER", "verse")
	t.Setenv("MUDRA_MINIO_ENDPOINT", "localhost:9000")
	t.Setenv("MUDRA_MINIO_SECURE", "yes")
	t.Setenv("MUDRA_PLAYBACK", "off")
	t.Setenv("MUDRA_CORS_ORIGINS", "http://localhost:5173, ,http://127.0.0.1:5173")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Addr != ":9000" || cfg.DBPath != "/var/lib/mudra/mudra.db" {
		t.Errorf("Addr = %q, DBPath = %q", cfg.Addr, cfg.DBPath)
	}
	if cfg.Camera.ID != 2 || cfg.Camera.MotionThreshold != 2.5 {
		t.Errorf("Camera = %+v", cfg.Camera)
	}
	if len(cfg.Camera.Codecs) != 1 || cfg.Camera.Codecs[0].FourCC != "mp4v" {
		t.Errorf("Codecs = %v", cfg.Camera.Codecs)
	}
	if cfg.Trigger.Mode != "automatic" || cfg.Trigger.Debounce != time.Second {
		t.Errorf("Trigger = %+v", cfg.Trigger)
	}
	if cfg.Translation.APIKey != "fallback-key" || cfg.Translation.PromptDelay != 500*time.Millisecond {
		t.Errorf("Translation = %+v", cfg.Translation)
	}
	if cfg.Speech.Speaker != "verse" {
		t.Errorf("Speaker = %q", cfg.Speech.Speaker)
	}
	if !cfg.Archive.Enabled() || !cfg.Archive.Secure || cfg.Archive.Bucket != "mudra-clips" {
		t.Errorf("Archive = %+v", cfg.Archive)
	}
	if cfg.Playback {
		t.Error("playback should be disabled")
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLoadPrefersMudraKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("MUDRA_GEMINI_API_KEY", "primary")
	t.Setenv("GEMINI_API_KEY", "secondary")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Translation.APIKey != "primary" {
		t.Errorf("APIKey = %q, want primary", cfg.Translation.APIKey)
	}
}

func TestLoadFallsBackOnBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("MUDRA_DEBOUNCE_MS", "-5")
	t.Setenv("MUDRA_MOTION_THRESHOLD", "lots")
	t.Setenv("MUDRA_CREDENTIAL_PROMPT_DELAY", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Trigger.Debounce != 2500*time.Millisecond {
		t.Errorf("Debounce = %v", cfg.Trigger.Debounce)
	}
	if cfg.Camera.MotionThreshold != 1.0 {
		t.Errorf("MotionThreshold = %v", cfg.Camera.MotionThreshold)
	}
	if cfg.Translation.PromptDelay != 3*time.Second {
		t.Errorf("PromptDelay = %v", cfg.Translation.PromptDelay)
	}
}

func TestLoadRejectsBadCodecs(t *testing.T) {
	clearEnv(t)
	t.Setenv("MUDRA_CODECS", "VP90")

	if _, err := Load(); !errors.Is(err, clip.ErrInvalidCodec) {
		t.Errorf("load error = %v, want ErrInvalidCodec", err)
	}
}
