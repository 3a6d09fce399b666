package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/archive"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/credential"
	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/notify"
	"github.com/ayusman/mudra/internal/pipeline"
	"github.com/ayusman/mudra/internal/playback"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/speech"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/translate"
	"github.com/ayusman/mudra/internal/tray"
	"github.com/ayusman/mudra/internal/trigger"
)

func main() {
	fmt.Println("Mudra - Sign Language to Speech")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	flag.IntVar(&cfg.Camera.ID, "camera", cfg.Camera.ID, "camera device ID")
	flag.BoolVar(&cfg.Headless, "headless", cfg.Headless, "run without tray, dialogs, or notifications")
	flag.StringVar(&cfg.WebDir, "web", cfg.WebDir, "directory with the web UI")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flag.StringVar(&cfg.Trigger.Mode, "mode", cfg.Trigger.Mode, "initial recording mode (manual or automatic)")
	flag.Parse()

	mode, err := trigger.ParseMode(cfg.Trigger.Mode)
	if err != nil {
		log.Fatalf("Invalid mode: %v", err)
	}

	// Initialize the store
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	st, err := store.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Presentation sinks
	hub := events.NewHub()
	hub.AllowOrigins(cfg.CORSOrigins)
	sinks := events.Multi{hub, notify.NewDesktop(cfg.Notify && !cfg.Headless)}
	var t *tray.Tray
	if !cfg.Headless {
		t = tray.New(browserURL(cfg.Addr))
		sinks = append(sinks, t)
	}

	// Translation credential: environment first, then the store
	translator := translate.New(translate.Config{
		BaseURL: cfg.Translation.BaseURL,
		Model:   cfg.Translation.Model,
	})
	creds := credential.NewManager(st.Settings(), func(key string) {
		translator.SetAPIKey(key)
	})
	if _, err := creds.Load(); err != nil {
		log.Printf("Error loading API key: %v", err)
	}
	var prompter credential.Prompter
	if !cfg.Headless {
		prompter = credential.ZenityPrompter{}
	}

	var player playback.Player = playback.NopPlayer{}
	if cfg.Playback {
		if p, err := playback.NewPortAudioPlayer(); err == nil {
			player = p
		} else {
			log.Printf("Audio output not available (%v), speech will not play", err)
		}
	}
	defer player.Close()

	var archiver pipeline.Archiver
	if cfg.Archive.Enabled() {
		if arc, err := newArchive(ctx, cfg.Archive); err == nil {
			archiver = arc
			log.Printf("Archiving clips to bucket %s", arc.Bucket())
		} else {
			log.Printf("Clip archive disabled: %v", err)
		}
	}

	a := app.New(app.Config{
		Store:          st,
		CameraID:       cfg.Camera.ID,
		MotionThresh:   cfg.Camera.MotionThreshold,
		Codecs:         cfg.Camera.Codecs,
		ClipDir:        filepath.Join(cfg.DataDir, "clips"),
		Mode:           mode,
		Debounce:       cfg.Trigger.Debounce,
		Translator:     translator,
		Speech:         speech.New(cfg.Speech.URL, 0),
		Player:         player,
		Archive:        archiver,
		DefaultSpeaker: cfg.Speech.Speaker,
		Sink:           sinks,
		OnCredentialError: func(rejected bool) {
			if rejected {
				go creds.PromptRejected(ctx, nil, prompter)
			} else {
				go creds.Prompt(ctx, nil, prompter)
			}
		},
	})

	if err := a.Start(); err != nil {
		log.Printf("Starting without camera: %v", err)
	}
	if !creds.Present() {
		creds.SchedulePrompt(ctx, cfg.Translation.PromptDelay, sinks, prompter)
	}

	// Find web directory
	webDir := cfg.WebDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		fmt.Printf("Serving static files from: %s\n", webDir)
	}

	srv := server.New(server.Config{
		StaticDir:   webDir,
		Store:       st,
		Session:     a,
		Credentials: creds,
		Voices:      a,
		Frames:      a.Stream(),
		Events:      hub,
		CORSOrigins: cfg.CORSOrigins,
	})

	go func() {
		fmt.Printf("Starting server on %s\n", cfg.Addr)
		if err := srv.ListenAndServe(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Server failed: %v", err)
			stop()
		}
	}()

	if t != nil {
		t.OnAutoMode(func(automatic bool) error {
			if automatic {
				return a.SetMode(trigger.ModeAutomatic)
			}
			return a.SetMode(trigger.ModeManual)
		})
		t.OnRetry(func() {
			if err := a.Retry(); err != nil {
				log.Printf("Camera retry failed: %v", err)
			}
		})
		t.OnQuit(stop)
		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		t.Run()
	} else {
		<-ctx.Done()
	}

	log.Println("Shutting down...")
	// Release the camera first; open previews end when the server cancels
	// its request contexts.
	a.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
}

func newArchive(ctx context.Context, cfg config.ArchiveConfig) (*archive.Archive, error) {
	a, err := archive.New(archive.Config{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		Secure:    cfg.Secure,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// browserURL turns a listen address into a URL a local browser can open.
func browserURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.mudra/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	// Check relative paths from current working directory
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	// Check home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".mudra", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
