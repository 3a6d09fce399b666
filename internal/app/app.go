// Package app wires the camera stream, hand detection, the recording trigger,
// and the translation pipeline into one running session.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/clip"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/pipeline"
	"github.com/ayusman/mudra/internal/playback"
	"github.com/ayusman/mudra/internal/recorder"
	"github.com/ayusman/mudra/internal/speech"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/translate"
	"github.com/ayusman/mudra/internal/trigger"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("app closed")
	// ErrNoSpeechService is returned when no TTS client is configured.
	ErrNoSpeechService = errors.New("speech service not configured")
	// ErrDetectorUnavailable is returned by controls that need hand
	// detection while no real detector is running.
	ErrDetectorUnavailable = errors.New("hand detection unavailable")
)

// newDetector starts the MediaPipe helper. Tests replace it.
var newDetector = func() (detector.Detector, error) {
	return detector.NewMediaPipeDetector(detector.DefaultConfig())
}

// SpeechService is the TTS server as the app uses it.
type SpeechService interface {
	pipeline.Synthesizer
	Speakers(ctx context.Context) (speech.SpeakerList, error)
}

// Config holds configuration options for the application.
type Config struct {
	Store        *store.Store
	CameraID     int
	MotionThresh float64
	// Camera and Detector override the device camera and MediaPipe.
	Camera   capture.Camera
	Detector detector.Detector

	Codecs   []clip.Codec
	ClipDir  string
	Mode     trigger.Mode
	Debounce time.Duration

	Translator pipeline.Translator
	Speech     SpeechService
	Player     playback.Player
	Archive    pipeline.Archiver
	// DefaultSpeaker is used until the user picks one.
	DefaultSpeaker string

	// Sink receives state, hands, notice, and result events.
	Sink events.Sink
	// OnCredentialError runs when translation fails for lack of a key, or
	// with rejected set when the service refused the key.
	OnCredentialError func(rejected bool)
}

// App is one signing session: a single camera owner feeding detection,
// recording, and translation.
type App struct {
	config   Config
	sink     events.Sink
	stream   *capture.Stream
	motion   *capture.MotionDetector
	detector detector.Detector
	poller   *detector.Poller
	recorder *recorder.ClipRecorder
	pipeline *pipeline.Pipeline
	machine  *trigger.Machine
	// detecting is false when running on the fallback detector, which
	// never reports hands.
	detecting bool

	mu     sync.Mutex
	closed bool
}

// New creates a new App. The camera is not opened until Start.
func New(config Config) *App {
	motionThreshold := config.MotionThresh
	if motionThreshold <= 0 {
		motionThreshold = 1.0 // Default threshold: 1% pixel change
	}

	sink := config.Sink
	if sink == nil {
		sink = events.Discard
	}

	cam := config.Camera
	if cam == nil {
		cam = capture.NewCamera(config.CameraID)
	}

	a := &App{
		config: config,
		sink:   sink,
		stream: capture.NewStream(cam),
		motion: capture.NewMotionDetector(motionThreshold),
	}

	// Try MediaPipe first, fall back to mock detector
	a.detecting = true
	if config.Detector != nil {
		a.detector = config.Detector
	} else if mp, err := newDetector(); err == nil {
		a.detector = mp
		log.Println("Using MediaPipe hand detection")
	} else {
		log.Printf("MediaPipe not available (%v), using mock detector", err)
		a.detector = detector.NewMockDetector()
		a.detecting = false
	}

	mode := config.Mode
	if !a.detecting && mode == trigger.ModeAutomatic {
		log.Println("Automatic recording needs hand detection, starting in manual mode")
		mode = trigger.ModeManual
	}

	a.recorder = recorder.New(a.stream, config.Codecs, config.ClipDir)

	var synth pipeline.Synthesizer
	if config.Speech != nil {
		synth = config.Speech
	}
	var history pipeline.History
	if config.Store != nil {
		history = config.Store.Translations()
	}
	a.pipeline = pipeline.New(pipeline.Config{
		Translator:  config.Translator,
		Synthesizer: synth,
		Player:      config.Player,
		Archive:     config.Archive,
		History:     history,
		Sink:        sink,
		Speaker:     a.Speaker,
		Mode:        func() string { return string(a.machine.Mode()) },
	})

	a.machine = trigger.New(a.recorder, trigger.ClipHandlerFunc(a.handleClip), sink, trigger.Config{
		Mode:     mode,
		Debounce: config.Debounce,
	})

	a.poller = detector.NewPoller(a.stream, a.detector, capture.NewActivity(a.motion), a.machine.Observe)

	return a
}

func (a *App) handleClip(ctx context.Context, c clip.Clip) error {
	err := a.pipeline.HandleClip(ctx, c)
	if a.config.OnCredentialError != nil {
		switch {
		case errors.Is(err, translate.ErrMissingCredential):
			a.config.OnCredentialError(false)
		case errors.Is(err, translate.ErrInvalidCredential):
			a.config.OnCredentialError(true)
		}
	}
	return err
}

// Start opens the camera and begins hand detection. If the camera cannot be
// opened a camera_unavailable notice is published and the session stays
// Idle; Start may be called again to retry.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.stream.IsOpen() {
		return nil
	}

	if err := a.stream.Open(); err != nil {
		log.Printf("Camera unavailable: %v", err)
		a.sink.Publish(events.Notice(events.CodeCameraUnavailable, "Camera unavailable: "+err.Error()))
		return err
	}
	a.poller.Start()

	if !a.detecting {
		a.sink.Publish(events.Notice(events.CodeDetectorUnavailable,
			"Hand detection is unavailable. Install the MediaPipe helper to record."))
	}

	log.Println("Detection pipeline started")
	return nil
}

// Retry re-attempts camera acquisition after a failure.
func (a *App) Retry() error {
	return a.Start()
}

// Close tears the session down in dependency order: detection stops, the
// trigger discards any open recording and waits for clips in flight, then the
// camera is released.
func (a *App) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	a.poller.Stop()
	a.machine.Close()

	if err := a.stream.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}

	a.motion.Close()

	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			log.Printf("Error closing detector: %v", err)
		}
	}

	log.Println("Detection pipeline stopped")
}

// Record is the manual record control.
func (a *App) Record() error {
	if !a.stream.IsOpen() {
		return capture.ErrCameraUnavailable
	}
	if !a.detecting {
		return ErrDetectorUnavailable
	}
	return a.machine.Record()
}

// Stop is the manual stop control; it also cancels waiting for hands.
func (a *App) Stop() error {
	return a.machine.Stop()
}

// SetMode switches between manual and automatic recording. Automatic mode
// is refused without hand detection.
func (a *App) SetMode(mode trigger.Mode) error {
	if mode == trigger.ModeAutomatic && !a.detecting {
		return ErrDetectorUnavailable
	}
	return a.machine.SetMode(mode)
}

// Status is the session as reported to the UI.
type Status struct {
	trigger.Snapshot
	Camera   bool `json:"camera"`
	Detector bool `json:"detector"`
}

// Status returns the trigger snapshot with camera and detector availability.
func (a *App) Status() Status {
	return Status{Snapshot: a.machine.Snapshot(), Camera: a.stream.IsOpen(), Detector: a.detecting}
}

// Stream returns the shared camera stream.
func (a *App) Stream() *capture.Stream {
	return a.stream
}

// Detector returns the hand detector.
func (a *App) Detector() detector.Detector {
	return a.detector
}

// Speaker returns the persisted speaker choice, or the configured default.
func (a *App) Speaker() string {
	if a.config.Store != nil {
		name, err := a.config.Store.Settings().Get(store.SettingSpeaker)
		if err == nil && name != "" {
			return name
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Printf("Error reading speaker: %v", err)
		}
	}
	return a.config.DefaultSpeaker
}

// SetSpeaker persists the speaker used for future synthesis.
func (a *App) SetSpeaker(name string) error {
	name = strings.TrimSpace(name)
	if a.config.Store == nil {
		return errors.New("no store configured")
	}
	if name == "" {
		err := a.config.Store.Settings().Delete(store.SettingSpeaker)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := a.config.Store.Settings().Set(store.SettingSpeaker, name); err != nil {
		return fmt.Errorf("save speaker: %w", err)
	}
	return nil
}

// Speakers lists the voices the TTS server offers.
func (a *App) Speakers(ctx context.Context) (speech.SpeakerList, error) {
	if a.config.Speech == nil {
		return speech.SpeakerList{}, ErrNoSpeechService
	}
	return a.config.Speech.Speakers(ctx)
}
