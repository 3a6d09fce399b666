// Package credential resolves the translation API key and asks for it when
// it is missing.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/store"
)

// EnvKeys are checked in order before the persisted key.
var EnvKeys = []string{"MUDRA_GEMINI_API_KEY", "GEMINI_API_KEY"}

// DefaultPromptDelay is how long after startup a missing key is asked for.
const DefaultPromptDelay = 3 * time.Second

// Source says where the active key came from.
type Source string

const (
	SourceNone  Source = "none"
	SourceEnv   Source = "env"
	SourceStore Source = "store"
)

// ErrEmptyKey is returned when setting a blank key.
var ErrEmptyKey = errors.New("api key is empty")

// Settings persists the key. store.SettingsRepository satisfies it.
type Settings interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Prompter asks the user for a key. It returns an error when the user
// dismisses the prompt.
type Prompter interface {
	Prompt(ctx context.Context) (string, error)
}

// Manager owns the active key and pushes every change to apply.
type Manager struct {
	settings Settings
	apply    func(key string)
	getenv   func(string) string

	mu        sync.Mutex
	key       string
	source    Source
	prompting bool
}

// NewManager creates a Manager. apply is called with the active key after
// Load and every change.
func NewManager(settings Settings, apply func(key string)) *Manager {
	if apply == nil {
		apply = func(string) {}
	}
	return &Manager{
		settings: settings,
		apply:    apply,
		getenv:   os.Getenv,
		source:   SourceNone,
	}
}

// Load resolves the key: environment first, then the persisted value.
func (m *Manager) Load() (Source, error) {
	key, source, err := m.resolve()
	if err != nil {
		return SourceNone, err
	}

	m.mu.Lock()
	m.key, m.source = key, source
	m.mu.Unlock()

	m.apply(key)
	if source != SourceNone {
		log.Printf("Translation API key loaded from %s", source)
	}
	return source, nil
}

func (m *Manager) resolve() (string, Source, error) {
	for _, name := range EnvKeys {
		if v := strings.TrimSpace(m.getenv(name)); v != "" {
			return v, SourceEnv, nil
		}
	}

	v, err := m.settings.Get(store.SettingAPIKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", SourceNone, nil
		}
		return "", SourceNone, fmt.Errorf("read api key: %w", err)
	}
	if v = strings.TrimSpace(v); v != "" {
		return v, SourceStore, nil
	}
	return "", SourceNone, nil
}

// Set persists key and makes it active at once.
func (m *Manager) Set(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	if err := m.settings.Set(store.SettingAPIKey, key); err != nil {
		return fmt.Errorf("save api key: %w", err)
	}

	m.mu.Lock()
	m.key, m.source = key, SourceStore
	m.mu.Unlock()

	m.apply(key)
	return nil
}

// Clear forgets the persisted key. An environment key, if any, becomes
// active again.
func (m *Manager) Clear() error {
	if err := m.settings.Delete(store.SettingAPIKey); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete api key: %w", err)
	}
	_, err := m.Load()
	return err
}

// Present reports whether a key is active.
func (m *Manager) Present() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key != ""
}

// Source reports where the active key came from.
func (m *Manager) Source() Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source
}

// SchedulePrompt asks for a key after delay if none is active by then. It
// never blocks the caller. The notice is always published; prompter may be
// nil. Cancelling ctx abandons the prompt.
func (m *Manager) SchedulePrompt(ctx context.Context, delay time.Duration, sink events.Sink, prompter Prompter) {
	if delay < 0 {
		delay = 0
	}
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		m.Prompt(ctx, sink, prompter)
	}()
}

// Prompt publishes a credential_required notice and, with a prompter, asks
// for the key. It does nothing while a key is active or another prompt is
// open.
func (m *Manager) Prompt(ctx context.Context, sink events.Sink, prompter Prompter) {
	m.prompt(ctx, sink, prompter, false)
}

// PromptRejected asks for a new key after the service refused the active
// one. Unlike Prompt it asks even though a key is present.
func (m *Manager) PromptRejected(ctx context.Context, sink events.Sink, prompter Prompter) {
	m.prompt(ctx, sink, prompter, true)
}

func (m *Manager) prompt(ctx context.Context, sink events.Sink, prompter Prompter, rejected bool) {
	m.mu.Lock()
	if m.prompting || (!rejected && m.key != "") {
		m.mu.Unlock()
		return
	}
	m.prompting = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.prompting = false
		m.mu.Unlock()
	}()

	if sink != nil {
		msg := "Enter your Gemini API key to enable translation."
		if rejected {
			msg = "The Gemini API key was rejected. Enter a valid key."
		}
		sink.Publish(events.Notice(events.CodeCredentialRequired, msg))
	}
	if prompter == nil {
		return
	}

	key, err := prompter.Prompt(ctx)
	if err != nil {
		log.Printf("API key prompt dismissed: %v", err)
		return
	}
	if err := m.Set(key); err != nil {
		log.Printf("Error saving API key: %v", err)
	}
}
