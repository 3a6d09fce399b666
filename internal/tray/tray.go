// Package tray provides the system tray interface for mudra.
package tray

import (
	"log"
	"sync"

	"github.com/getlantern/systray"
	"github.com/pkg/browser"

	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/trigger"
)

// maxLabel is the longest translation shown in the menu, in runes.
const maxLabel = 40

// Tray is the system tray application. It is also an events.Sink so it
// follows the session state and the latest translation.
type Tray struct {
	url        string
	onAutoMode func(automatic bool) error
	onRetry    func()
	onQuit     func()

	mu        sync.RWMutex
	automatic bool
	state     string
	last      string
	ready     bool

	// Menu items stored for later updates
	menuAuto  *systray.MenuItem
	menuState *systray.MenuItem
	menuLast  *systray.MenuItem
}

// New creates a Tray whose "Open" item points at url.
func New(url string) *Tray {
	return &Tray{url: url, state: string(trigger.StateIdle)}
}

// OnAutoMode sets the callback for the automatic mode toggle. A returned
// error leaves the mode unchanged.
func (t *Tray) OnAutoMode(fn func(automatic bool) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onAutoMode = fn
}

// OnRetry sets the callback for the camera retry item.
func (t *Tray) OnRetry(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRetry = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit stops a running tray.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Mudra")
	systray.SetTooltip("Mudra sign language translator")

	t.mu.Lock()
	t.menuState = systray.AddMenuItem(stateTitle(t.state), "Recording state")
	t.menuState.Disable()
	t.menuAuto = systray.AddMenuItemCheckbox("Automatic recording", "Record while hands are in view", t.automatic)
	systray.AddSeparator()

	t.menuLast = systray.AddMenuItem(lastTitle(t.last), "Last translation")
	t.menuLast.Disable()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open Mudra...", "Open the translator in a browser")
	menuRetry := systray.AddMenuItem("Retry Camera", "Try to open the camera again")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Mudra")
	t.ready = true
	t.mu.Unlock()

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuAuto.ClickedCh:
				t.handleAutoMode()
			case <-menuOpen.ClickedCh:
				t.OpenUI()
			case <-menuRetry.ClickedCh:
				t.handleRetry()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleAutoMode flips automatic recording.
func (t *Tray) handleAutoMode() {
	t.mu.RLock()
	want := !t.automatic
	callback := t.onAutoMode
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		if err := callback(want); err != nil {
			log.Printf("Mode change refused: %v", err)
			t.refresh()
			return
		}
	}

	t.mu.Lock()
	t.automatic = want
	t.mu.Unlock()
	t.refresh()
}

func (t *Tray) handleRetry() {
	t.mu.RLock()
	callback := t.onRetry
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// OpenUI opens the web UI in the default browser.
func (t *Tray) OpenUI() {
	if err := browser.OpenURL(t.url); err != nil {
		log.Printf("Error opening browser: %v", err)
	}
}

// Publish follows state changes and results.
func (t *Tray) Publish(e events.Event) {
	t.mu.Lock()
	switch e.Type {
	case events.TypeState:
		t.state = e.State
		if e.Mode != "" {
			t.automatic = e.Mode == string(trigger.ModeAutomatic)
		}
	case events.TypeResult:
		if e.Result != nil {
			t.last = e.Result.Text
		}
	default:
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.refresh()
}

// refresh pushes the current fields to the menu once it exists.
func (t *Tray) refresh() {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.ready {
		return
	}
	t.menuState.SetTitle(stateTitle(t.state))
	t.menuLast.SetTitle(lastTitle(t.last))
	if t.automatic {
		t.menuAuto.Check()
	} else {
		t.menuAuto.Uncheck()
	}
}

// Automatic reports whether automatic recording is on.
func (t *Tray) Automatic() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.automatic
}

// Last returns the most recent translation text.
func (t *Tray) Last() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

func stateTitle(state string) string {
	switch trigger.State(state) {
	case trigger.StateWaitingForHands:
		return "○ Waiting for hands"
	case trigger.StateRecording:
		return "● Recording"
	case trigger.StateProcessing:
		return "◌ Translating"
	default:
		return "○ Idle"
	}
}

func lastTitle(text string) string {
	if text == "" {
		return "Last: none"
	}
	runes := []rune(text)
	if len(runes) > maxLabel {
		text = string(runes[:maxLabel-1]) + "…"
	}
	return "Last: " + text
}
