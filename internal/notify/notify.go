// Package notify shows desktop notifications for notices and results.
package notify

import (
	"log"

	"github.com/gen2brain/beeep"

	"github.com/ayusman/mudra/internal/events"
)

const appName = "mudra"

// maxMessage trims long translations in the notification body.
const maxMessage = 100

var titles = map[events.Code]string{
	events.CodeCameraUnavailable:   "Camera unavailable",
	events.CodeRecorderStartFailed: "Recording failed",
	events.CodeRecorderStopFailed:  "Recording failed",
	events.CodeTranslationFailed:   "Translation failed",
	events.CodeCredentialRequired:  "API key required",
	events.CodeSynthesisFailed:     "Speech unavailable",
	events.CodePlaybackFailed:      "Playback failed",
	events.CodeArchiveFailed:       "Archive failed",
}

// Desktop is an events.Sink that raises notifications. Delivery happens on
// its own goroutine so publishers never wait on the desktop.
type Desktop struct {
	enabled bool
	notify  func(title, message string) error
}

// NewDesktop creates a Desktop sink.
func NewDesktop(enabled bool) *Desktop {
	return &Desktop{
		enabled: enabled,
		notify: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

// Publish implements events.Sink.
func (d *Desktop) Publish(e events.Event) {
	if !d.enabled {
		return
	}

	var title, message string
	switch e.Type {
	case events.TypeNotice:
		title = titles[e.Code]
		if title == "" {
			title = "Notice"
		}
		message = e.Message
	case events.TypeResult:
		if e.Result == nil {
			return
		}
		title = "Translation"
		message = e.Result.Text
	default:
		return
	}

	if r := []rune(message); len(r) > maxMessage {
		message = string(r[:maxMessage]) + "..."
	}

	go func() {
		if err := d.notify(appName+": "+title, message); err != nil {
			log.Printf("Error showing notification: %v", err)
		}
	}()
}
