// Package events carries state, notice, and result updates from the backend to the
// presentation layer (browser UI, tray, desktop notifications).
package events

import "time"

// Type identifies the kind of event.
type Type string

const (
	TypeState  Type = "state"
	TypeHands  Type = "hands"
	TypeNotice Type = "notice"
	TypeResult Type = "result"
)

// Code identifies a user-visible, non-fatal condition.
type Code string

const (
	CodeCameraUnavailable   Code = "camera_unavailable"
	CodeDetectorUnavailable Code = "detector_unavailable"
	CodeRecorderStartFailed Code = "recorder_start_failed"
	CodeRecorderStopFailed  Code = "recorder_stop_failed"
	CodeTranslationFailed   Code = "translation_failed"
	CodeCredentialRequired  Code = "credential_required"
	CodeSynthesisFailed     Code = "synthesis_failed"
	CodePlaybackFailed      Code = "playback_failed"
	CodeArchiveFailed       Code = "archive_failed"
)

// Result is a finished translation as shown on the transcript card.
type Result struct {
	ID             string  `json:"id"`
	Text           string  `json:"text"`
	Speaker        string  `json:"speaker,omitempty"`
	GenerationTime float64 `json:"generation_time,omitempty"`
	AudioURL       string  `json:"audio_url,omitempty"`
}

// Event is a single update pushed to the presentation layer.
type Event struct {
	Type    Type      `json:"type"`
	State   string    `json:"state,omitempty"`
	Mode    string    `json:"mode,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Hands   bool      `json:"hands"`
	Code    Code      `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
	Result  *Result   `json:"result,omitempty"`
	Time    time.Time `json:"time"`
}

// Sink receives events. Implementations must not block for long.
type Sink interface {
	Publish(e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e Event)

// Publish calls f(e).
func (f SinkFunc) Publish(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Multi fans events out to several sinks in order.
type Multi []Sink

// Publish forwards e to every non-nil sink.
func (m Multi) Publish(e Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(e)
		}
	}
}

// Notice builds a notice event.
func Notice(code Code, message string) Event {
	return Event{Type: TypeNotice, Code: code, Message: message, Time: time.Now()}
}

// ResultEvent builds a result event.
func ResultEvent(r Result) Event {
	return Event{Type: TypeResult, Result: &r, Time: time.Now()}
}
