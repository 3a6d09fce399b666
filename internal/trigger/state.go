// Package trigger decides when recording starts and stops, from the user's mode and
// clicks and from the per-frame hand presence signal.
package trigger

import (
	"fmt"
	"strings"
)

// State is the recording trigger state.
type State string

const (
	StateIdle            State = "idle"
	StateWaitingForHands State = "waiting_for_hands"
	StateRecording       State = "recording"
	StateProcessing      State = "processing"
)

// Mode selects who drives recording.
type Mode string

const (
	// ModeManual: the user starts and stops recording.
	ModeManual Mode = "manual"
	// ModeAutomatic: hand presence starts and stops recording.
	ModeAutomatic Mode = "automatic"
)

// ParseMode accepts "manual" or "automatic" (also "auto"), case-insensitive.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manual":
		return ModeManual, nil
	case "automatic", "auto":
		return ModeAutomatic, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Reason explains a state transition.
type Reason string

const (
	ReasonStartup         Reason = "startup"
	ReasonManualStart     Reason = "manual_start"
	ReasonWaitingForHands Reason = "waiting_for_hands"
	ReasonHandsAppeared   Reason = "hands_appeared"
	ReasonHandsGone       Reason = "hands_gone"
	ReasonManualStop      Reason = "manual_stop"
	ReasonCancelled       Reason = "cancelled"
	ReasonModeChanged     Reason = "mode_changed"
	ReasonStartFailed     Reason = "start_failed"
	ReasonEmptyClip       Reason = "empty_clip"
	ReasonPipelineDone    Reason = "pipeline_done"
	ReasonShutdown        Reason = "shutdown"
)

// Snapshot is a consistent view of the machine.
type Snapshot struct {
	State    State `json:"state"`
	Mode     Mode  `json:"mode"`
	Hands    bool  `json:"hands"`
	InFlight int   `json:"in_flight"`
}
