package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/credential"
	"github.com/ayusman/mudra/internal/trigger"
)

// Session is the recording session controlled from the UI.
type Session interface {
	Record() error
	Stop() error
	SetMode(mode trigger.Mode) error
	Retry() error
	Status() app.Status
}

// SessionHandler serves session status and the record/stop/mode controls.
type SessionHandler struct {
	session Session
	creds   Credentials
	voices  Voices
}

// NewSessionHandler creates a SessionHandler. creds and voices may be nil.
func NewSessionHandler(session Session, creds Credentials, voices Voices) *SessionHandler {
	return &SessionHandler{session: session, creds: creds, voices: voices}
}

// Register adds the session routes to r.
func (h *SessionHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/status", h.status).Methods(http.MethodGet)
	r.HandleFunc("/api/record", h.record).Methods(http.MethodPost)
	r.HandleFunc("/api/stop", h.stop).Methods(http.MethodPost)
	r.HandleFunc("/api/mode", h.setMode).Methods(http.MethodPut)
	r.HandleFunc("/api/session/retry", h.retry).Methods(http.MethodPost)
}

type statusResponse struct {
	app.Status
	Credential       bool              `json:"credential"`
	CredentialSource credential.Source `json:"credential_source,omitempty"`
	Speaker          string            `json:"speaker,omitempty"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

func (h *SessionHandler) snapshot() statusResponse {
	resp := statusResponse{Status: h.session.Status()}
	if h.creds != nil {
		resp.Credential = h.creds.Present()
		resp.CredentialSource = h.creds.Source()
	}
	if h.voices != nil {
		resp.Speaker = h.voices.Speaker()
	}
	return resp
}

// status handles GET /api/status.
func (h *SessionHandler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot())
}

// record handles POST /api/record.
func (h *SessionHandler) record(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Record(); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot())
}

// stop handles POST /api/stop.
func (h *SessionHandler) stop(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Stop(); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot())
}

// setMode handles PUT /api/mode.
func (h *SessionHandler) setMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	mode, err := trigger.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Mode must be manual or automatic")
		return
	}

	if err := h.session.SetMode(mode); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot())
}

// retry handles POST /api/session/retry.
func (h *SessionHandler) retry(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Retry(); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot())
}

// writeSessionError maps control errors to status codes: conflicts with the
// current state are 409, a missing device or closed session is 503.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, trigger.ErrModeLocked),
		errors.Is(err, trigger.ErrWrongMode),
		errors.Is(err, trigger.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, capture.ErrCameraUnavailable),
		errors.Is(err, trigger.ErrClosed),
		errors.Is(err, app.ErrClosed),
		errors.Is(err, app.ErrDetectorUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Printf("Session control failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
