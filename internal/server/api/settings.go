package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/credential"
	"github.com/ayusman/mudra/internal/speech"
)

// speakersTimeout bounds the TTS discovery call made on behalf of the UI.
const speakersTimeout = 5 * time.Second

// Credentials is the persisted translation API key.
type Credentials interface {
	Present() bool
	Source() credential.Source
	Set(key string) error
	Clear() error
}

// Voices is the speaker choice and the TTS server's offer.
type Voices interface {
	Speaker() string
	SetSpeaker(name string) error
	Speakers(ctx context.Context) (speech.SpeakerList, error)
}

// SettingsHandler serves the credential and speaker settings.
type SettingsHandler struct {
	creds  Credentials
	voices Voices
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(creds Credentials, voices Voices) *SettingsHandler {
	return &SettingsHandler{creds: creds, voices: voices}
}

// Register adds the settings routes to r.
func (h *SettingsHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/settings/credential", h.getCredential).Methods(http.MethodGet)
	r.HandleFunc("/api/settings/credential", h.setCredential).Methods(http.MethodPut)
	r.HandleFunc("/api/settings/credential", h.clearCredential).Methods(http.MethodDelete)
	r.HandleFunc("/api/speakers", h.speakers).Methods(http.MethodGet)
	r.HandleFunc("/api/settings/speaker", h.setSpeaker).Methods(http.MethodPut)
}

type credentialResponse struct {
	Present bool              `json:"present"`
	Source  credential.Source `json:"source"`
}

type credentialRequest struct {
	APIKey string `json:"api_key"`
}

type speakersResponse struct {
	Speakers []string `json:"speakers"`
	Default  string   `json:"default"`
	Selected string   `json:"selected,omitempty"`
}

type speakerRequest struct {
	Speaker string `json:"speaker"`
}

func (h *SettingsHandler) credentialState() credentialResponse {
	return credentialResponse{Present: h.creds.Present(), Source: h.creds.Source()}
}

// getCredential handles GET /api/settings/credential. The key itself is
// never returned.
func (h *SettingsHandler) getCredential(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.credentialState())
}

// setCredential handles PUT /api/settings/credential.
func (h *SettingsHandler) setCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if err := h.creds.Set(req.APIKey); err != nil {
		if errors.Is(err, credential.ErrEmptyKey) {
			writeError(w, http.StatusBadRequest, "API key is required")
			return
		}
		log.Printf("Error saving API key: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to save API key")
		return
	}
	writeJSON(w, http.StatusOK, h.credentialState())
}

// clearCredential handles DELETE /api/settings/credential. An environment
// key, if any, becomes active again.
func (h *SettingsHandler) clearCredential(w http.ResponseWriter, r *http.Request) {
	if err := h.creds.Clear(); err != nil {
		log.Printf("Error clearing API key: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to clear API key")
		return
	}
	writeJSON(w, http.StatusOK, h.credentialState())
}

// speakers handles GET /api/speakers.
func (h *SettingsHandler) speakers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), speakersTimeout)
	defer cancel()

	list, err := h.voices.Speakers(ctx)
	if err != nil {
		if errors.Is(err, app.ErrNoSpeechService) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		log.Printf("Speaker discovery failed: %v", err)
		writeError(w, http.StatusBadGateway, "Speech service unavailable")
		return
	}

	speakers := list.Speakers
	if speakers == nil {
		speakers = []string{}
	}
	writeJSON(w, http.StatusOK, speakersResponse{
		Speakers: speakers,
		Default:  list.Default,
		Selected: h.voices.Speaker(),
	})
}

// setSpeaker handles PUT /api/settings/speaker. An empty speaker restores
// the default.
func (h *SettingsHandler) setSpeaker(w http.ResponseWriter, r *http.Request) {
	var req speakerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if err := h.voices.SetSpeaker(req.Speaker); err != nil {
		log.Printf("Error saving speaker: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to save speaker")
		return
	}
	writeJSON(w, http.StatusOK, speakerRequest{Speaker: h.voices.Speaker()})
}
