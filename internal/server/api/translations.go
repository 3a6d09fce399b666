package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/ayusman/mudra/internal/pipeline"
	"github.com/ayusman/mudra/internal/store"
)

// defaultHistoryLimit caps GET /api/translations without ?limit.
const defaultHistoryLimit = 50

// TranslationHandler serves translation history.
type TranslationHandler struct {
	store *store.Store
}

// NewTranslationHandler creates a new TranslationHandler with the given store.
func NewTranslationHandler(s *store.Store) *TranslationHandler {
	return &TranslationHandler{store: s}
}

// Register adds the history routes to r.
func (h *TranslationHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/translations", h.list).Methods(http.MethodGet)
	r.HandleFunc("/api/translations/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/api/translations/{id}", h.delete).Methods(http.MethodDelete)
	r.HandleFunc("/api/translations/{id}/audio", h.audio).Methods(http.MethodGet)
}

type translationResponse struct {
	ID             string  `json:"id"`
	Text           string  `json:"text"`
	Mode           string  `json:"mode"`
	ClipMime       string  `json:"clip_mime"`
	ClipBytes      int     `json:"clip_bytes"`
	ClipObject     string  `json:"clip_object,omitempty"`
	Speaker        string  `json:"speaker,omitempty"`
	GenerationTime float64 `json:"generation_time,omitempty"`
	AudioURL       string  `json:"audio_url,omitempty"`
	SpeechError    string  `json:"speech_error,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

type listTranslationsResponse struct {
	Translations []translationResponse `json:"translations"`
}

func toTranslationResponse(t *store.Translation) translationResponse {
	resp := translationResponse{
		ID:             t.ID,
		Text:           t.Text,
		Mode:           t.Mode,
		ClipMime:       t.ClipMime,
		ClipBytes:      t.ClipBytes,
		ClipObject:     t.ClipObject,
		Speaker:        t.Speaker,
		GenerationTime: t.GenerationTime,
		SpeechError:    t.SpeechError,
		CreatedAt:      t.CreatedAt.Format(time.RFC3339),
	}
	if t.HasAudio {
		resp.AudioURL = pipeline.AudioURL(t.ID)
	}
	return resp
}

// list handles GET /api/translations, newest first.
func (h *TranslationHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	translations, err := h.store.Translations().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list translations")
		return
	}

	response := listTranslationsResponse{
		Translations: make([]translationResponse, 0, len(translations)),
	}
	for _, t := range translations {
		response.Translations = append(response.Translations, toTranslationResponse(t))
	}
	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/translations/{id}.
func (h *TranslationHandler) get(w http.ResponseWriter, r *http.Request) {
	t, err := h.store.Translations().GetByID(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Translation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get translation")
		return
	}
	writeJSON(w, http.StatusOK, toTranslationResponse(t))
}

// audio handles GET /api/translations/{id}/audio with the stored speech.
func (h *TranslationHandler) audio(w http.ResponseWriter, r *http.Request) {
	audio, contentType, err := h.store.Translations().Audio(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Audio not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get audio")
		return
	}

	if contentType == "" {
		contentType = "audio/wav"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}

// delete handles DELETE /api/translations/{id}.
func (h *TranslationHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Translations().Delete(mux.Vars(r)["id"]); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Translation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete translation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
