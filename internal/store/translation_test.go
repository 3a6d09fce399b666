package store

import (
	"errors"
	"testing"
	"time"
)

func TestTranslationRepository_CreateAndGet(t *testing.T) {
	repo := newTestStore(t).Translations()

	tr := &Translation{
		ID:        "t-1",
		Text:      "Good morning",
		Mode:      "automatic",
		ClipMime:  "video/webm",
		ClipBytes: 2048,
	}
	if err := repo.Create(tr); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if tr.CreatedAt.IsZero() {
		t.Error("Create() should stamp CreatedAt")
	}

	got, err := repo.GetByID("t-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Text != "Good morning" || got.Mode != "automatic" || got.ClipBytes != 2048 {
		t.Errorf("GetByID() = %+v", got)
	}
	if got.HasAudio {
		t.Error("new translation should have no audio")
	}

	if _, err := repo.GetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrNotFound", err)
	}
}

func TestTranslationRepository_Speech(t *testing.T) {
	repo := newTestStore(t).Translations()
	if err := repo.Create(&Translation{ID: "t-1", Text: "Hello"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, _, err := repo.Audio("t-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Audio() before synthesis error = %v, want ErrNotFound", err)
	}

	if err := repo.SetSpeechError("t-1", "tts offline"); err != nil {
		t.Fatalf("SetSpeechError() error = %v", err)
	}
	got, _ := repo.GetByID("t-1")
	if got.SpeechError != "tts offline" {
		t.Errorf("SpeechError = %q", got.SpeechError)
	}

	if err := repo.SetSpeech("t-1", "verse", 0.8, []byte("RIFF"), "audio/wav"); err != nil {
		t.Fatalf("SetSpeech() error = %v", err)
	}
	got, _ = repo.GetByID("t-1")
	if !got.HasAudio || got.Speaker != "verse" || got.GenerationTime != 0.8 || got.SpeechError != "" {
		t.Errorf("after SetSpeech() = %+v", got)
	}

	audio, audioType, err := repo.Audio("t-1")
	if err != nil {
		t.Fatalf("Audio() error = %v", err)
	}
	if string(audio) != "RIFF" || audioType != "audio/wav" {
		t.Errorf("Audio() = %q, %q", audio, audioType)
	}

	if err := repo.SetSpeech("missing", "verse", 1, []byte("x"), "audio/wav"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetSpeech(missing) error = %v, want ErrNotFound", err)
	}
}

func TestTranslationRepository_List(t *testing.T) {
	repo := newTestStore(t).Translations()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, text := range []string{"one", "two", "three"} {
		err := repo.Create(&Translation{
			ID:        text,
			Text:      text,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Create(%s) error = %v", text, err)
		}
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"all", 0, []string{"three", "two", "one"}},
		{"limited", 2, []string{"three", "two"}},
		{"over limit", 10, []string{"three", "two", "one"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := repo.List(tt.limit)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(list) != len(tt.want) {
				t.Fatalf("len(List()) = %d, want %d", len(list), len(tt.want))
			}
			for i, tr := range list {
				if tr.Text != tt.want[i] {
					t.Errorf("List()[%d] = %q, want %q", i, tr.Text, tt.want[i])
				}
			}
		})
	}
}

func TestTranslationRepository_Delete(t *testing.T) {
	repo := newTestStore(t).Translations()
	repo.Create(&Translation{ID: "t-1", Text: "bye"})

	if err := repo.Delete("t-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete("t-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
	if err := repo.SetClipObject("t-1", "clips/x.webm"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetClipObject(deleted) error = %v, want ErrNotFound", err)
	}
}
