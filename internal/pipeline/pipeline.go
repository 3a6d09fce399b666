// Package pipeline turns a finished clip into a transcript card and speech.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/clip"
	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/playback"
	"github.com/ayusman/mudra/internal/speech"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/translate"
)

// Translator converts a clip to text.
type Translator interface {
	Translate(ctx context.Context, c clip.Clip) (string, error)
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, speaker string) (speech.Speech, error)
}

// Archiver keeps a copy of the clip.
type Archiver interface {
	Put(ctx context.Context, id string, c clip.Clip, at time.Time) (string, error)
}

// History records translations. store.TranslationRepository satisfies it.
type History interface {
	Create(t *store.Translation) error
	SetSpeech(id, speaker string, generationTime float64, audio []byte, audioType string) error
	SetSpeechError(id, message string) error
	SetClipObject(id, object string) error
}

// Config wires a Pipeline. Synthesizer, Player, Archive and History are optional.
type Config struct {
	Translator  Translator
	Synthesizer Synthesizer
	Player      playback.Player
	Archive     Archiver
	History     History
	Sink        events.Sink
	// Speaker returns the preferred voice; empty lets the server choose.
	Speaker func() string
	// Mode labels history rows with the trigger mode.
	Mode func() string
}

// Pipeline runs translate, persist, publish, synthesize, play and archive
// for one clip. Nothing is retried.
type Pipeline struct {
	cfg   Config
	newID func() string
	now   func() time.Time
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Sink == nil {
		cfg.Sink = events.Discard
	}
	if cfg.Player == nil {
		cfg.Player = playback.NopPlayer{}
	}
	if cfg.Speaker == nil {
		cfg.Speaker = func() string { return "" }
	}
	if cfg.Mode == nil {
		cfg.Mode = func() string { return "" }
	}
	return &Pipeline{cfg: cfg, newID: uuid.NewString, now: time.Now}
}

// AudioURL is where the UI fetches synthesized speech for a translation.
func AudioURL(id string) string {
	return "/api/translations/" + id + "/audio"
}

// HandleClip consumes c. Translation failures are returned and published as
// notices; later steps only publish notices.
func (p *Pipeline) HandleClip(ctx context.Context, c clip.Clip) error {
	text, err := p.cfg.Translator.Translate(ctx, c)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		p.publishTranslateError(err)
		return fmt.Errorf("translate: %w", err)
	}

	id := p.newID()
	at := p.now()
	p.record(&store.Translation{
		ID:        id,
		Text:      text,
		Mode:      p.cfg.Mode(),
		ClipMime:  c.ContentType(),
		ClipBytes: len(c.Data),
		CreatedAt: at,
	})

	result := events.Result{ID: id, Text: text}
	p.cfg.Sink.Publish(events.ResultEvent(result))

	if text != translate.NoSignDetected {
		p.speak(ctx, result)
	}

	p.archive(ctx, id, c, at)
	return nil
}

func (p *Pipeline) publishTranslateError(err error) {
	log.Printf("Translation failed: %v", err)

	switch {
	case errors.Is(err, translate.ErrMissingCredential):
		p.cfg.Sink.Publish(events.Notice(events.CodeCredentialRequired, "Enter your Gemini API key to enable translation."))
	case errors.Is(err, translate.ErrInvalidCredential):
		p.cfg.Sink.Publish(events.Notice(events.CodeCredentialRequired, "The Gemini API key was rejected. Enter a valid key."))
	default:
		p.cfg.Sink.Publish(events.Notice(events.CodeTranslationFailed, "Translation failed: "+err.Error()))
	}
}

func (p *Pipeline) record(t *store.Translation) {
	if p.cfg.History == nil {
		return
	}
	if err := p.cfg.History.Create(t); err != nil {
		log.Printf("Error saving translation: %v", err)
	}
}

// speak synthesizes and plays result. Failures leave the transcript shown.
func (p *Pipeline) speak(ctx context.Context, result events.Result) {
	if p.cfg.Synthesizer == nil {
		return
	}

	out, err := p.cfg.Synthesizer.Synthesize(ctx, result.Text, p.cfg.Speaker())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("Speech synthesis failed: %v", err)
		p.cfg.Sink.Publish(events.Notice(events.CodeSynthesisFailed, "Speech unavailable: "+err.Error()))
		if p.cfg.History != nil {
			if err := p.cfg.History.SetSpeechError(result.ID, err.Error()); err != nil {
				log.Printf("Error saving speech error: %v", err)
			}
		}
		return
	}

	if p.cfg.History != nil {
		if err := p.cfg.History.SetSpeech(result.ID, out.Speaker, out.GenerationTime, out.Audio, out.ContentType); err != nil {
			log.Printf("Error saving speech: %v", err)
		}
	}

	result.Speaker = out.Speaker
	result.GenerationTime = out.GenerationTime
	result.AudioURL = AudioURL(result.ID)
	p.cfg.Sink.Publish(events.ResultEvent(result))

	if err := p.cfg.Player.Play(ctx, out.Audio); err != nil && ctx.Err() == nil {
		log.Printf("Playback failed: %v", err)
		p.cfg.Sink.Publish(events.Notice(events.CodePlaybackFailed, "Could not play speech: "+err.Error()))
	}
}

func (p *Pipeline) archive(ctx context.Context, id string, c clip.Clip, at time.Time) {
	if p.cfg.Archive == nil {
		return
	}

	name, err := p.cfg.Archive.Put(ctx, id, c, at)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("Archive failed: %v", err)
		p.cfg.Sink.Publish(events.Notice(events.CodeArchiveFailed, "Clip was not archived: "+err.Error()))
		return
	}
	if p.cfg.History != nil {
		if err := p.cfg.History.SetClipObject(id, name); err != nil {
			log.Printf("Error saving archive location: %v", err)
		}
	}
}
