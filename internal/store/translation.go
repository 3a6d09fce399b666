package store

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Translation is one translated clip and, when synthesis succeeded, its speech.
type Translation struct {
	ID             string
	Text           string
	Mode           string
	ClipMime       string
	ClipBytes      int
	ClipObject     string
	Speaker        string
	GenerationTime float64
	HasAudio       bool
	AudioType      string
	SpeechError    string
	CreatedAt      time.Time
}

// TranslationRepository provides access to translation history.
type TranslationRepository struct {
	db *sql.DB
}

// Translations returns the translation repository for this store.
func (s *Store) Translations() *TranslationRepository {
	return &TranslationRepository{db: s.db}
}

// Create inserts a new translation.
func (r *TranslationRepository) Create(t *Translation) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO translations (id, text, mode, clip_mime, clip_bytes, clip_object, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Text, t.Mode, t.ClipMime, t.ClipBytes, t.ClipObject, t.CreatedAt,
	)
	return err
}

// SetSpeech attaches synthesized audio to a translation.
func (r *TranslationRepository) SetSpeech(id, speaker string, generationTime float64, audio []byte, audioType string) error {
	return r.update(
		`UPDATE translations SET speaker = ?, generation_time = ?, audio = ?, audio_type = ?, speech_error = ''
		 WHERE id = ?`,
		speaker, generationTime, audio, audioType, id,
	)
}

// SetSpeechError records why synthesis failed.
func (r *TranslationRepository) SetSpeechError(id, message string) error {
	return r.update(`UPDATE translations SET speech_error = ? WHERE id = ?`, message, id)
}

// SetClipObject records where the clip was archived.
func (r *TranslationRepository) SetClipObject(id, object string) error {
	return r.update(`UPDATE translations SET clip_object = ? WHERE id = ?`, object, id)
}

func (r *TranslationRepository) update(query string, args ...any) error {
	result, err := r.db.Exec(query, args...)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

const translationColumns = `id, text, mode, clip_mime, clip_bytes, clip_object, speaker,
	generation_time, audio IS NOT NULL, audio_type, speech_error, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTranslation(row scanner) (*Translation, error) {
	t := &Translation{}
	err := row.Scan(&t.ID, &t.Text, &t.Mode, &t.ClipMime, &t.ClipBytes, &t.ClipObject, &t.Speaker,
		&t.GenerationTime, &t.HasAudio, &t.AudioType, &t.SpeechError, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetByID retrieves a translation by its ID.
func (r *TranslationRepository) GetByID(id string) (*Translation, error) {
	t, err := scanTranslation(r.db.QueryRow(
		`SELECT `+translationColumns+` FROM translations WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// List returns the most recent translations, newest first. A limit of zero
// or less returns all of them.
func (r *TranslationRepository) List(limit int) ([]*Translation, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT `+translationColumns+` FROM translations ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var translations []*Translation
	for rows.Next() {
		t, err := scanTranslation(rows)
		if err != nil {
			return nil, err
		}
		translations = append(translations, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return translations, nil
}

// Audio returns the synthesized audio and its content type. A translation
// without speech returns ErrNotFound.
func (r *TranslationRepository) Audio(id string) ([]byte, string, error) {
	var audio []byte
	var audioType string
	err := r.db.QueryRow(`SELECT audio, audio_type FROM translations WHERE id = ?`, id).Scan(&audio, &audioType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	if audio == nil {
		return nil, "", ErrNotFound
	}
	return audio, audioType, nil
}

// Delete removes a translation.
func (r *TranslationRepository) Delete(id string) error {
	return r.update(`DELETE FROM translations WHERE id = ?`, id)
}
