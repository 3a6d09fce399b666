// Package speech is the client for the local text-to-speech server.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultURL     = "http://localhost:8000"
	DefaultTimeout = 60 * time.Second

	// HeaderGenerationTime carries synthesis time in seconds.
	HeaderGenerationTime = "X-Generation-Time"
	// HeaderSpeakerUsed names the speaker that actually produced the audio.
	HeaderSpeakerUsed = "X-Speaker-Used"
)

// ErrEmptyText is returned when asked to synthesize nothing.
var ErrEmptyText = errors.New("nothing to synthesize")

// SpeakerList is the discovery response.
type SpeakerList struct {
	Speakers []string `json:"speakers"`
	Default  string   `json:"default"`
}

// Has reports whether name is an available speaker.
func (l SpeakerList) Has(name string) bool {
	for _, s := range l.Speakers {
		if s == name {
			return true
		}
	}
	return false
}

// Speech is synthesized audio with its out-of-band metadata.
type Speech struct {
	Audio          []byte
	ContentType    string
	GenerationTime float64
	Speaker        string
}

// Client talks to the TTS server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client for baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Speakers lists the available voices and the server default.
func (c *Client) Speakers(ctx context.Context) (SpeakerList, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/speakers", nil)
	if err != nil {
		return SpeakerList{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SpeakerList{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return SpeakerList{}, fmt.Errorf("tts error %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var list SpeakerList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return SpeakerList{}, fmt.Errorf("decode speakers: %w", err)
	}
	return list, nil
}

type synthesizeRequest struct {
	Text    string `json:"text"`
	Speaker string `json:"speaker,omitempty"`
}

// Synthesize renders text with speaker. An empty speaker lets the server
// choose; the speaker it used is reported in the result.
func (c *Client) Synthesize(ctx context.Context, text, speaker string) (Speech, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Speech{}, ErrEmptyText
	}

	body, err := json.Marshal(synthesizeRequest{Text: text, Speaker: speaker})
	if err != nil {
		return Speech{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return Speech{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Speech{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Speech{}, fmt.Errorf("tts error %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return Speech{}, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return Speech{}, errors.New("tts returned no audio")
	}

	out := Speech{
		Audio:       audio,
		ContentType: resp.Header.Get("Content-Type"),
		Speaker:     resp.Header.Get(HeaderSpeakerUsed),
	}
	if out.ContentType == "" {
		out.ContentType = "audio/wav"
	}
	if out.Speaker == "" {
		out.Speaker = speaker
	}
	if v := resp.Header.Get(HeaderGenerationTime); v != "" {
		if secs, err := strconv.ParseFloat(strings.TrimSuffix(v, "s"), 64); err == nil {
			out.GenerationTime = secs
		} else {
			log.Printf("Ignoring malformed %s header %q", HeaderGenerationTime, v)
		}
	}
	if speaker != "" && out.Speaker != speaker {
		log.Printf("TTS used speaker %q instead of %q", out.Speaker, speaker)
	}

	return out, nil
}
