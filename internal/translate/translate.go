// Package translate sends recorded clips to a Gemini vision-language model
// and returns the signed sentence as English text.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/ayusman/mudra/internal/clip"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.0-flash"
	DefaultTimeout = 60 * time.Second

	// NoSignDetected is returned in place of an error when the model finds
	// nothing it can translate.
	NoSignDetected = "Unable to detect sign language..."
)

// Prompt is the fixed instruction sent with every clip.
const Prompt = `You are an expert sign language interpreter. Watch the video and translate the signing into a single natural English sentence.
Respond with the sentence only. If no sign language is visible, respond with exactly: ` + NoSignDetected

var (
	// ErrMissingCredential is returned when no API key is configured.
	ErrMissingCredential = errors.New("translation API key not set")
	// ErrInvalidCredential is returned when the service rejects the API key.
	ErrInvalidCredential = errors.New("translation API key rejected")
)

// StatusError is a non-success response from the service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gemini error %d: %s", e.Code, e.Body)
}

// Config configures a Client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client is safe for concurrent use. The key can be replaced at runtime;
// the underlying genai client is rebuilt on the next call after a change.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client

	mu     sync.Mutex
	apiKey string
	gc     *genai.Client
}

// New creates a Client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		baseURL:    baseURL,
		model:      model,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetAPIKey replaces the key. It reports whether the key changed; an
// identical key leaves the client untouched.
func (c *Client) SetAPIKey(key string) bool {
	key = strings.TrimSpace(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if key == c.apiKey {
		return false
	}
	c.apiKey = key
	c.gc = nil
	return true
}

// HasCredential reports whether a key is configured.
func (c *Client) HasCredential() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apiKey != ""
}

// Model returns the model name requests are sent to.
func (c *Client) Model() string { return c.model }

// client returns the genai client for the current key, creating it on first use.
func (c *Client) client(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.apiKey == "" {
		return nil, ErrMissingCredential
	}
	if c.gc != nil {
		return c.gc, nil
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      c.apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  c.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: c.baseURL + "/"},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	c.gc = gc
	return gc, nil
}

// Translate sends cl to the model and returns its sentence. An empty answer
// yields NoSignDetected rather than an error.
func (c *Client) Translate(ctx context.Context, cl clip.Clip) (string, error) {
	gc, err := c.client(ctx)
	if err != nil {
		return "", err
	}
	if cl.Empty() {
		return NoSignDetected, nil
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(cl.Data, cl.ContentType()),
			genai.NewPartFromText(Prompt),
		}, genai.RoleUser),
	}

	log.Printf("Translating clip (%d bytes, %s)", len(cl.Data), cl.ContentType())
	start := time.Now()

	resp, err := gc.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", classify(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		text = NoSignDetected
	}

	log.Printf("Translated in %v: %q", time.Since(start).Round(time.Millisecond), text)
	return text, nil
}

// classify maps service errors onto the credential sentinels. Gemini rejects
// a bad key with 400 INVALID_ARGUMENT and reason API_KEY_INVALID.
func classify(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var ptr *genai.APIError
		if !errors.As(err, &ptr) || ptr == nil {
			if strings.Contains(err.Error(), "API_KEY_INVALID") {
				return fmt.Errorf("%w: %v", ErrInvalidCredential, err)
			}
			return fmt.Errorf("send request: %w", err)
		}
		apiErr = *ptr
	}

	switch {
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		return ErrInvalidCredential
	case apiErr.Code == http.StatusBadRequest && keyRejected(apiErr):
		return ErrInvalidCredential
	}
	return &StatusError{Code: apiErr.Code, Body: strings.TrimSpace(apiErr.Message)}
}

func keyRejected(e genai.APIError) bool {
	if strings.Contains(e.Message, "API key not valid") {
		return true
	}
	for _, d := range e.Details {
		if reason, _ := d["reason"].(string); reason == "API_KEY_INVALID" {
			return true
		}
	}
	return false
}
