package notifysound

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPOption configures an HTTPSynthesizer at construction time.
type HTTPOption func(*HTTPSynthesizer)

// HTTPSynthesizer calls a text-to-speech HTTP API and returns the audio
// bytes it streams back. It carries no vendor-specific wire shape beyond a
// JSON request body and a raw audio response body, since spec §1 names the
// provider only at its interface boundary.
type HTTPSynthesizer struct {
	apiKey   string
	endpoint string
	voice    string
	client   *http.Client
}

// NewHTTPSynthesizer constructs an HTTPSynthesizer targeting endpoint with
// apiKey as a bearer credential.
func NewHTTPSynthesizer(endpoint, apiKey string, opts ...HTTPOption) *HTTPSynthesizer {
	s := &HTTPSynthesizer{
		apiKey:   strings.TrimSpace(apiKey),
		endpoint: strings.TrimSpace(endpoint),
		voice:    "default",
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// WithVoice overrides the default voice identifier sent in the request body.
func WithVoice(voice string) HTTPOption {
	return func(s *HTTPSynthesizer) {
		if trimmed := strings.TrimSpace(voice); trimmed != "" {
			s.voice = trimmed
		}
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *HTTPSynthesizer) {
		if client != nil {
			s.client = client
		}
	}
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

var _ Synthesizer = (*HTTPSynthesizer)(nil)

// Synthesize posts text to the configured endpoint and returns the raw
// audio bytes in the response body.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(s.endpoint) == "" {
		return nil, errors.New("notifysound endpoint is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text is required")
	}

	body, err := json.Marshal(synthesizeRequest{Text: text, Voice: s.voice})
	if err != nil {
		return nil, fmt.Errorf("marshal synthesize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build synthesize request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call notifysound api: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read synthesize response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := strings.TrimSpace(string(audio))
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("notifysound api status %d: %s", resp.StatusCode, message)
	}
	if len(audio) == 0 {
		return nil, errors.New("notifysound api returned no audio")
	}
	return audio, nil
}
