package llmproxy

import (
	"bufio"
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

const (
	defaultAnthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion         = "2023-06-01"
)

// AnthropicOption configures an AnthropicProvider at construction time.
type AnthropicOption func(*AnthropicProvider)

// AnthropicProvider is the one concrete HTTP-backed Provider: a thin client
// for the Anthropic messages API, trimmed to the text-only, non-tool-use
// shape the reply-drafting worker needs.
type AnthropicProvider struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewAnthropicProvider constructs an AnthropicProvider for apiKey.
func NewAnthropicProvider(apiKey string, opts ...AnthropicOption) *AnthropicProvider {
	provider := &AnthropicProvider{
		apiKey:   strings.TrimSpace(apiKey),
		endpoint: defaultAnthropicEndpoint,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	return provider
}

// WithAnthropicEndpoint overrides the default API endpoint, for tests.
func WithAnthropicEndpoint(endpoint string) AnthropicOption {
	return func(p *AnthropicProvider) {
		if trimmed := strings.TrimSpace(endpoint); trimmed != "" {
			p.endpoint = trimmed
		}
	}
}

// WithAnthropicHTTPClient overrides the default HTTP client.
func WithAnthropicHTTPClient(client *http.Client) AnthropicOption {
	return func(p *AnthropicProvider) {
		if client != nil {
			p.client = client
		}
	}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

type anthropicErrorEnvelope struct {
	Error anthropicError `json:"error"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

var _ Provider = (*AnthropicProvider)(nil)

// Complete sends req to the Anthropic messages API over a streamed
// response and reassembles the text delta events into one CompletionResponse.
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if strings.TrimSpace(p.apiKey) == "" {
		return CompletionResponse{}, errors.New("anthropic api key is required")
	}
	if strings.TrimSpace(req.Model) == "" {
		return CompletionResponse{}, errors.New("model is required")
	}
	if req.MaxTokens <= 0 {
		return CompletionResponse{}, errors.New("max tokens must be greater than zero")
	}

	messages := buildAnthropicMessages(req.Messages)
	if len(messages) == 0 {
		return CompletionResponse{}, errors.New("at least one non-system message is required")
	}

	payload := anthropicRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Stream:    true,
		Messages:  messages,
		System:    req.SystemPrompt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("marshal anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("build anthropic request: %w", err)
	}
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("content-type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("call anthropic api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return CompletionResponse{}, parseAnthropicAPIError(resp)
	}

	parsed, err := parseAnthropicSSE(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("decode anthropic response: %w", err)
	}
	if strings.TrimSpace(parsed.text) == "" {
		return CompletionResponse{}, errors.New("anthropic response contained no text")
	}

	modelName := parsed.model
	if modelName == "" {
		modelName = req.Model
	}

	return CompletionResponse{
		Content:    parsed.text,
		Model:      modelName,
		StopReason: parsed.stopReason,
		Usage: Usage{
			InputTokens:  parsed.usage.InputTokens,
			OutputTokens: parsed.usage.OutputTokens,
		},
	}, nil
}

func buildAnthropicMessages(messages []Message) []anthropicMessage {
	built := make([]anthropicMessage, 0, len(messages))
	for _, message := range messages {
		role := strings.ToLower(strings.TrimSpace(string(message.Role)))
		if role != string(RoleUser) && role != string(RoleAssistant) {
			continue
		}
		built = append(built, anthropicMessage{Role: role, Content: message.Content})
	}
	return built
}

type anthropicParsedResponse struct {
	text       string
	model      string
	stopReason string
	usage      anthropicUsage
}

type anthropicSSEEvent struct {
	Type    string               `json:"type"`
	Message *anthropicSSEMessage `json:"message"`
	Delta   *anthropicSSEDelta   `json:"delta"`
	Usage   *anthropicUsage      `json:"usage"`
	Error   *anthropicError      `json:"error"`
}

type anthropicSSEMessage struct {
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      anthropicUsage `json:"usage"`
}

type anthropicSSEDelta struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	StopReason string `json:"stop_reason"`
}

// parseAnthropicSSE reassembles the stream's text_delta events into one
// response, grounded on the teacher's anthropic.go stream reader, trimmed
// to the text-only subset this provider needs.
func parseAnthropicSSE(reader io.Reader) (anthropicParsedResponse, error) {
	stream := bufio.NewReader(reader)
	var builder strings.Builder
	parsed := anthropicParsedResponse{}
	dataLines := make([]string, 0, 4)
	seenData := false

	process := func(lines []string) (bool, error) {
		if len(lines) == 0 {
			return false, nil
		}
		payload := strings.TrimSpace(strings.Join(lines, "\n"))
		if payload == "" || payload == "[DONE]" {
			return false, nil
		}
		seenData = true

		var event anthropicSSEEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return false, fmt.Errorf("parse anthropic stream event: %w", err)
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				if event.Message.Model != "" {
					parsed.model = event.Message.Model
				}
				parsed.usage = event.Message.Usage
			}
		case "content_block_delta":
			if event.Delta != nil && event.Delta.Type == "text_delta" {
				builder.WriteString(event.Delta.Text)
			}
		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				parsed.stopReason = event.Delta.StopReason
			}
			if event.Usage != nil {
				parsed.usage.OutputTokens = event.Usage.OutputTokens
			}
		case "message_stop":
			parsed.text = builder.String()
			return true, nil
		case "error":
			message := "unknown stream failure"
			if event.Error != nil && event.Error.Message != "" {
				message = event.Error.Message
			}
			return false, fmt.Errorf("anthropic stream error: %s", message)
		}
		return false, nil
	}

	eventType := ""
	for {
		line, err := stream.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return anthropicParsedResponse{}, err
		}
		if len(line) > 0 {
			trimmed := strings.TrimRight(line, "\r\n")
			switch {
			case trimmed == "":
				done, parseErr := process(dataLines)
				if parseErr != nil {
					return anthropicParsedResponse{}, parseErr
				}
				if done {
					return parsed, nil
				}
				eventType = ""
				dataLines = dataLines[:0]
			case strings.HasPrefix(trimmed, "event:"):
				eventType = strings.TrimSpace(strings.TrimPrefix(trimmed, "event:"))
				_ = eventType
			case strings.HasPrefix(trimmed, "data:"):
				dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(trimmed, "data:")))
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
	}

	if len(dataLines) > 0 {
		done, parseErr := process(dataLines)
		if parseErr != nil {
			return anthropicParsedResponse{}, parseErr
		}
		if done {
			return parsed, nil
		}
	}

	parsed.text = builder.String()
	if seenData || parsed.text != "" {
		return parsed, nil
	}
	return anthropicParsedResponse{}, errors.New("anthropic stream ended without data")
}

func parseAnthropicAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	message := strings.TrimSpace(string(body))
	if len(body) > 0 {
		var parsed anthropicErrorEnvelope
		if err := json.Unmarshal(body, &parsed); err == nil && strings.TrimSpace(parsed.Error.Message) != "" {
			message = parsed.Error.Message
		}
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("anthropic rate limited: %s", message)
	}
	return fmt.Errorf("anthropic api status %d: %s", resp.StatusCode, message)
}
