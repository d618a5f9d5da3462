package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"

	"FeedSentinel/internal/config"
	"FeedSentinel/internal/domain"
	"FeedSentinel/internal/ports"
)

const maxResponseBytes = 4 << 20

var (
	// ErrNotConfigured is returned when credentials, endpoint or model are missing.
	ErrNotConfigured = errors.New("chatgpt client misconfigured")

	errNoContent = errors.New("chat completion without message content")
)

// ChatGPTClient talks to OpenAI-compatible chat completion APIs. It backs both source
// discovery and, with the chatgpt provider, content rewriting.
type ChatGPTClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	maxAttempts  uint
	httpClient   *http.Client
	logger       *slog.Logger
	newBackOff   func() backoff.BackOff
}

var (
	_ ports.TextGenerator      = (*ChatGPTClient)(nil)
	_ ports.ContentTransformer = (*ChatGPTClient)(nil)
)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.ChatGPTConfig, logger *slog.Logger) *ChatGPTClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts == 0 {
		attempts = 3
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ChatGPTClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		maxAttempts:  attempts,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = time.Second
			bo.MaxInterval = 20 * time.Second
			return bo
		},
	}
}

// Generate sends a single user prompt and returns the assistant's text.
func (c *ChatGPTClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, safePrompt(c.systemPrompt), prompt, false)
}

// Transform rewrites a fetched item in the category's editorial voice.
func (c *ChatGPTClient) Transform(ctx context.Context, req domain.TransformRequest) (domain.TransformedContent, error) {
	answer, err := c.complete(ctx, transformSystemPrompt(req.Style), transformUserPrompt(req), true)
	if err != nil {
		return domain.TransformedContent{}, err
	}

	out, err := parseTransformed(answer)
	if err != nil {
		return domain.TransformedContent{}, err
	}
	if out.Title == "" {
		out.Title = req.Title
	}
	return out, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

// statusError is a non-2xx answer from the API.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("chatgpt error %d: %s", e.code, e.body)
}

func (c *ChatGPTClient) complete(ctx context.Context, system, user string, jsonAnswer bool) (string, error) {
	if c == nil {
		return "", fmt.Errorf("chatgpt client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", ErrNotConfigured
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	if jsonAnswer {
		payload.ResponseFormat = map[string]string{"type": "json_object"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	operation := func() (string, error) {
		answer, err := c.send(ctx, body)
		if err == nil {
			return answer, nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Warn("chatgpt request failed, retrying", "error", err, "wait", wait)
		}),
	)
}

func (c *ChatGPTClient) send(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send chat completion: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read chat completion: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		snippet := strings.TrimSpace(string(raw))
		if len(snippet) > 1024 {
			snippet = snippet[:1024]
		}
		return "", &statusError{code: resp.StatusCode, body: snippet}
	}

	content := gjson.GetBytes(raw, "choices.0.message.content")
	if !content.Exists() {
		return "", errNoContent
	}
	return strings.TrimSpace(content.String()), nil
}

// retryable reports whether a failed request is worth another attempt. Client errors other
// than 429 are final.
func retryable(err error) bool {
	var status *statusError
	if errors.As(err, &status) {
		return status.code == http.StatusTooManyRequests || status.code >= http.StatusInternalServerError
	}
	return !errors.Is(err, errNoContent)
}

func parseTransformed(answer string) (domain.TransformedContent, error) {
	start := strings.Index(answer, "{")
	end := strings.LastIndex(answer, "}")
	if start < 0 || end < start || !gjson.Valid(answer[start:end+1]) {
		return domain.TransformedContent{}, fmt.Errorf("transform answer is not a JSON object")
	}
	doc := gjson.Parse(answer[start : end+1])

	out := domain.TransformedContent{
		Title:   strings.TrimSpace(doc.Get("title").String()),
		Content: strings.TrimSpace(doc.Get("content").String()),
		Summary: strings.TrimSpace(doc.Get("summary").String()),
	}
	if out.Content == "" {
		return domain.TransformedContent{}, fmt.Errorf("transform answer has no content")
	}
	return out, nil
}

func transformSystemPrompt(style domain.StyleProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an editor of the %s section of a lifestyle magazine.", style.Category)
	if style.Description != "" {
		fmt.Fprintf(&b, " The section covers %s.", style.Description)
	}
	if style.Audience != "" {
		fmt.Fprintf(&b, " Readers: %s.", style.Audience)
	}
	if style.Voice != "" {
		fmt.Fprintf(&b, " Voice: %s.", style.Voice)
	}
	b.WriteString(" Rewrite the article in your own words, keep every fact, never invent quotes.")
	b.WriteString(` Answer with a JSON object {"title": string, "content": string, "summary": string}.`)
	return b.String()
}

func transformUserPrompt(req domain.TransformRequest) string {
	return fmt.Sprintf("Title: %s\nSource: %s\n\n%s", req.Title, req.Link, req.Content)
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are a helpful assistant that curates lifestyle content sources."
	}
	return prompt
}
