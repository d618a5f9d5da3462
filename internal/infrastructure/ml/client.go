package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"FeedSentinel/internal/domain"
	"FeedSentinel/internal/ports"
)

// Client talks to an external rewriting service that turns raw feed items into articles.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.ContentTransformer = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 90 * time.Second},
	}
}

type transformPayload struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	Link        string `json:"link"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	Audience    string `json:"audience,omitempty"`
	Voice       string `json:"voice,omitempty"`
}

// Transform posts the item with its category style and returns the rewritten content.
func (c *Client) Transform(ctx context.Context, req domain.TransformRequest) (domain.TransformedContent, error) {
	payload := transformPayload{
		Title:       req.Title,
		Content:     req.Content,
		Link:        req.Link,
		Category:    string(req.Style.Category),
		Description: req.Style.Description,
		Audience:    req.Style.Audience,
		Voice:       req.Style.Voice,
	}

	var resp struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		Summary string `json:"summary"`
	}
	if err := c.post(ctx, "/transform", payload, &resp); err != nil {
		return domain.TransformedContent{}, err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return domain.TransformedContent{}, fmt.Errorf("transformer returned empty content")
	}

	out := domain.TransformedContent{Title: resp.Title, Content: resp.Content, Summary: resp.Summary}
	if out.Title == "" {
		out.Title = req.Title
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if v == nil {
		if err := resp.Body.Close(); err != nil {
			return fmt.Errorf("close response body: %w", err)
		}
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}
