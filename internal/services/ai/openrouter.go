package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/campusmate/tutor/internal/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"

	defaultTopP = 0.9
)

// Completer produces one chat completion.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// ChatMessage is one turn sent to the model. A message with ImageURL is
// sent as multimodal content.
type ChatMessage struct {
	Role     string
	Text     string
	ImageURL string
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

func (m ChatMessage) MarshalJSON() ([]byte, error) {
	if m.ImageURL == "" {
		return json.Marshal(struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{m.Role, m.Text})
	}
	return json.Marshal(struct {
		Role    string        `json:"role"`
		Content []contentPart `json:"content"`
	}{m.Role, []contentPart{
		{Type: "text", Text: m.Text},
		{Type: "image_url", ImageURL: &imageURL{URL: m.ImageURL}},
	}})
}

// DataURL embeds base64 image data the way vision models expect it.
func DataURL(mimeType, base64Data string) string {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64Data)
}

type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

type Completion struct {
	Text  string
	Model string
}

// OpenRouterClient talks to an OpenAI compatible chat completions endpoint.
type OpenRouterClient struct {
	cfg        *config.OpenRouterConfig
	httpClient *http.Client
	logger     *logrus.Logger
	backoff    func(attempt int) time.Duration
}

func NewOpenRouterClient(cfg *config.OpenRouterConfig, logger *logrus.Logger) *OpenRouterClient {
	return &OpenRouterClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger,
		backoff: func(attempt int) time.Duration {
			// 2s, 4s, 8s
			return time.Duration(2<<uint(attempt-1)) * time.Second
		},
	}
}

// Complete sends the request, retrying transport failures and 5xx answers
// with exponential backoff. Client errors are returned at once.
func (c *OpenRouterClient) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	if c.cfg.APIKey == "" {
		return Completion{}, fmt.Errorf("%w: no OpenRouter key configured", ErrAuth)
	}

	maxRetries := c.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		completion, err := c.attempt(ctx, req, attempt)
		if err == nil {
			return completion, nil
		}

		lastErr = err
		if !retryable(err) {
			return Completion{}, err
		}

		c.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err.Error(),
			"model":   req.Model,
		}).Warn("Completion request failed, retrying...")

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return Completion{}, ctx.Err()
			case <-time.After(c.backoff(attempt)):
			}
		}
	}

	return Completion{}, fmt.Errorf("all retry attempts failed: %w", lastErr)
}

func (c *OpenRouterClient) attempt(ctx context.Context, req CompletionRequest, attempt int) (Completion, error) {
	body := map[string]interface{}{
		"model":       req.Model,
		"messages":    req.Messages,
		"temperature": req.Temperature,
		"top_p":       defaultTopP,
		"stream":      false,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return Completion{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.SiteURL != "" {
		httpReq.Header.Set("HTTP-Referer", c.cfg.SiteURL)
	}
	if c.cfg.SiteName != "" {
		httpReq.Header.Set("X-Title", c.cfg.SiteName)
	}

	c.logger.WithFields(logrus.Fields{
		"model":   req.Model,
		"attempt": attempt,
	}).Debug("Sending completion request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Completion{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to read response: %w", err)
	}

	var result struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(respBody)
		if json.Unmarshal(respBody, &result) == nil && result.Error.Message != "" {
			msg = result.Error.Message
		}
		c.logger.WithFields(logrus.Fields{
			"status":  resp.StatusCode,
			"body":    msg,
			"attempt": attempt,
		}).Error("Completion request failed")
		return Completion{}, &StatusError{Status: resp.StatusCode, Body: msg}
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		return Completion{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Error.Message != "" {
		return Completion{}, fmt.Errorf("model error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return Completion{}, ErrEmptyResponse
	}

	model := result.Model
	if model == "" {
		model = req.Model
	}
	return Completion{Text: result.Choices[0].Message.Content, Model: model}, nil
}
