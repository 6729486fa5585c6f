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
	"github.com/campusmate/tutor/internal/models"
)

// Health is the answer of the backend root endpoint.
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

func (h Health) OK() bool { return h.Status == "ok" }

type ChatRequest struct {
	Message       string             `json:"message"`
	Context       models.UserContext `json:"context"`
	Model         string             `json:"model,omitempty"`
	AttachedImage string             `json:"attachedImage,omitempty"`
}

type VisionRequest struct {
	Prompt   string `json:"prompt"`
	Image    string `json:"image"`
	MimeType string `json:"mimeType"`
}

type VisionResponse struct {
	Description string `json:"description"`
	ModelUsed   string `json:"modelUsed"`
	ModelName   string `json:"modelName"`
}

// ModelCatalog maps category to model key to model id.
type ModelCatalog map[string]map[string]string

// BackendClient calls the primary chat-completion service.
type BackendClient struct {
	baseURL    string
	prefix     string
	probe      time.Duration
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewBackendClient(cfg *config.BackendConfig, logger *logrus.Logger) *BackendClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	probe := cfg.ProbeTimeout
	if probe <= 0 {
		probe = 3 * time.Second
	}
	return &BackendClient{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		prefix:     "/" + strings.Trim(cfg.APIPrefix, "/"),
		probe:      probe,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *BackendClient) api(path string) string {
	if c.prefix == "/" {
		return c.baseURL + path
	}
	return c.baseURL + c.prefix + path
}

// Health calls the root endpoint with the probe timeout.
func (c *BackendClient) Health(ctx context.Context) (Health, error) {
	ctx, cancel := context.WithTimeout(ctx, c.probe)
	defer cancel()

	var h Health
	err := c.do(ctx, http.MethodGet, c.baseURL+"/", nil, &h)
	return h, err
}

// Healthy reports whether the backend answers its health check with "ok".
func (c *BackendClient) Healthy(ctx context.Context) bool {
	h, err := c.Health(ctx)
	if err != nil {
		c.logger.WithError(err).Info("Backend health check failed")
		return false
	}
	return h.OK()
}

func (c *BackendClient) Models(ctx context.Context) (ModelCatalog, error) {
	var resp struct {
		Models ModelCatalog `json:"models"`
	}
	if err := c.do(ctx, http.MethodGet, c.api("/models"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

// Chat returns the backend reply as a bot message.
func (c *BackendClient) Chat(ctx context.Context, req ChatRequest) (models.Message, error) {
	var msg models.Message
	if err := c.do(ctx, http.MethodPost, c.api("/chat"), req, &msg); err != nil {
		return models.Message{}, err
	}
	if msg.Text == "" {
		return models.Message{}, ErrEmptyResponse
	}
	if !msg.Type.Valid() {
		msg.Type = models.TypeText
	}
	msg.Sender = models.SenderBot
	return msg, nil
}

func (c *BackendClient) Vision(ctx context.Context, req VisionRequest) (VisionResponse, error) {
	var resp VisionResponse
	if err := c.do(ctx, http.MethodPost, c.api("/vision"), req, &resp); err != nil {
		return VisionResponse{}, err
	}
	if resp.Description == "" {
		return VisionResponse{}, ErrEmptyResponse
	}
	return resp, nil
}

func (c *BackendClient) do(ctx context.Context, method, url string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		detail := string(data)
		var e struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(data, &e) == nil && e.Detail != "" {
			detail = e.Detail
		}
		c.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"url":    url,
			"detail": detail,
		}).Warn("Backend request failed")
		return &StatusError{Status: resp.StatusCode, Body: detail}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
