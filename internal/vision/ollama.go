// File: internal/vision/ollama.go
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coursepilot-dev/coursepilot/internal/config"
)

// OllamaClient implements Client against a local Ollama inference server.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// ollamaGenerateRequest is the /api/generate payload (internal to this file).
type ollamaGenerateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaClient initializes the local provider.
func NewOllamaClient(cfg config.VisionConfig, logger *zap.Logger) *OllamaClient {
	base := strings.TrimSuffix(cfg.Endpoint, "/")
	if base == "" {
		base = "http://localhost:11434"
	}
	return &OllamaClient{
		baseURL:    base,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.APITimeout},
		logger:     logger.Named("vision.ollama"),
	}
}

// AnalyzeScreen posts the screenshot and prompt to /api/generate and returns
// the model's reply. The image travels base64-encoded inside the JSON body.
func (c *OllamaClient) AnalyzeScreen(ctx context.Context, image []byte, prompt string) (string, error) {
	payload := ollamaGenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Images: []string{base64.StdEncoding.EncodeToString(image)},
		Stream: false,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &ProviderError{Provider: "ollama", Err: fmt.Errorf("failed to marshal request payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", &ProviderError{Provider: "ollama", Err: fmt.Errorf("failed to create HTTP request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: "ollama", Err: fmt.Errorf("failed to execute HTTP request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ProviderError{Provider: "ollama", Status: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Ollama returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("response", truncate(string(respBody), 512)),
		)
		return "", &ProviderError{Provider: "ollama", Status: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}

	var parsed ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &ProviderError{Provider: "ollama", Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response payload: %w", err)}
	}

	c.logger.Debug("Vision analysis complete (ollama)",
		zap.Duration("duration", time.Since(start)),
		zap.Int("image_bytes", len(image)),
		zap.Int("reply_len", len(parsed.Response)),
	)
	return parsed.Response, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
