// File: internal/vision/gemini.go
package vision

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/coursepilot-dev/coursepilot/internal/config"
)

// GeminiClient implements Client against the hosted Gemini API.
type GeminiClient struct {
	client *genai.Client
	cfg    config.VisionConfig
	logger *zap.Logger
}

// NewGeminiClient initializes the hosted provider. The API key is mandatory;
// callers are expected to have validated configuration before the run starts.
func NewGeminiClient(ctx context.Context, cfg config.VisionConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.APITimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{
		client: client,
		cfg:    cfg,
		logger: logger.Named("vision.gemini"),
	}, nil
}

// AnalyzeScreen sends the screenshot and prompt in a single generateContent
// call and returns the model's text reply.
func (c *GeminiClient) AnalyzeScreen(ctx context.Context, image []byte, prompt string) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(image, "image/png"),
		genai.NewPartFromText(prompt),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.cfg.Temperature),
		MaxOutputTokens: int32(c.cfg.MaxTokens),
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, genCfg)
	if err != nil {
		return "", &ProviderError{Provider: "gemini", Err: err}
	}

	text := resp.Text()
	if text == "" {
		return "", &ProviderError{Provider: "gemini", Err: fmt.Errorf("gemini returned no text candidates")}
	}

	c.logger.Debug("Vision analysis complete (gemini)",
		zap.Duration("duration", time.Since(start)),
		zap.Int("image_bytes", len(image)),
		zap.Int("reply_len", len(text)),
	)
	return text, nil
}
