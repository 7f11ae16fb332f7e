// File: internal/vision/client.go

// Package vision provides the query gateway to a vision-capable AI backend.
// A screenshot and a textual prompt go in, the model's raw text reply comes
// out. Two interchangeable providers (a hosted Gemini API and a local Ollama
// server) sit behind one interface; callers are provider-agnostic.
package vision

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/coursepilot-dev/coursepilot/internal/config"
)

// Client is the capability contract for a vision backend. Implementations do
// not retry; a failed query surfaces as a *ProviderError and the retry policy
// (if any) belongs to the caller.
type Client interface {
	// AnalyzeScreen sends a PNG screenshot and a prompt to the backend and
	// returns the raw text of the model's reply.
	AnalyzeScreen(ctx context.Context, image []byte, prompt string) (string, error)
}

// ProviderError reports a transport failure, a non-2xx response, or a
// malformed payload from a vision backend.
type ProviderError struct {
	Provider string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("vision provider %s: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("vision provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// New is a factory that creates a Client based on the configured provider.
func New(ctx context.Context, cfg config.VisionConfig, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	case config.ProviderOllama:
		return NewOllamaClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown or unsupported vision provider: %q. Supported: [%s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderOllama)
	}
}
