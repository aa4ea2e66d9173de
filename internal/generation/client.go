// Package generation wraps the hosted text-generation backends behind a
// single prompt-in, text-out Client.
package generation

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Lllllllleong/docgpt/internal/config"
)

// Client submits a prompt and returns the completion text. Errors are
// *Error values carrying a Kind.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, prompt string) (string, error)

func (f ClientFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// New builds the configured backend wrapped with the per-call timeout and,
// when enabled, transient-failure retries.
func New(ctx context.Context, cfg *config.Config) (Client, error) {
	var (
		backend Client
		err     error
	)
	switch cfg.GenerationBackend {
	case config.BackendVertex:
		backend, err = NewVertex(ctx, VertexSettings{
			ProjectID: cfg.ProjectID,
			Region:    cfg.VertexAIRegion,
			Model:     cfg.GenerationModel,
			APIKey:    cfg.GenerationAPIKey,
		})
	case config.BackendOpenAI:
		backend, err = NewOpenAI(Settings{Model: cfg.GenerationModel, APIKey: cfg.GenerationAPIKey, BaseURL: cfg.GenerationBaseURL})
	case config.BackendAnthropic:
		backend, err = NewAnthropic(Settings{Model: cfg.GenerationModel, APIKey: cfg.GenerationAPIKey, BaseURL: cfg.GenerationBaseURL})
	default:
		return nil, fmt.Errorf("generation backend %q is not supported", cfg.GenerationBackend)
	}
	if err != nil {
		return nil, err
	}

	var c Client = &Timeout{Next: backend, Limit: cfg.GenerationTimeout}
	if cfg.GenerationMaxRetries > 0 {
		c = &Retrying{Next: c, MaxRetries: cfg.GenerationMaxRetries, Backoff: time.Second}
	}
	return c, nil
}

// Settings configures the API-key backends.
type Settings struct {
	Model   string
	APIKey  string
	BaseURL string
}

// Close releases the resources held by c, if any.
func Close(c Client) error {
	if closer, ok := c.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
