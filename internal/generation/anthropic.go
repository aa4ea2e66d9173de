package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const backendAnthropic = "anthropic"

// anthropicMaxTokens is required by the messages API; it is the only
// sampling setting sent.
const anthropicMaxTokens = 4096

// Anthropic generates text with the Claude messages API.
type Anthropic struct {
	client anthropic.Client
	model  string
}

func NewAnthropic(s Settings) (*Anthropic, error) {
	if s.APIKey == "" {
		return nil, newError(backendAnthropic, KindAuth, fmt.Errorf("%w: anthropic api key missing", ErrMissingCredentials))
	}
	if s.Model == "" {
		return nil, errors.New("anthropic: model is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(s.APIKey),
		option.WithMaxRetries(0),
	}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	return &Anthropic{client: anthropic.NewClient(opts...), model: s.Model}, nil
}

func (a *Anthropic) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", classifyAnthropic(err)
	}

	if msg.StopReason == anthropic.StopReasonRefusal {
		return "", newError(backendAnthropic, KindRejected, ErrContentBlocked)
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", newError(backendAnthropic, KindMalformed, ErrEmptyResponse)
	}
	return sb.String(), nil
}

func classifyAnthropic(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return newError(backendAnthropic, classifyHTTPStatus(apiErr.StatusCode), err)
	}
	if kind, ok := classifyTransport(err); ok {
		return newError(backendAnthropic, kind, err)
	}
	return newError(backendAnthropic, KindTransport, err)
}
