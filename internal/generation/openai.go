package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

const backendOpenAI = "openai"

// OpenAI generates text with the chat completions API of openai-go.
// Any OpenAI-compatible endpoint works through Settings.BaseURL.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI validates settings and builds the client. SDK retries are off;
// retrying is the Retrying wrapper's decision.
func NewOpenAI(s Settings) (*OpenAI, error) {
	if s.APIKey == "" {
		return nil, newError(backendOpenAI, KindAuth, fmt.Errorf("%w: openai api key missing", ErrMissingCredentials))
	}
	if s.Model == "" {
		return nil, errors.New("openai: model is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(s.APIKey),
		option.WithMaxRetries(0),
	}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	return &OpenAI{client: openai.NewClient(opts...), model: s.Model}, nil
}

func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", classifyOpenAI(err)
	}
	if len(resp.Choices) == 0 {
		return "", newError(backendOpenAI, KindMalformed, fmt.Errorf("%w: empty choices", ErrEmptyResponse))
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", newError(backendOpenAI, KindRejected, ErrContentBlocked)
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return "", newError(backendOpenAI, KindMalformed, ErrEmptyResponse)
	}
	return choice.Message.Content, nil
}

func classifyOpenAI(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return newError(backendOpenAI, classifyHTTPStatus(apiErr.StatusCode), err)
	}
	if kind, ok := classifyTransport(err); ok {
		return newError(backendOpenAI, kind, err)
	}
	return newError(backendOpenAI, KindTransport, err)
}
