package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const backendVertex = "vertex"

// VertexSettings configures the Gemini backend on Vertex AI.
type VertexSettings struct {
	ProjectID string
	Region    string
	Model     string
	// APIKey is optional; application default credentials are used otherwise.
	APIKey string
}

// contentGenerator is the part of *genai.GenerativeModel the client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Vertex generates text with a Gemini model on Vertex AI.
type Vertex struct {
	model      contentGenerator
	baseClient *genai.Client
}

// NewVertex creates the Vertex AI client and its generative model.
func NewVertex(ctx context.Context, s VertexSettings) (*Vertex, error) {
	if s.ProjectID == "" || s.Region == "" {
		return nil, newError(backendVertex, KindAuth, fmt.Errorf("%w: projectID and region cannot be empty", ErrMissingCredentials))
	}

	var opts []option.ClientOption
	if s.APIKey != "" {
		opts = append(opts, option.WithAPIKey(s.APIKey))
	}
	baseClient, err := genai.NewClient(ctx, s.ProjectID, s.Region, opts...)
	if err != nil {
		return nil, newError(backendVertex, KindAuth, fmt.Errorf("genai.NewClient: %w", err))
	}

	// Default sampling parameters; no system instruction.
	model := baseClient.GenerativeModel(s.Model)

	return &Vertex{model: model, baseClient: baseClient}, nil
}

// Generate sends prompt as a single text part.
func (v *Vertex) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := v.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classifyVertex(err)
	}
	return extractVertexText(resp)
}

// Close releases the underlying gRPC connection.
func (v *Vertex) Close() error {
	if v.baseClient != nil {
		return v.baseClient.Close()
	}
	return nil
}

// extractVertexText concatenates the text parts of the first candidate.
func extractVertexText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", newError(backendVertex, KindMalformed, fmt.Errorf("%w: no candidates", ErrEmptyResponse))
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", newError(backendVertex, KindRejected, ErrContentBlocked)
	}
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", newError(backendVertex, KindMalformed, fmt.Errorf("%w: candidate has no parts", ErrEmptyResponse))
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", newError(backendVertex, KindMalformed, fmt.Errorf("%w: no text parts", ErrEmptyResponse))
	}
	return sb.String(), nil
}

func classifyVertex(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return newError(backendVertex, KindRejected, fmt.Errorf("%w: %v", ErrContentBlocked, err))
	}

	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return newError(backendVertex, KindAuth, err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled, codes.Aborted:
		return newError(backendVertex, KindTransport, err)
	case codes.Unknown, codes.OK:
		// No gRPC status attached: decide from the error itself.
	default:
		return newError(backendVertex, KindRejected, err)
	}

	if kind, ok := classifyTransport(err); ok {
		return newError(backendVertex, kind, err)
	}
	return newError(backendVertex, KindRejected, err)
}
