package pipeline

import (
	"errors"
	"fmt"

	"github.com/Lllllllleong/docgpt/internal/generation"
)

// Kind classifies a failed operation for the caller.
type Kind int

const (
	KindBadRequest Kind = iota + 1
	// KindTooLarge is a bad request whose upload or text is over a limit.
	KindTooLarge
	KindExtraction
	KindGeneration
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindTooLarge:
		return "too_large"
	case KindExtraction:
		return "extraction"
	case KindGeneration:
		return "generation"
	default:
		return "unknown"
	}
}

var (
	ErrBadRequest = errors.New("bad request")
	ErrExtraction = errors.New("extraction error")
	ErrGeneration = errors.New("generation error")
)

// User-facing messages. Only the bad-request ones describe the input; the
// rest are generic and never carry the cause.
const (
	MsgNoFile          = "No file uploaded"
	MsgNoQuestion      = "No question provided"
	MsgNotPDF          = "Uploaded file is not a PDF"
	MsgTextTooLarge    = "Document text exceeds the maximum input length"
	MsgExtractionError = "Failed to read text from the document"
	MsgGenerationError = "Failed to generate a response"
)

// Error is returned by every failed Run. Message is safe to show to the
// caller; Err holds the cause for logs.
type Error struct {
	// Stage is the stage the operation failed to reach.
	Stage   Stage
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (%s)", e.Message, e.Stage)
	}
	return fmt.Sprintf("%s (%s): %v", e.Message, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the package sentinels by kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrBadRequest:
		return e.Kind == KindBadRequest || e.Kind == KindTooLarge
	case ErrExtraction:
		return e.Kind == KindExtraction
	case ErrGeneration:
		return e.Kind == KindGeneration
	}
	return false
}

// errorKind is the value written to the run ledger for err.
func errorKind(err error) string {
	var perr *Error
	if !errors.As(err, &perr) {
		return "unknown"
	}
	if kind, ok := generation.KindOf(err); ok {
		return perr.Kind.String() + ":" + kind.String()
	}
	return perr.Kind.String()
}
