// Package pipeline runs one summarize or answer operation over an uploaded
// document: validate, extract, build the prompt, generate.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"time"

	"github.com/Lllllllleong/docgpt/internal/extract"
	"github.com/Lllllllleong/docgpt/internal/generation"
	"github.com/Lllllllleong/docgpt/internal/models"
	"github.com/Lllllllleong/docgpt/internal/prompt"
	"github.com/google/uuid"
)

// Document is an uploaded file as received. It lives for one request.
type Document struct {
	Name      string
	MediaType string
	Data      []byte
}

// Operation selects summarize or answer; see prompt.Summarize and prompt.Answer.
type Operation = prompt.Operation

// Stage names the steps of an operation, in order.
type Stage string

const (
	StageReceived  Stage = "received"
	StageValidated Stage = "validated"
	StageExtracted Stage = "extracted"
	StagePrompted  Stage = "prompted"
	StageGenerated Stage = "generated"
	StageResponded Stage = "responded"
)

// Result is a successful operation.
type Result struct {
	RequestID string
	Operation Operation
	Text      string
	Stats     extract.Stats
	Truncated bool
}

// TextExtractor is satisfied by *extract.Extractor.
type TextExtractor interface {
	ExtractWithStats(ctx context.Context, data []byte) (string, extract.Stats, error)
}

// Pipeline holds the immutable collaborators shared by all operations.
type Pipeline struct {
	extractor TextExtractor
	builder   prompt.Builder
	client    generation.Client
	recorder  Recorder
}

// New wires a Pipeline. A nil recorder disables the ledger.
func New(extractor TextExtractor, builder prompt.Builder, client generation.Client, recorder Recorder) *Pipeline {
	if recorder == nil {
		recorder = NoopRecorder{}
	}
	return &Pipeline{
		extractor: extractor,
		builder:   builder,
		client:    client,
		recorder:  recorder,
	}
}

// Summarize returns a summary of doc.
func (p *Pipeline) Summarize(ctx context.Context, doc Document) (string, error) {
	res, err := p.Run(ctx, doc, prompt.Summarize())
	return res.Text, err
}

// Answer returns the answer to question based on doc.
func (p *Pipeline) Answer(ctx context.Context, doc Document, question string) (string, error) {
	res, err := p.Run(ctx, doc, prompt.Answer(question))
	return res.Text, err
}

// Run executes op over doc. Any failure stops the operation and is returned
// as an *Error; there are no partial results.
func (p *Pipeline) Run(ctx context.Context, doc Document, op Operation) (Result, error) {
	requestID := RequestID(ctx)
	logCtx := slog.With("requestId", requestID, "operation", op.Mode.String(), "filename", doc.Name)
	logCtx.Info("Received document operation.", "bytes", len(doc.Data))

	if err := validate(doc, op); err != nil {
		logCtx.Warn("Rejected invalid request.", "error", err)
		return Result{}, err
	}
	logCtx.Debug("Request validated.", "stage", StageValidated)

	fileHash := hashBytes(doc.Data)
	logCtx = logCtx.With("fileHash", fileHash)
	runID := p.start(ctx, logCtx, models.RunRecord{
		RequestID:        requestID,
		Operation:        op.Mode.String(),
		FileHash:         fileHash,
		OriginalFilename: doc.Name,
		Status:           models.StatusProcessing,
		CreatedAt:        time.Now(),
	})

	text, stats, err := p.extractor.ExtractWithStats(ctx, doc.Data)
	if err != nil {
		return Result{}, p.handleError(ctx, logCtx, runID, stats, &Error{
			Stage: StageExtracted, Kind: KindExtraction, Message: MsgExtractionError, Err: err,
		})
	}
	logCtx.Info("Text extracted.", "pageCount", stats.Pages, "emptyPages", stats.EmptyPages, "fragments", stats.Fragments)

	if err := p.builder.Check(text); err != nil {
		return Result{}, p.handleError(ctx, logCtx, runID, stats, &Error{
			Stage: StagePrompted, Kind: KindTooLarge, Message: MsgTextTooLarge, Err: err,
		})
	}
	_, truncated := p.builder.Bound(text)
	if truncated {
		logCtx.Warn("Document text truncated to the input limit.", "maxInputChars", p.builder.MaxInputChars)
	}
	promptText := p.builder.Build(text, op)
	logCtx.Debug("Prompt built.", "stage", StagePrompted, "promptLength", len(promptText))

	start := time.Now()
	output, err := p.client.Generate(ctx, promptText)
	if err != nil {
		return Result{}, p.handleError(ctx, logCtx, runID, stats, &Error{
			Stage: StageGenerated, Kind: KindGeneration, Message: MsgGenerationError, Err: err,
		})
	}
	logCtx.Info("Generation complete.", "latency", time.Since(start).String(), "outputLength", len(output))

	p.finish(ctx, logCtx, runID, models.RunRecord{Status: models.StatusCompleted, PageCount: stats.Pages})
	logCtx.Debug("Operation finished.", "stage", StageResponded)
	return Result{
		RequestID: requestID,
		Operation: op,
		Text:      output,
		Stats:     stats,
		Truncated: truncated,
	}, nil
}

func validate(doc Document, op Operation) error {
	if len(doc.Data) == 0 {
		return &Error{Stage: StageValidated, Kind: KindBadRequest, Message: MsgNoFile}
	}
	if op.Mode == prompt.ModeAnswer && strings.TrimSpace(op.Question) == "" {
		return &Error{Stage: StageValidated, Kind: KindBadRequest, Message: MsgNoQuestion}
	}
	if !declaresPDF(doc.MediaType) && !extract.IsPDF(doc.Data) {
		return &Error{
			Stage:   StageValidated,
			Kind:    KindBadRequest,
			Message: MsgNotPDF,
			Err:     fmt.Errorf("media type %q without PDF header", doc.MediaType),
		}
	}
	return nil
}

func declaresPDF(mediaType string) bool {
	mt, _, err := mime.ParseMediaType(mediaType)
	return err == nil && mt == "application/pdf"
}

// handleError logs the failure, marks the ledger record FAILED and returns
// perr. The cause is logged here and never shown to the caller.
func (p *Pipeline) handleError(ctx context.Context, logCtx *slog.Logger, runID string, stats extract.Stats, perr *Error) error {
	if perr.Kind == KindTooLarge {
		logCtx.Warn(perr.Message, "stage", perr.Stage, "error", perr.Err)
	} else {
		logCtx.Error(perr.Message, "stage", perr.Stage, "error", perr.Err)
	}
	p.finish(ctx, logCtx, runID, models.RunRecord{
		Status:       models.StatusFailed,
		PageCount:    stats.Pages,
		ErrorKind:    errorKind(perr),
		ErrorDetails: fmt.Sprintf("%s: %v", perr.Message, perr.Err),
	})
	return perr
}

func (p *Pipeline) start(ctx context.Context, logCtx *slog.Logger, rec models.RunRecord) string {
	id, err := p.recorder.Start(ctx, rec)
	if err != nil {
		logCtx.Error("Failed to create run record.", "error", err)
		return ""
	}
	return id
}

// finish records the terminal status even when ctx is already cancelled.
func (p *Pipeline) finish(ctx context.Context, logCtx *slog.Logger, runID string, rec models.RunRecord) {
	if runID == "" {
		return
	}
	if err := p.recorder.Finish(context.WithoutCancel(ctx), runID, rec); err != nil {
		logCtx.Error("CRITICAL: Failed to update run record status.", "status", rec.Status, "updateError", err)
	}
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type requestIDKey struct{}

// WithRequestID returns a context carrying id for RequestID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id carried by ctx, or a fresh uuid.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// IsBadRequest reports whether err should be shown to the caller verbatim.
func IsBadRequest(err error) bool {
	return errors.Is(err, ErrBadRequest)
}
