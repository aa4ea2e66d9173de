package pipeline

import (
	"context"

	"github.com/Lllllllleong/docgpt/internal/models"
)

// Recorder keeps a ledger of operations. Start returns the id of the new
// record; Finish writes the terminal Status, PageCount, ErrorKind and
// ErrorDetails of rec onto it. Failures are logged by the pipeline and never
// change an operation's outcome.
type Recorder interface {
	Start(ctx context.Context, rec models.RunRecord) (string, error)
	Finish(ctx context.Context, id string, rec models.RunRecord) error
}

// NoopRecorder records nothing.
type NoopRecorder struct{}

func (NoopRecorder) Start(context.Context, models.RunRecord) (string, error) { return "", nil }

func (NoopRecorder) Finish(context.Context, string, models.RunRecord) error { return nil }
