package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Timeout bounds every call to Next. Expiry is reported as KindTransport even
// if Next ignores its context.
type Timeout struct {
	Next  Client
	Limit time.Duration
}

type generated struct {
	text string
	err  error
}

func (t *Timeout) Generate(ctx context.Context, prompt string) (string, error) {
	if t.Limit <= 0 {
		return t.Next.Generate(ctx, prompt)
	}

	callCtx, cancel := context.WithTimeout(ctx, t.Limit)
	defer cancel()

	done := make(chan generated, 1)
	go func() {
		text, err := t.Next.Generate(callCtx, prompt)
		done <- generated{text: text, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", t.timedOut(out.err)
		}
		return out.text, out.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return "", &Error{Kind: KindTransport, Backend: backendName(t.Next), Err: ctx.Err()}
		}
		return "", t.timedOut(callCtx.Err())
	}
}

func (t *Timeout) timedOut(cause error) error {
	return &Error{
		Kind:    KindTransport,
		Backend: backendName(t.Next),
		Err:     fmt.Errorf("timed out after %s: %w", t.Limit, cause),
	}
}

func (t *Timeout) Close() error { return Close(t.Next) }

// Retrying retries Next on KindTransport failures only, with a doubling
// backoff. Every other kind, content-safety rejections included, is returned
// on the first occurrence.
type Retrying struct {
	Next       Client
	MaxRetries int
	Backoff    time.Duration
}

func (r *Retrying) Generate(ctx context.Context, prompt string) (string, error) {
	backoff := r.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		text, err := r.Next.Generate(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if kind, _ := KindOf(err); kind != KindTransport || attempt == r.MaxRetries || ctx.Err() != nil {
			return "", err
		}

		slog.Warn(
			"Generation failed, will retry.",
			"attempt", attempt+1,
			"maxRetries", r.MaxRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "error", ctx.Err())
			return "", lastErr
		}
	}
	return "", lastErr
}

func (r *Retrying) Close() error { return Close(r.Next) }

func backendName(c Client) string {
	switch c.(type) {
	case *Vertex:
		return backendVertex
	case *OpenAI:
		return backendOpenAI
	case *Anthropic:
		return backendAnthropic
	default:
		return "generation"
	}
}
