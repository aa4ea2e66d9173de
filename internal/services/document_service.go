package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/docgpt/internal/config"
	"github.com/Lllllllleong/docgpt/internal/extract"
	"github.com/Lllllllleong/docgpt/internal/gcp"
	"github.com/Lllllllleong/docgpt/internal/generation"
	"github.com/Lllllllleong/docgpt/internal/pipeline"
	"github.com/Lllllllleong/docgpt/internal/prompt"
	"github.com/Lllllllleong/docgpt/internal/server"
)

// DocumentService owns the clients behind the HTTP surface.
type DocumentService struct {
	cfg      *config.Config
	client   generation.Client
	recorder *gcp.FirestoreRecorder
	server   *server.Server
}

// NewDocumentService builds the service from cfg: generation backend,
// optional Firestore run ledger, pipeline and router.
func NewDocumentService(ctx context.Context, cfg *config.Config) (*DocumentService, error) {
	client, err := generation.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}

	s := &DocumentService{cfg: cfg, client: client}

	var recorder pipeline.Recorder
	if cfg.FirestoreCollection != "" {
		s.recorder, err = gcp.NewFirestoreRecorder(ctx, cfg.ProjectID, cfg.FirestoreCollection)
		if err != nil {
			_ = generation.Close(client)
			return nil, fmt.Errorf("failed to create run ledger: %w", err)
		}
		recorder = s.recorder
	}

	builder := prompt.Builder{
		MaxInputChars: cfg.MaxInputChars,
		Policy:        prompt.Policy(cfg.InputLimitPolicy),
	}
	p := pipeline.New(extract.New(), builder, client, recorder)
	s.server = server.New(cfg, p)

	slog.Info("Document service initialized.",
		"generationBackend", cfg.GenerationBackend,
		"generationModel", cfg.GenerationModel,
		"inputLimitPolicy", cfg.InputLimitPolicy,
		"maxInputChars", cfg.MaxInputChars,
		"runLedger", cfg.FirestoreCollection != "",
	)
	return s, nil
}

// Handler returns the HTTP handler.
func (s *DocumentService) Handler() http.Handler { return s.server.Handler() }

// Close releases the generation and Firestore clients.
func (s *DocumentService) Close() error {
	var errs []error
	if err := generation.Close(s.client); err != nil {
		errs = append(errs, fmt.Errorf("generation client: %w", err))
	}
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("firestore client: %w", err))
		}
	}
	return errors.Join(errs...)
}
