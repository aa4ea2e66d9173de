// Package server exposes the document pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/docgpt/internal/config"
	"github.com/Lllllllleong/docgpt/internal/models"
	"github.com/Lllllllleong/docgpt/internal/pipeline"
	"github.com/Lllllllleong/docgpt/internal/prompt"
	"github.com/gin-gonic/gin"
)

const (
	documentField = "document"
	questionField = "question"

	healthMessage   = "Server is working..."
	msgUploadTooBig = "Uploaded file exceeds the maximum size"
	msgInternal     = "Internal server error"
)

// Runner is satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, doc pipeline.Document, op pipeline.Operation) (pipeline.Result, error)
}

// Server holds the router and the pipeline it serves.
type Server struct {
	cfg    *config.Config
	runner Runner
	router *gin.Engine
}

// New builds the gin router with its middleware and routes.
func New(cfg *config.Config, runner Runner) *Server {
	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(requestLogger())
	router.Use(corsMiddleware(cfg.AllowedOrigins))

	s := &Server{cfg: cfg, runner: runner, router: router}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/", s.health)
	s.router.POST("/upload", s.upload)
	s.router.POST("/ask", s.ask)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) health(c *gin.Context) {
	c.String(http.StatusOK, healthMessage)
}

func (s *Server) upload(c *gin.Context) {
	res, ok := s.run(c, prompt.Summarize)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.UploadResponse{Summary: res.Text})
}

func (s *Server) ask(c *gin.Context) {
	res, ok := s.run(c, func() pipeline.Operation {
		return prompt.Answer(c.PostForm(questionField))
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.AskResponse{Answer: res.Text})
}

// run reads the upload, runs the operation and writes the error response
// on failure. op is called after the multipart form has been parsed.
func (s *Server) run(c *gin.Context, op func() pipeline.Operation) (pipeline.Result, bool) {
	if s.cfg.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)
	}

	doc, err := readDocument(c)
	if err != nil {
		if isTooLarge(err) {
			slog.Warn("Rejected oversized upload.", "requestId", c.GetString("requestId"), "maxUploadBytes", s.cfg.MaxUploadBytes)
			c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: msgUploadTooBig})
			return pipeline.Result{}, false
		}
		slog.Error("Failed to read uploaded file.", "requestId", c.GetString("requestId"), "error", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: msgInternal})
		return pipeline.Result{}, false
	}

	res, err := s.runner.Run(c.Request.Context(), doc, op())
	if err != nil {
		// Error is already logged by the pipeline.
		writeError(c, err)
		return pipeline.Result{}, false
	}
	return res, true
}

// readDocument returns the "document" part of the multipart form. A missing
// part yields an empty Document for the pipeline to reject.
func readDocument(c *gin.Context) (pipeline.Document, error) {
	fileHeader, err := c.FormFile(documentField)
	if err != nil {
		if isTooLarge(err) {
			return pipeline.Document{}, err
		}
		return pipeline.Document{}, nil
	}

	f, err := fileHeader.Open()
	if err != nil {
		return pipeline.Document{}, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return pipeline.Document{}, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	return pipeline.Document{
		Name:      fileHeader.Filename,
		MediaType: fileHeader.Header.Get("Content-Type"),
		Data:      data,
	}, nil
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func writeError(c *gin.Context, err error) {
	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: msgInternal})
		return
	}
	switch perr.Kind {
	case pipeline.KindBadRequest:
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: perr.Message})
	case pipeline.KindTooLarge:
		c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: perr.Message})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: perr.Message})
	}
}
