package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Lllllllleong/docgpt/internal/config"
	"github.com/Lllllllleong/docgpt/internal/extract"
	"github.com/Lllllllleong/docgpt/internal/generation"
	"github.com/Lllllllleong/docgpt/internal/pipeline"
	"github.com/Lllllllleong/docgpt/internal/prompt"
	"github.com/Lllllllleong/docgpt/internal/testutil"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type filePart struct {
	name        string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, path string, file *filePart, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, documentField, file.name))
		h.Set("Content-Type", file.contentType)
		pw, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("failed to create part: %v", err)
		}
		if _, err := pw.Write(file.data); err != nil {
			t.Fatalf("failed to write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func foxPart(t *testing.T) *filePart {
	return &filePart{name: "fox.pdf", contentType: "application/pdf", data: testutil.FoxPDF(t)}
}

// recordingClient echoes the prompt back and remembers every prompt it saw.
type recordingClient struct {
	mu      sync.Mutex
	prompts []string
}

func (r *recordingClient) Generate(ctx context.Context, p string) (string, error) {
	r.mu.Lock()
	r.prompts = append(r.prompts, p)
	r.mu.Unlock()
	return p, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Env:              "test",
		MaxUploadBytes:   20 << 20,
		MaxInputChars:    500000,
		InputLimitPolicy: "truncate",
	}
}

func newTestServer(cfg *config.Config, client generation.Client) *Server {
	builder := prompt.Builder{MaxInputChars: cfg.MaxInputChars, Policy: prompt.Policy(cfg.InputLimitPolicy)}
	return New(cfg, pipeline.New(extract.New(), builder, client, nil))
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not a JSON object: %v (%q)", err, rec.Body.String())
	}
	return body
}

func TestHealth(t *testing.T) {
	s := newTestServer(testConfig(), &recordingClient{})
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "Server is working..." {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestUpload_Summary(t *testing.T) {
	client := &recordingClient{}
	s := newTestServer(testConfig(), client)

	rec := serve(s, multipartRequest(t, "/upload", foxPart(t), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if !strings.Contains(body["summary"], testutil.FoxText) {
		t.Errorf("expected summary generated from the fox text, got %q", body["summary"])
	}
	if len(client.prompts) != 1 || !strings.HasPrefix(client.prompts[0], prompt.SummarizeInstruction) {
		t.Errorf("unexpected prompts %q", client.prompts)
	}
}

func TestAsk_Answer(t *testing.T) {
	client := &recordingClient{}
	s := newTestServer(testConfig(), client)

	rec := serve(s, multipartRequest(t, "/ask", foxPart(t), map[string]string{"question": "What does the fox do?"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if _, ok := body["answer"]; !ok {
		t.Fatalf("expected an answer field, got %v", body)
	}
	if len(client.prompts) != 1 {
		t.Fatalf("expected one generation call, got %d", len(client.prompts))
	}
	if p := client.prompts[0]; !strings.Contains(p, "What does the fox do?") || !strings.Contains(p, testutil.FoxText) {
		t.Errorf("prompt is missing the question or the document text: %q", p)
	}
}

func TestBadRequests(t *testing.T) {
	testCases := []struct {
		name    string
		path    string
		file    func(t *testing.T) *filePart
		fields  map[string]string
		wantErr string
	}{
		{"UploadWithoutFile", "/upload", nil, nil, pipeline.MsgNoFile},
		{"AskWithoutFile", "/ask", nil, map[string]string{"question": "why?"}, pipeline.MsgNoFile},
		{"AskWithoutQuestion", "/ask", foxPart, nil, pipeline.MsgNoQuestion},
		{"AskWithBlankQuestion", "/ask", foxPart, map[string]string{"question": "   "}, pipeline.MsgNoQuestion},
		{"UploadNotPDF", "/upload", func(t *testing.T) *filePart {
			return &filePart{name: "notes.txt", contentType: "text/plain", data: []byte("just some notes")}
		}, nil, pipeline.MsgNotPDF},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := &recordingClient{}
			s := newTestServer(testConfig(), client)

			var file *filePart
			if tc.file != nil {
				file = tc.file(t)
			}
			rec := serve(s, multipartRequest(t, tc.path, file, tc.fields))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if got := decode(t, rec)["error"]; got != tc.wantErr {
				t.Errorf("expected error %q, got %q", tc.wantErr, got)
			}
			if len(client.prompts) != 0 {
				t.Error("generation must not run for a bad request")
			}
		})
	}
}

func TestUpload_NotMultipart(t *testing.T) {
	s := newTestServer(testConfig(), &recordingClient{})
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(`{"document":"x"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := serve(s, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTooLarge(t *testing.T) {
	t.Run("UploadOverByteLimit", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxUploadBytes = 1024
		s := newTestServer(cfg, &recordingClient{})

		big := &filePart{name: "big.pdf", contentType: "application/pdf", data: bytes.Repeat([]byte("x"), 64*1024)}
		rec := serve(s, multipartRequest(t, "/upload", big, nil))
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected 413, got %d: %s", rec.Code, rec.Body.String())
		}
		if decode(t, rec)["error"] == "" {
			t.Error("expected an error message")
		}
	})

	t.Run("TextOverInputLimitWithReject", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxInputChars = 10
		cfg.InputLimitPolicy = "reject"
		client := &recordingClient{}
		s := newTestServer(cfg, client)

		rec := serve(s, multipartRequest(t, "/upload", foxPart(t), nil))
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected 413, got %d: %s", rec.Code, rec.Body.String())
		}
		if got := decode(t, rec)["error"]; got != pipeline.MsgTextTooLarge {
			t.Errorf("unexpected error %q", got)
		}
		if len(client.prompts) != 0 {
			t.Error("generation must not run for rejected input")
		}
	})
}

func TestInternalErrorsAreGeneric(t *testing.T) {
	t.Run("GenerationTimeout", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		stuck := generation.ClientFunc(func(ctx context.Context, p string) (string, error) {
			<-release
			return "", nil
		})
		s := newTestServer(testConfig(), &generation.Timeout{Next: stuck, Limit: 20 * time.Millisecond})

		rec := serve(s, multipartRequest(t, "/upload", foxPart(t), nil))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		body := decode(t, rec)
		if body["error"] != pipeline.MsgGenerationError {
			t.Errorf("expected the generic message, got %q", body["error"])
		}
		if strings.Contains(rec.Body.String(), "timed out") || strings.Contains(rec.Body.String(), "deadline") {
			t.Errorf("cause leaked into the response: %s", rec.Body.String())
		}
	})

	t.Run("BackendSecretNotEchoed", func(t *testing.T) {
		failing := generation.ClientFunc(func(ctx context.Context, p string) (string, error) {
			return "", &generation.Error{Kind: generation.KindAuth, Backend: "openai", Err: fmt.Errorf("invalid key sk-secret")}
		})
		s := newTestServer(testConfig(), failing)

		rec := serve(s, multipartRequest(t, "/ask", foxPart(t), map[string]string{"question": "why?"}))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "sk-secret") {
			t.Errorf("cause leaked into the response: %s", rec.Body.String())
		}
	})

	t.Run("UnreadablePDF", func(t *testing.T) {
		bad := &filePart{name: "bad.pdf", contentType: "application/pdf", data: []byte("%PDF-1.4\n%%EOF\n")}
		s := newTestServer(testConfig(), &recordingClient{})

		rec := serve(s, multipartRequest(t, "/upload", bad, nil))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		if got := decode(t, rec)["error"]; got != pipeline.MsgExtractionError {
			t.Errorf("unexpected error %q", got)
		}
	})
}

func TestAsk_ConcurrentRequestsAreIsolated(t *testing.T) {
	client := &recordingClient{}
	s := newTestServer(testConfig(), client)

	const n = 8
	bodies := make([]string, n)
	reqs := make([]*http.Request, n)
	for i := range reqs {
		bodies[i] = fmt.Sprintf("Body of document %02d", i)
		file := &filePart{name: fmt.Sprintf("doc%02d.pdf", i), contentType: "application/pdf", data: testutil.TextPDF(t, bodies[i])}
		reqs[i] = multipartRequest(t, "/ask", file, map[string]string{"question": fmt.Sprintf("question number %02d?", i)})
	}

	answers := make([]string, n)
	var eg errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		eg.Go(func() error {
			rec := serve(s, reqs[i])
			if rec.Code != http.StatusOK {
				return fmt.Errorf("request %d: status %d", i, rec.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				return err
			}
			answers[i] = body["answer"]
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(client.prompts) != n {
		t.Errorf("expected %d generation calls, got %d", n, len(client.prompts))
	}
	for i, answer := range answers {
		if !strings.Contains(answer, fmt.Sprintf("Question: question number %02d?\n", i)) {
			t.Errorf("answer %d does not carry its own question: %q", i, answer)
		}
		if !strings.Contains(answer, bodies[i]) {
			t.Errorf("answer %d does not carry its own document: %q", i, answer)
		}
		for j, other := range bodies {
			if j != i && strings.Contains(answer, other) {
				t.Errorf("answer %d carries the text of document %d: %q", i, j, answer)
			}
		}
	}
}

func TestRequestID(t *testing.T) {
	s := newTestServer(testConfig(), &recordingClient{})

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	if _, err := uuid.Parse(rec.Header().Get(requestIDHeader)); err != nil {
		t.Errorf("expected a uuid request id, got %q", rec.Header().Get(requestIDHeader))
	}

	rec = serve(s, multipartRequest(t, "/upload", nil, nil))
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("expected a request id on error responses")
	}

	incoming := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, incoming)
	rec = serve(s, req)
	if got := rec.Header().Get(requestIDHeader); got != incoming {
		t.Errorf("expected the caller's id %q, got %q", incoming, got)
	}
}

func TestCORS(t *testing.T) {
	testCases := []struct {
		name      string
		allowed   []string
		origin    string
		wantAllow bool
	}{
		{"AnyOriginWhenUnset", nil, "https://somewhere.test", true},
		{"ExactOrigin", []string{"http://localhost:3000"}, "http://localhost:3000", true},
		{"HostPattern", []string{"*.docgpt.test"}, "https://app.docgpt.test", true},
		{"PortWildcard", []string{"localhost:*"}, "http://localhost:5173", true},
		{"NotListed", []string{"http://localhost:3000"}, "https://evil.test", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.AllowedOrigins = tc.allowed
			s := newTestServer(cfg, &recordingClient{})

			req := httptest.NewRequest(http.MethodOptions, "/upload", nil)
			req.Header.Set("Origin", tc.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rec := serve(s, req)

			got := rec.Header().Get("Access-Control-Allow-Origin")
			if tc.wantAllow && got != tc.origin {
				t.Errorf("expected origin %q to be allowed, got header %q (status %d)", tc.origin, got, rec.Code)
			}
			if !tc.wantAllow && got != "" {
				t.Errorf("expected origin %q to be refused, got header %q", tc.origin, got)
			}
		})
	}
}

func TestMatchOriginPattern(t *testing.T) {
	testCases := []struct {
		pattern, host string
		want          bool
	}{
		{"example.com", "example.com", true},
		{"*.example.com", "api.example.com", true},
		{"*.example.com", "example.com", false},
		{"localhost:*", "localhost:8080", true},
		{"localhost:*", "remotehost:8080", false},
		{"example.com", "example.org", false},
	}
	for _, tc := range testCases {
		if got := matchOriginPattern(tc.pattern, tc.host); got != tc.want {
			t.Errorf("matchOriginPattern(%q, %q) = %v, want %v", tc.pattern, tc.host, got, tc.want)
		}
	}
}
