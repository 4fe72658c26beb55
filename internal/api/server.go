// Package api exposes the HTTP surface: uploads, the task callback that runs
// processing, document lookup, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jmobrien1/mdraft2/internal/metrics"
	"github.com/jmobrien1/mdraft2/internal/model"
	"github.com/jmobrien1/mdraft2/internal/pipeline"
	"github.com/jmobrien1/mdraft2/internal/signing"
)

const maxCallbackBody = 64 << 10

// Documents is the pipeline as seen by the handlers.
type Documents interface {
	Ingest(ctx context.Context, up pipeline.Upload) (*model.Document, error)
	Process(ctx context.Context, id string) (*model.Document, error)
	Get(ctx context.Context, id string) (*model.Document, error)
}

// Options configures a Server.
type Options struct {
	Address        string
	MaxUploadBytes int64
	ProcessTimeout time.Duration
	CORSOrigin     string
}

// Server exposes HTTP endpoints for uploads and document visibility.
type Server struct {
	opts    Options
	docs    Documents
	signer  *signing.Signer
	log     zerolog.Logger
	metrics *metrics.Metrics
	handler http.Handler
	once    sync.Once
}

// New constructs a Server.
func New(opts Options, docs Documents, signer *signing.Signer, log zerolog.Logger, m *metrics.Metrics) *Server {
	return &Server{opts: opts, docs: docs, signer: signer, log: log, metrics: m}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	s.once.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /health", s.handleHealth)
		mux.HandleFunc("POST /upload", s.handleUpload)
		mux.HandleFunc("POST /tasks/process", s.handleProcess)
		mux.HandleFunc("GET /documents/{id}", s.handleDocument)
		mux.Handle("GET /metrics", s.metrics.Handler())
		s.handler = s.corsMiddleware(s.loggingMiddleware(mux))
	})
	return s.handler
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.opts.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	s.log.Info().Str("address", s.opts.Address).Msg("api listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+1<<20)
	mr, err := r.MultipartReader()
	if err != nil {
		respondError(w, http.StatusBadRequest, "expecting multipart form with a file field")
		return
	}
	part, err := nextFilePart(mr)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		respondError(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer part.Close()

	tmp, status, err := s.persistTemp(part)
	if err != nil {
		respondError(w, status, err.Error())
		return
	}
	defer tmp.cleanup()

	doc, err := s.docs.Ingest(r.Context(), pipeline.Upload{
		Reader:      tmp.f,
		Size:        tmp.size,
		Filename:    tmp.filename,
		ContentType: tmp.contentType,
	})
	if err != nil {
		s.log.Error().Err(err).Str("filename", tmp.filename).Msg("upload failed")
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"id":     doc.ID,
		"status": string(doc.Status),
	})
}

type processRequest struct {
	DocumentID string `json:"document_id"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if !s.signer.Validate(body, r.Header.Get(signing.Header)) {
		respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	var req processRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.DocumentID == "" {
		respondError(w, http.StatusBadRequest, "document_id required")
		return
	}

	ctx := r.Context()
	if s.opts.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ProcessTimeout)
		defer cancel()
	}
	doc, err := s.docs.Process(ctx, req.DocumentID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case err != nil:
		resp := map[string]string{
			"id":    req.DocumentID,
			"error": err.Error(),
		}
		if doc != nil {
			resp["status"] = string(doc.Status)
		}
		respondJSON(w, http.StatusInternalServerError, resp)
	default:
		respondJSON(w, http.StatusOK, map[string]string{
			"id":     doc.ID,
			"status": string(doc.Status),
		})
	}
}

type documentResponse struct {
	ID               string  `json:"id"`
	Status           string  `json:"status"`
	OriginalFilename string  `json:"original_filename"`
	OutputText       *string `json:"output_text,omitempty"`
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	doc, err := s.docs.Get(r.Context(), id)
	if err != nil {
		respondError(w, statusFor(err), errorMessage(err))
		return
	}
	resp := documentResponse{
		ID:               doc.ID,
		Status:           string(doc.Status),
		OriginalFilename: doc.OriginalFilename,
	}
	if doc.Status == model.StatusDone {
		resp.OutputText = doc.OutputText
	}
	respondJSON(w, http.StatusOK, resp)
}

type tempUpload struct {
	f           *os.File
	size        int64
	contentType string
	filename    string
}

func (t *tempUpload) cleanup() {
	t.f.Close()
	os.Remove(t.f.Name())
}

// persistTemp spools the file part to disk so the blob store gets a sized,
// seekable reader. The returned status applies when err is non-nil.
func (s *Server) persistTemp(part *multipart.Part) (*tempUpload, int, error) {
	tmpFile, err := os.CreateTemp("", "mdraft-upload-*")
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("create temp file: %w", err)
	}
	fail := func(status int, err error) (*tempUpload, int, error) {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return nil, status, err
	}
	written, err := io.Copy(tmpFile, io.LimitReader(part, s.opts.MaxUploadBytes+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fail(http.StatusRequestEntityTooLarge, errors.New("upload too large"))
		}
		return fail(http.StatusBadRequest, fmt.Errorf("read file: %w", err))
	}
	if written > s.opts.MaxUploadBytes {
		return fail(http.StatusRequestEntityTooLarge,
			fmt.Errorf("file exceeds limit (%d bytes)", s.opts.MaxUploadBytes))
	}
	if written == 0 {
		return fail(http.StatusBadRequest, errors.New("empty file"))
	}
	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		return fail(http.StatusInternalServerError, fmt.Errorf("rewind temp file: %w", err))
	}
	contentType := part.Header.Get("Content-Type")
	if contentType == "application/octet-stream" {
		contentType = ""
	}
	return &tempUpload{
		f:           tmpFile,
		size:        written,
		contentType: contentType,
		filename:    part.FileName(),
	}, 0, nil
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch model.KindOf(err) {
	case model.ErrValidation:
		return http.StatusBadRequest
	case model.ErrNotFound:
		return http.StatusNotFound
	case model.ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	if errors.Is(err, model.ErrNotFound) {
		return "not found"
	}
	return err.Error()
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.opts.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.Request(r.Method, rec.status)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
