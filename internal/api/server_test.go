package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmobrien1/mdraft2/internal/convert"
	"github.com/jmobrien1/mdraft2/internal/embed"
	"github.com/jmobrien1/mdraft2/internal/metrics"
	"github.com/jmobrien1/mdraft2/internal/model"
	"github.com/jmobrien1/mdraft2/internal/pipeline"
	"github.com/jmobrien1/mdraft2/internal/queue"
	"github.com/jmobrien1/mdraft2/internal/repository"
	"github.com/jmobrien1/mdraft2/internal/signing"
)

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memBlobs) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	uri := "mem://bucket/" + key
	m.objects[uri] = data
	return uri, nil
}

func (m *memBlobs) Get(_ context.Context, uri string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[uri]
	if !ok {
		return nil, model.E(model.ErrStorage, "get", errors.New("missing"))
	}
	return data, nil
}

type captureDispatcher struct {
	mu  sync.Mutex
	ids []string
}

func (c *captureDispatcher) Enqueue(_ context.Context, _ string, p queue.Payload) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, p.DocumentID)
	return "t", nil
}

type fixedBackend struct{ dims int }

func (f fixedBackend) Embed(context.Context, string) ([]float32, error) {
	return make([]float32, f.dims), nil
}

type fakeDocs struct {
	doc *model.Document
	err error
}

func (f *fakeDocs) Ingest(context.Context, pipeline.Upload) (*model.Document, error) {
	return f.doc, f.err
}

func (f *fakeDocs) Process(context.Context, string) (*model.Document, error) {
	return f.doc, f.err
}

func (f *fakeDocs) Get(context.Context, string) (*model.Document, error) {
	return f.doc, f.err
}

func testOptions() Options {
	return Options{MaxUploadBytes: 1 << 20, ProcessTimeout: time.Minute, CORSOrigin: "http://localhost:3000"}
}

func newIntegrated(t *testing.T, signer *signing.Signer) (*Server, *captureDispatcher) {
	t.Helper()
	dispatcher := &captureDispatcher{}
	p := pipeline.New(pipeline.Deps{
		Blobs:       &memBlobs{objects: make(map[string][]byte)},
		Repo:        repository.NewMemory(),
		Dispatcher:  dispatcher,
		Converter:   convert.New(convert.NewLocalExtractor(), nil, ""),
		Embedder:    embed.New(fixedBackend{dims: 8}, 8),
		CallbackURL: "http://localhost/tasks/process",
		Logger:      zerolog.Nop(),
	})
	return New(testOptions(), p, signer, zerolog.Nop(), metrics.New()), dispatcher
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	body, ct := multipartBody(t, "file", filename, content)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	return req
}

func processRequestFor(id string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/tasks/process", strings.NewReader(`{"document_id":"`+id+`"}`))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestUploadProcessAndFetch(t *testing.T) {
	srv, dispatcher := newIntegrated(t, nil)
	h := srv.Handler()

	rec, body := do(t, h, uploadRequest(t, "notes.txt", "# Notes\nhello"))
	require.Equal(t, http.StatusAccepted, rec.Code)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "QUEUED", body["status"])
	assert.Equal(t, []string{id}, dispatcher.ids)

	rec, body = do(t, h, httptest.NewRequest(http.MethodGet, "/documents/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "QUEUED", body["status"])
	assert.Equal(t, "notes.txt", body["original_filename"])
	assert.NotContains(t, body, "output_text")

	rec, body = do(t, h, processRequestFor(id))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DONE", body["status"])

	rec, body = do(t, h, httptest.NewRequest(http.MethodGet, "/documents/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DONE", body["status"])
	assert.Equal(t, "# Notes\nhello", body["output_text"])
}

func TestUploadValidation(t *testing.T) {
	srv, _ := newIntegrated(t, nil)
	h := srv.Handler()

	rec, _ := do(t, h, uploadRequest(t, "empty.txt", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct := multipartBody(t, "other", "a.txt", "data")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	rec, _ = do(t, h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("plain"))
	rec, _ = do(t, h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadTooLarge(t *testing.T) {
	srv, _ := newIntegrated(t, nil)
	srv.opts.MaxUploadBytes = 16
	rec, _ := do(t, srv.Handler(), uploadRequest(t, "big.txt", strings.Repeat("x", 64)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestUploadMisconfiguredStorage(t *testing.T) {
	docs := &fakeDocs{err: model.E(model.ErrConfiguration, "put object", errors.New("bucket name is not configured"))}
	srv := New(testOptions(), docs, nil, zerolog.Nop(), nil)
	rec, body := do(t, srv.Handler(), uploadRequest(t, "a.pdf", "%PDF"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, body["error"], "bucket name is not configured")
}

func TestProcessValidation(t *testing.T) {
	srv, _ := newIntegrated(t, nil)
	h := srv.Handler()

	rec, _ := do(t, h, httptest.NewRequest(http.MethodPost, "/tasks/process", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, httptest.NewRequest(http.MethodPost, "/tasks/process", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, processRequestFor(uuid.NewString()))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProcessFailureReturns500(t *testing.T) {
	docs := &fakeDocs{
		doc: &model.Document{ID: "abc", Status: model.StatusFailed},
		err: model.E(model.ErrConversion, "convert", errors.New("corrupt")),
	}
	srv := New(testOptions(), docs, nil, zerolog.Nop(), nil)
	rec, body := do(t, srv.Handler(), processRequestFor("abc"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "abc", body["id"])
	assert.Equal(t, "FAILED", body["status"])
	assert.Contains(t, body["error"], "corrupt")
}

func TestProcessLookupFailureOmitsStatus(t *testing.T) {
	docs := &fakeDocs{err: model.E(model.ErrStorage, "get document", errors.New("connection refused"))}
	srv := New(testOptions(), docs, nil, zerolog.Nop(), nil)
	rec, body := do(t, srv.Handler(), processRequestFor("abc"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "abc", body["id"])
	assert.NotContains(t, body, "status")
	assert.Contains(t, body["error"], "connection refused")
}

func TestProcessSignature(t *testing.T) {
	signer := signing.NewSigner([]byte("secret"))
	srv, _ := newIntegrated(t, signer)
	h := srv.Handler()
	id := uuid.NewString()

	rec, _ := do(t, h, processRequestFor(id))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := processRequestFor(id)
	req.Header.Set(signing.Header, signer.Sign([]byte(`{"document_id":"`+id+`"}`)))
	rec, _ = do(t, h, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetDocumentErrors(t *testing.T) {
	srv, _ := newIntegrated(t, nil)
	h := srv.Handler()

	rec, _ := do(t, h, httptest.NewRequest(http.MethodGet, "/documents/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := do(t, h, httptest.NewRequest(http.MethodGet, "/documents/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", body["error"])
}

func TestGetDocumentHidesOutputUntilDone(t *testing.T) {
	text := "partial"
	id := uuid.NewString()
	docs := &fakeDocs{doc: &model.Document{ID: id, Status: model.StatusFailed, OutputText: &text}}
	srv := New(testOptions(), docs, nil, zerolog.Nop(), nil)
	rec, body := do(t, srv.Handler(), httptest.NewRequest(http.MethodGet, "/documents/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, body, "output_text")
}

func TestHealthMetricsAndCORS(t *testing.T) {
	srv, _ := newIntegrated(t, nil)
	h := srv.Handler()

	rec, body := do(t, h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = do(t, h, httptest.NewRequest(http.MethodOptions, "/upload", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mdraft_http_requests_total{code="200",method="GET"}`)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newIntegrated(t, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/upload", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
