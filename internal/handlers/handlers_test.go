package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/ats-analyzer/internal/models"
	"alfredoptarigan/ats-analyzer/internal/repositories"
	"alfredoptarigan/ats-analyzer/internal/services"
)

type stubEngine struct {
	results  map[string]models.AnalysisResult
	errs     map[string]error
	readyErr error
}

func (s *stubEngine) Name() string { return "stub" }

func (s *stubEngine) Ready() error { return s.readyErr }

func (s *stubEngine) Invoke(_ context.Context, req services.EngineRequest) (*models.AnalysisResult, error) {
	if err := s.errs[req.OriginalFilename]; err != nil {
		return nil, err
	}
	result := s.results[req.OriginalFilename]
	return &result, nil
}

type stubAnalysisRepo struct {
	mu        sync.Mutex
	analyses  map[uuid.UUID]models.Analysis
	createErr error
}

func (r *stubAnalysisRepo) Create(a *models.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.analyses[a.ID] = *a
	return nil
}

func (r *stubAnalysisRepo) FindByID(id uuid.UUID) (*models.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.analyses[id]
	if !ok {
		return nil, repositories.ErrAnalysisNotFound
	}
	return &a, nil
}

func (r *stubAnalysisRepo) ClaimQueued(uuid.UUID) (bool, error) { return false, nil }

func (r *stubAnalysisRepo) Requeue(uuid.UUID) error { return nil }

func (r *stubAnalysisRepo) FailStale(time.Time, string) (int64, error) { return 0, nil }

func (r *stubAnalysisRepo) UpdateResult(id uuid.UUID, results []models.AnalysisResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.analyses[id]
	a.Status = models.StatusCompleted
	a.Results = results
	r.analyses[id] = a
	return nil
}

func (r *stubAnalysisRepo) UpdateError(id uuid.UUID, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.analyses[id]
	a.Status = models.StatusFailed
	a.ErrorMessage = msg
	r.analyses[id] = a
	return nil
}

func (r *stubAnalysisRepo) FindPendingJobs(int) ([]models.Analysis, error) { return nil, nil }

type stubDocumentRepo struct {
	docs []models.Document
}

func (r *stubDocumentRepo) Create(d *models.Document) error {
	r.docs = append(r.docs, *d)
	return nil
}

func (r *stubDocumentRepo) FindByAnalysisID(uuid.UUID) ([]models.Document, error) {
	return r.docs, nil
}

type stubWorker struct {
	enqueued []uuid.UUID
}

func (w *stubWorker) Start(context.Context) {}

func (w *stubWorker) Stop() {}

func (w *stubWorker) EnqueueJob(id uuid.UUID) {
	w.enqueued = append(w.enqueued, id)
}

type testServer struct {
	app       *fiber.App
	uploadDir string
	servedDir string
	producer  string
	analyses  *stubAnalysisRepo
	documents *stubDocumentRepo
	worker    *stubWorker
}

func newTestServer(t *testing.T, engine services.ScoringEngine) *testServer {
	t.Helper()

	s := &testServer{
		uploadDir: t.TempDir(),
		servedDir: filepath.Join(t.TempDir(), "reports"),
		producer:  t.TempDir(),
		analyses:  &stubAnalysisRepo{analyses: map[uuid.UUID]models.Analysis{}},
		documents: &stubDocumentRepo{},
		worker:    &stubWorker{},
	}

	storage := services.NewStorageService(s.uploadDir, 1<<20, []string{"application/pdf"})
	analyzer := services.NewAnalyzerService(engine, nil, 1, nil)
	resolver := services.NewReportResolver(s.servedDir, s.producer, nil)

	analysisHandler := NewAnalysisHandler(analyzer, storage, s.analyses, s.documents, s.worker, 3, nil)
	resultHandler := NewResultHandler(s.analyses)
	reportHandler := NewReportHandler(resolver, nil)

	s.app = fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	api := s.app.Group("/api/v1")
	api.Post("/analyze", analysisHandler.HandleAnalyze)
	api.Post("/score", analysisHandler.HandleScore)
	api.Post("/missing", analysisHandler.HandleMissing)
	api.Post("/analyses", analysisHandler.HandleEnqueue)
	api.Get("/analyses/:id", resultHandler.HandleGetAnalysis)
	api.Get("/report/:filename", reportHandler.HandleGetReport)
	api.Get("/reports", reportHandler.HandleListReports)

	return s
}

func (s *testServer) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, body
}

func multipartRequest(t *testing.T, path, fileField string, fields map[string]string, files ...string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, name := range files {
		part, err := w.CreateFormFile(fileField, name)
		require.NoError(t, err)
		_, err = part.Write([]byte("%PDF-1.4 " + name))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func uploadedFiles(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestAnalyzeRanksBatch(t *testing.T) {
	engine := &stubEngine{results: map[string]models.AnalysisResult{
		"first.pdf":  {Score: 54, ReportURL: "/api/v1/report/first_report.pdf"},
		"second.pdf": {Score: 91},
	}}
	s := newTestServer(t, engine)

	req := multipartRequest(t, "/api/v1/analyze", "resumes", map[string]string{"jobDescription": "Go backend engineer"}, "first.pdf", "second.pdf")
	resp, body := s.do(t, req)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))

	var batch models.BatchResponse
	require.NoError(t, json.Unmarshal(body, &batch))

	assert.True(t, batch.Success)
	require.Len(t, batch.Results, 2)
	assert.Equal(t, 91.0, batch.Results[0].Score)
	assert.Equal(t, "second.pdf", batch.Results[0].Filename)
	assert.Equal(t, 54.0, batch.Results[1].Score)
	assert.Equal(t, "first.pdf", batch.Results[1].Filename)
	assert.NotEmpty(t, batch.Results[1].TempFilename)

	id, err := uuid.Parse(batch.AnalysisID)
	require.NoError(t, err)
	stored, err := s.analyses.FindByID(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Len(t, s.documents.docs, 2)
	assert.Len(t, uploadedFiles(t, s.uploadDir), 2)
}

func TestAnalyzeReturnsFailedEntries(t *testing.T) {
	engine := &stubEngine{errs: map[string]error{
		"a.pdf": fmt.Errorf("%w after 3m0s", services.ErrTimeout),
		"b.pdf": fmt.Errorf("%w: no JSON object in output", services.ErrMalformedOutput),
	}}
	s := newTestServer(t, engine)

	req := multipartRequest(t, "/api/v1/analyze", "resumes", map[string]string{"job_description": "jd"}, "a.pdf", "b.pdf")
	resp, body := s.do(t, req)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var batch models.BatchResponse
	require.NoError(t, json.Unmarshal(body, &batch))
	assert.True(t, batch.Success)
	require.Len(t, batch.Results, 2)
	for _, r := range batch.Results {
		assert.False(t, r.Success)
		assert.NotEmpty(t, r.Error)
	}
}

func TestAnalyzeRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		files  []string
		status int
	}{
		{name: "missing job description", files: []string{"a.pdf"}, status: fiber.StatusBadRequest},
		{name: "missing resumes", fields: map[string]string{"jobDescription": "jd"}, status: fiber.StatusBadRequest},
		{name: "too many resumes", fields: map[string]string{"jobDescription": "jd"}, files: []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf"}, status: fiber.StatusBadRequest},
		{name: "wrong file type", fields: map[string]string{"jobDescription": "jd"}, files: []string{"a.pdf", "notes.txt"}, status: fiber.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &stubEngine{})

			req := multipartRequest(t, "/api/v1/analyze", "resumes", tt.fields, tt.files...)
			resp, body := s.do(t, req)
			assert.Equal(t, tt.status, resp.StatusCode)

			var payload map[string]any
			require.NoError(t, json.Unmarshal(body, &payload))
			assert.NotEmpty(t, payload["error"])
			assert.EqualValues(t, tt.status, payload["code"])

			assert.Empty(t, uploadedFiles(t, s.uploadDir), "rejected requests leave no uploads behind")
		})
	}
}

func TestAnalyzeEngineNotFound(t *testing.T) {
	s := newTestServer(t, &stubEngine{readyErr: fmt.Errorf("%w: entry point missing", services.ErrEngineNotFound)})

	req := multipartRequest(t, "/api/v1/analyze", "resumes", map[string]string{"jobDescription": "jd"}, "a.pdf")
	resp, _ := s.do(t, req)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestScoreAndMissing(t *testing.T) {
	engine := &stubEngine{
		results: map[string]models.AnalysisResult{
			"cv.pdf": {
				Score:         77,
				MissingSkills: models.TermGroups{"technical": {"kafka"}},
				KeywordMatch:  61,
			},
		},
		errs: map[string]error{"bad.pdf": fmt.Errorf("%w: Could not extract text", services.ErrEngineRejected)},
	}
	s := newTestServer(t, engine)

	resp, body := s.do(t, multipartRequest(t, "/api/v1/score", "resume", map[string]string{"jobDescription": "jd"}, "cv.pdf"))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"score": 77}`, string(body))

	resp, body = s.do(t, multipartRequest(t, "/api/v1/missing", "resume", map[string]string{"jobDescription": "jd"}, "cv.pdf"))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{
		"missing_keywords": {"technical": ["kafka"]},
		"suggestions": [],
		"section_scores": {},
		"semantic_similarity": 0,
		"keyword_match": 61
	}`, string(body))

	resp, body = s.do(t, multipartRequest(t, "/api/v1/score", "resume", map[string]string{"jobDescription": "jd"}, "bad.pdf"))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "Could not extract text")

	resp, _ = s.do(t, multipartRequest(t, "/api/v1/missing", "resume", nil, "cv.pdf"))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestEnqueueAndFetchAnalysis(t *testing.T) {
	s := newTestServer(t, &stubEngine{})

	resp, body := s.do(t, multipartRequest(t, "/api/v1/analyses", "resumes", map[string]string{"jobDescription": "jd"}, "a.pdf", "b.pdf"))
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode, string(body))

	var enqueued models.EnqueueResponse
	require.NoError(t, json.Unmarshal(body, &enqueued))
	assert.Equal(t, string(models.StatusQueued), enqueued.Status)
	require.Len(t, s.worker.enqueued, 1)
	assert.Equal(t, enqueued.ID, s.worker.enqueued[0].String())

	resp, body = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+enqueued.ID, nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var analysis models.AnalysisResponse
	require.NoError(t, json.Unmarshal(body, &analysis))
	assert.Equal(t, "queued", analysis.Status)
	assert.Equal(t, 2, analysis.DocumentCount)
	assert.Empty(t, analysis.Results)

	resp, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/analyses/not-a-uuid", nil))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+uuid.NewString(), nil))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestEnqueueRemovesUploadsWhenStoreFails(t *testing.T) {
	s := newTestServer(t, &stubEngine{})
	s.analyses.createErr = fmt.Errorf("connection refused")

	resp, body := s.do(t, multipartRequest(t, "/api/v1/analyses", "resumes", map[string]string{"jobDescription": "jd"}, "a.pdf", "b.pdf"))
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode, string(body))

	assert.Empty(t, uploadedFiles(t, s.uploadDir))
	assert.Empty(t, s.worker.enqueued)
}

func TestGetReport(t *testing.T) {
	s := newTestServer(t, &stubEngine{})
	require.NoError(t, os.WriteFile(filepath.Join(s.producer, "cv_report.pdf"), []byte("%PDF-1.4 report"), 0o644))

	resp, body := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/report/cv_report.pdf", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="cv_report.pdf"`, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, int64(len("%PDF-1.4 report")), resp.ContentLength)
	assert.Equal(t, "%PDF-1.4 report", string(body))

	_, err := os.Stat(filepath.Join(s.servedDir, "cv_report.pdf"))
	assert.NoError(t, err, "report is mirrored into the served directory")

	for _, name := range []string{"..%2F..%2Fetc%2Fpasswd.pdf", "notes.txt", "report.pdf..%5Cx.pdf"} {
		resp, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/report/"+name, nil))
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, name)
	}

	resp, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/report/missing.pdf", nil))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestListReports(t *testing.T) {
	s := newTestServer(t, &stubEngine{})

	resp, body := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"reports": []}`, string(body))

	require.NoError(t, os.WriteFile(filepath.Join(s.servedDir, "b.pdf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.servedDir, "a.pdf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.servedDir, "skip.txt"), []byte("x"), 0o644))

	resp, body = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"reports": ["a.pdf", "b.pdf"]}`, string(body))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: nil, want: fiber.StatusOK},
		{err: fmt.Errorf("%w: x", services.ErrValidation), want: fiber.StatusBadRequest},
		{err: fmt.Errorf("%w: x", services.ErrInvalidFilename), want: fiber.StatusBadRequest},
		{err: fmt.Errorf("%w: x", services.ErrEngineRejected), want: fiber.StatusBadRequest},
		{err: fmt.Errorf("%w: x", services.ErrReportNotFound), want: fiber.StatusNotFound},
		{err: repositories.ErrAnalysisNotFound, want: fiber.StatusNotFound},
		{err: fmt.Errorf("%w after 1s", services.ErrTimeout), want: fiber.StatusGatewayTimeout},
		{err: fmt.Errorf("%w: x", services.ErrEngineNotFound), want: fiber.StatusInternalServerError},
		{err: fiber.NewError(fiber.StatusServiceUnavailable, "down"), want: fiber.StatusServiceUnavailable},
		{err: assert.AnError, want: fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), fmt.Sprint(tt.err))
	}
}
