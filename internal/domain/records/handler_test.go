package records

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthcompanion/api/internal/domain/analysis"
	"github.com/healthcompanion/api/internal/domain/extraction"
	"github.com/healthcompanion/api/internal/platform/auth"
	"github.com/healthcompanion/api/internal/platform/llm"
	"github.com/healthcompanion/api/internal/platform/objectstore"
	"github.com/healthcompanion/api/internal/platform/ocr"
	"github.com/healthcompanion/api/internal/platform/recordstore"
)

type stubOCR struct{ blocks []ocr.Block }

func (s *stubOCR) DetectText(context.Context, []byte) ([]ocr.Block, error) {
	return s.blocks, nil
}

func (s *stubOCR) AnalyzeDocument(context.Context, []byte) ([]ocr.Block, error) {
	return s.blocks, nil
}

type stubModel struct{ response string }

func (s *stubModel) Complete(context.Context, string, string) (string, error) {
	return s.response, nil
}

func (s *stubModel) CompleteWithImage(context.Context, string, []byte, string, string) (string, error) {
	return s.response, nil
}

func (s *stubModel) Retrieve(context.Context, string, int) ([]llm.RetrievedPassage, error) {
	return nil, nil
}

type harness struct {
	e       *echo.Echo
	token   string
	index   *recordstore.MemStore
	objects *objectstore.MemStore
}

func newHarness(t *testing.T, blocks []ocr.Block) *harness {
	t.Helper()

	objects := objectstore.NewMemStore()
	index := recordstore.NewMemStore()
	sessions := auth.NewManager("test-secret", time.Hour)

	extract := extraction.NewService(&stubOCR{blocks: blocks})
	analyzer := analysis.NewService(extract, &stubModel{response: "LAB_REPORT"}, zerolog.Nop())
	svc := newTestService(objects, index)
	handler := NewHandler(svc, extract, analyzer, zerolog.Nop())

	e := echo.New()
	api := e.Group("/api/v1", auth.Middleware(sessions))
	handler.RegisterRoutes(api)

	if err := index.PutUser(context.Background(), &recordstore.UserRecord{
		UserID:    "alice",
		PatientID: "patient-alice",
		Username:  "alice",
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	token, err := sessions.Issue(auth.Session{UserID: "alice", Username: "alice", PatientID: "patient-alice"})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return &harness{e: e, token: token, index: index, objects: objects}
}

func (h *harness) upload(t *testing.T, fileName string, content []byte) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", &body)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+h.token)
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func (h *harness) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+h.token)
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func labReportBlocks() []ocr.Block {
	childOf := func(ids ...string) []ocr.Relationship {
		return []ocr.Relationship{{Type: ocr.RelationChild, IDs: ids}}
	}
	return []ocr.Block{
		{Type: ocr.BlockLine, Text: "COMPLETE BLOOD COUNT"},
		{ID: "t", Type: ocr.BlockTable, Relationships: childOf("c1", "c2", "c3", "c4")},
		{ID: "c1", Type: ocr.BlockCell, RowIndex: 1, ColumnIndex: 1, Relationships: childOf("w1")},
		{ID: "c2", Type: ocr.BlockCell, RowIndex: 1, ColumnIndex: 2, Relationships: childOf("w2")},
		{ID: "c3", Type: ocr.BlockCell, RowIndex: 2, ColumnIndex: 1, Relationships: childOf("w3")},
		{ID: "c4", Type: ocr.BlockCell, RowIndex: 2, ColumnIndex: 2, Relationships: childOf("w4")},
		{ID: "w1", Type: ocr.BlockWord, Text: "Hemoglobin"},
		{ID: "w2", Type: ocr.BlockWord, Text: "13.5 g/dL"},
		{ID: "w3", Type: ocr.BlockWord, Text: "Glucose"},
		{ID: "w4", Type: ocr.BlockWord, Text: "95 mg/dL"},
	}
}

func TestUploadEndpoint(t *testing.T) {
	h := newHarness(t, labReportBlocks())

	rec := h.upload(t, "cbc.png", []byte("image-bytes"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success          bool   `json:"success"`
		DocID            string `json:"doc_id"`
		Category         string `json:"category"`
		ObservationCount int    `json:"observation_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.DocID == "" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Category != analysis.CategoryLabReport {
		t.Errorf("expected lab_report, got %s", resp.Category)
	}
	if resp.ObservationCount != 2 {
		t.Errorf("expected 2 observations, got %d", resp.ObservationCount)
	}
}

func TestUploadEndpointDuplicate(t *testing.T) {
	h := newHarness(t, labReportBlocks())

	if rec := h.upload(t, "cbc.png", []byte("same")); rec.Code != http.StatusCreated {
		t.Fatalf("first upload: %d", rec.Code)
	}
	rec := h.upload(t, "again.png", []byte("same"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("not saved")) {
		t.Errorf("expected not-saved message, got %s", rec.Body.String())
	}
}

func TestUploadEndpointRequiresAuth(t *testing.T) {
	h := newHarness(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", nil)
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestListDocumentsEndpoint(t *testing.T) {
	h := newHarness(t, labReportBlocks())

	h.upload(t, "first.png", []byte("one"))
	h.upload(t, "second.png", []byte("two"))

	rec := h.get(t, "/api/v1/documents?limit=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Data    []map[string]interface{} `json:"data"`
		Total   int                      `json:"total"`
		HasMore bool                     `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 2 || len(resp.Data) != 1 || !resp.HasMore {
		t.Errorf("unexpected page: total=%d len=%d has_more=%v", resp.Total, len(resp.Data), resp.HasMore)
	}
	if resp.Data[0]["name"] != "second.png" {
		t.Errorf("expected the newest document first, got %v", resp.Data[0])
	}
}

func TestComparisonEndpoint(t *testing.T) {
	h := newHarness(t, labReportBlocks())

	rec := h.get(t, "/api/v1/reports/comparison")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Available bool `json:"available"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Available {
		t.Error("expected no comparison without history")
	}

	h.upload(t, "first.png", []byte("one"))
	h.upload(t, "second.png", []byte("two"))

	rec = h.get(t, "/api/v1/reports/comparison")
	var full struct {
		Available  bool        `json:"available"`
		Comparison *Comparison `json:"comparison"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &full); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !full.Available || full.Comparison == nil {
		t.Fatalf("expected a comparison, got %s", rec.Body.String())
	}
	if len(full.Comparison.Changes) != 2 {
		t.Errorf("expected 2 changes, got %+v", full.Comparison.Changes)
	}
}
