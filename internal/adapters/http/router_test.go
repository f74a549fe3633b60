package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kmorozov/docprocessor/internal/core/domain"
)

type ingestFake struct {
	doc *domain.Document
	err error
}

func (f *ingestFake) Upload(context.Context, string, string, io.Reader) (*domain.Document, error) {
	return f.doc, f.err
}

type pageDataFake struct {
	merged  map[string]domain.FieldRecord
	loaded  map[string]domain.FieldRecord
	saveErr error
	loadErr error

	lastKey    domain.PageKey
	lastEdits  map[string]any
	lastAction string
	saveCalls  int
}

func (f *pageDataFake) MergeAndPersist(_ context.Context, key domain.PageKey, edits map[string]any, actionType string) (map[string]domain.FieldRecord, error) {
	f.saveCalls++
	f.lastKey = key
	f.lastEdits = edits
	f.lastAction = actionType
	return f.merged, f.saveErr
}

func (f *pageDataFake) Load(_ context.Context, key domain.PageKey) (map[string]domain.FieldRecord, error) {
	f.lastKey = key
	return f.loaded, f.loadErr
}

type exportFake struct {
	raw []byte
	err error
}

func (f *exportFake) ExportXLSX(context.Context, string) ([]byte, error) {
	return f.raw, f.err
}

type readerFake struct {
	doc  *domain.Document
	docs []domain.Document
	err  error
}

func (f *readerFake) GetByID(context.Context, string) (*domain.Document, error) {
	return f.doc, f.err
}

func (f *readerFake) List(context.Context, int) ([]domain.Document, error) {
	return f.docs, f.err
}

type routerFixture struct {
	router   *Router
	ingest   *ingestFake
	pageData *pageDataFake
	export   *exportFake
	reader   *readerFake
}

func newRouterFixture() *routerFixture {
	fx := &routerFixture{
		ingest:   &ingestFake{},
		pageData: &pageDataFake{},
		export:   &exportFake{},
		reader:   &readerFake{},
	}
	fx.router = NewRouter(fx.ingest, fx.pageData, fx.export, fx.reader, RouterOptions{})
	return fx
}

func (fx *routerFixture) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	fx := newRouterFixture()
	rec := fx.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestUploadRequiresMultipart(t *testing.T) {
	fx := newRouterFixture()
	rec := fx.do(t, http.MethodPost, "/v1/documents", bytes.NewBufferString("{}"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUploadAccepted(t *testing.T) {
	fx := newRouterFixture()
	fx.ingest.doc = &domain.Document{ID: "doc-1", Status: domain.StatusUploaded}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "statement.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("%PDF-1.4")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var doc domain.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if doc.ID != "doc-1" {
		t.Fatalf("expected doc-1, got %q", doc.ID)
	}
}

func TestListDocuments(t *testing.T) {
	fx := newRouterFixture()
	fx.reader.docs = []domain.Document{{ID: "doc-1"}, {ID: "doc-2"}}

	rec := fx.do(t, http.MethodGet, "/v1/documents", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Documents []domain.Document `json:"documents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(payload.Documents))
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	fx := newRouterFixture()
	fx.reader.err = domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New("no row"))

	rec := fx.do(t, http.MethodGet, "/v1/documents/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestExportDocument(t *testing.T) {
	fx := newRouterFixture()
	fx.export.raw = []byte("PK\x03\x04workbook")

	rec := fx.do(t, http.MethodGet, "/v1/documents/doc-1/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestUnknownSubtreeRouteIs404(t *testing.T) {
	fx := newRouterFixture()
	rec := fx.do(t, http.MethodGet, "/v1/documents/doc-1/bogus/route", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	fx := newRouterFixture()
	rec := fx.do(t, http.MethodGet, "/healthz", nil)
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}
