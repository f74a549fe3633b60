package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/kmorozov/docprocessor/internal/core/domain"
	"github.com/kmorozov/docprocessor/internal/core/ports"
	"github.com/kmorozov/docprocessor/internal/observability/metrics"
)

const serviceName = "api"

// XLSXExporter builds a downloadable workbook for one document.
type XLSXExporter interface {
	ExportXLSX(ctx context.Context, documentID string) ([]byte, error)
}

type Router struct {
	ingestUC  ports.DocumentIngestor
	pageData  ports.PageDataService
	exportUC  XLSXExporter
	repo      ports.DocumentReader
	metrics   *metrics.HTTPServerMetrics
	validate  *validator.Validate
	saveLimit *rate.Limiter
	listLimit int
}

type RouterOptions struct {
	Metrics           *metrics.HTTPServerMetrics
	SaveRatePerSec    float64
	SaveRateBurst     int
	DocumentListLimit int
}

func NewRouter(
	ingestUC ports.DocumentIngestor,
	pageData ports.PageDataService,
	exportUC XLSXExporter,
	repo ports.DocumentReader,
	options RouterOptions,
) *Router {
	ratePerSec := options.SaveRatePerSec
	if ratePerSec <= 0 {
		ratePerSec = 10
	}
	burst := options.SaveRateBurst
	if burst <= 0 {
		burst = 20
	}
	listLimit := options.DocumentListLimit
	if listLimit <= 0 {
		listLimit = 100
	}

	return &Router{
		ingestUC:  ingestUC,
		pageData:  pageData,
		exportUC:  exportUC,
		repo:      repo,
		metrics:   options.Metrics,
		validate:  validator.New(),
		saveLimit: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		listLimit: listLimit,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.documents)
	mux.HandleFunc("/v1/documents/", rt.documentSubtree)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(recoverMiddleware(handler)))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) documents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.uploadDocument(w, r)
	case http.MethodGet:
		rt.listDocuments(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingestUC.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := rt.repo.List(r.Context(), rt.listLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// documentSubtree dispatches the /v1/documents/{id}... routes:
//
//	GET  /v1/documents/{id}
//	GET  /v1/documents/{id}/export
//	GET  /v1/documents/{id}/accounts/{idx}/pages/{n}/data
//	POST /v1/documents/{id}/accounts/{idx}/pages/{n}/data
func (rt *Router) documentSubtree(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/documents/"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}
	documentID := parts[0]

	switch {
	case len(parts) == 1:
		rt.getDocument(w, r, documentID)
	case len(parts) == 2 && parts[1] == "export":
		rt.exportDocument(w, r, documentID)
	case len(parts) == 6 && parts[1] == "accounts" && parts[3] == "pages" && parts[5] == "data":
		key, err := parsePageKey(documentID, parts[2], parts[4])
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		rt.pageDataRoute(w, r, key)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown route"})
	}
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request, documentID string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	doc, err := rt.repo.GetByID(r.Context(), documentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) pageDataRoute(w http.ResponseWriter, r *http.Request, key domain.PageKey) {
	switch r.Method {
	case http.MethodGet:
		rt.loadPageData(w, r, key)
	case http.MethodPost:
		rt.savePageData(w, r, key)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) loadPageData(w http.ResponseWriter, r *http.Request, key domain.PageKey) {
	fields, err := rt.pageData.Load(r.Context(), key)
	if err != nil {
		switch {
		case domain.IsKind(err, domain.ErrPageNotFound):
			rt.recordPageLoad("miss")
		default:
			rt.recordPageLoad("error")
		}
		writeError(w, err)
		return
	}

	rt.recordPageLoad("hit")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": fields})
}

type savePageDataRequest struct {
	PageData   map[string]any `json:"page_data" validate:"required,min=1"`
	ActionType string         `json:"action_type" validate:"required"`
}

func (rt *Router) savePageData(w http.ResponseWriter, r *http.Request, key domain.PageKey) {
	if !rt.saveLimit.Allow() {
		if rt.metrics != nil {
			rt.metrics.RecordRateLimited(serviceName, r.URL.Path)
		}
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"success": false, "error": "too many save requests"})
		return
	}

	var req savePageDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.recordPageSave("validation_error", 0)
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid json"})
		return
	}
	if err := rt.validate.Struct(req); err != nil {
		rt.recordPageSave("validation_error", 0)
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "page_data must be a non-empty mapping and action_type is required"})
		return
	}

	merged, err := rt.pageData.MergeAndPersist(r.Context(), key, req.PageData, req.ActionType)
	if err != nil {
		if domain.IsKind(err, domain.ErrInvalidInput) {
			rt.recordPageSave("validation_error", 0)
		} else {
			rt.recordPageSave("store_error", 0)
		}
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]any{"success": false, "error": err.Error()})
		return
	}

	rt.recordPageSave("success", len(req.PageData))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": merged})
}

func (rt *Router) exportDocument(w http.ResponseWriter, r *http.Request, documentID string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	workbook, err := rt.exportUC.ExportXLSX(r.Context(), documentID)
	if err != nil {
		if rt.metrics != nil {
			rt.metrics.RecordExport(serviceName, "error")
		}
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordExport(serviceName, "success")
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, documentID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(workbook)
}

func (rt *Router) recordPageSave(outcome string, fields int) {
	if rt.metrics != nil {
		rt.metrics.RecordPageSave(serviceName, outcome, fields)
	}
}

func (rt *Router) recordPageLoad(outcome string) {
	if rt.metrics != nil {
		rt.metrics.RecordPageLoad(serviceName, outcome)
	}
}

func parsePageKey(documentID, accountPart, pagePart string) (domain.PageKey, error) {
	accountIndex, err := strconv.Atoi(accountPart)
	if err != nil || accountIndex < 0 {
		return domain.PageKey{}, fmt.Errorf("invalid account index %q", accountPart)
	}
	pageNumber, err := strconv.Atoi(pagePart)
	if err != nil || pageNumber < 1 {
		return domain.PageKey{}, fmt.Errorf("invalid page number %q", pagePart)
	}
	return domain.PageKey{
		DocumentID:   documentID,
		AccountIndex: accountIndex,
		PageNumber:   pageNumber,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
