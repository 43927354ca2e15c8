package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/nitu-designer/lehangas/internal/platform/auth"
	"github.com/nitu-designer/lehangas/internal/platform/httpx"
	"github.com/nitu-designer/lehangas/internal/services"
)

const (
	defaultMaxUploadRequest = 64 << 20
	uploadFileField         = "images"
)

// AdminCatalogHandlers exposes category management, migrations and uploads.
type AdminCatalogHandlers struct {
	authn      *auth.Authenticator
	catalog    services.CatalogService
	migrations services.MigrationService
	uploads    services.UploadService
	maxUpload  int64
	uploadMW   []func(http.Handler) http.Handler
}

// AdminOption customises AdminCatalogHandlers.
type AdminOption func(*AdminCatalogHandlers)

// WithMaxUploadBytes bounds the multipart upload request size.
func WithMaxUploadBytes(n int64) AdminOption {
	return func(h *AdminCatalogHandlers) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// WithUploadMiddlewares wraps the upload endpoint, typically with idempotency.Guard.
func WithUploadMiddlewares(mw ...func(http.Handler) http.Handler) AdminOption {
	return func(h *AdminCatalogHandlers) {
		h.uploadMW = append(h.uploadMW, mw...)
	}
}

// NewAdminCatalogHandlers constructs admin handlers.
func NewAdminCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService, migrations services.MigrationService, uploads services.UploadService, opts ...AdminOption) *AdminCatalogHandlers {
	h := &AdminCatalogHandlers{
		authn:      authn,
		catalog:    catalog,
		migrations: migrations,
		uploads:    uploads,
		maxUpload:  defaultMaxUploadRequest,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers admin endpoints behind Firebase authentication.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/categories", h.createCategory)
	r.Patch("/categories/{categoryID}", h.renameCategory)
	r.Delete("/categories/{categoryID}", h.deleteCategory)
	r.Get("/migrations/{migrationID}", h.getMigration)
	r.Post("/migrations/{migrationID}/resume", h.resumeMigration)
	r.With(h.uploadMW...).Post("/uploads", h.upload)
}

type categoryRequest struct {
	Name string `json:"name"`
}

func (h *AdminCatalogHandlers) createCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	var req categoryRequest
	if err := decodeJSONBody(r, &req); err != nil {
		invalidRequest(ctx, w, err.Error())
		return
	}
	created, err := h.catalog.AddCategory(ctx, req.Name)
	if err != nil {
		writeServiceError(ctx, w, err, "category")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, categoryResponse{ID: created.ID, Name: created.Name})
}

func (h *AdminCatalogHandlers) renameCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	var req categoryRequest
	if err := decodeJSONBody(r, &req); err != nil {
		invalidRequest(ctx, w, err.Error())
		return
	}
	if err := h.catalog.RenameCategoryLabelOnly(ctx, chi.URLParam(r, "categoryID"), req.Name); err != nil {
		writeServiceError(ctx, w, err, "category")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminCatalogHandlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	query := r.URL.Query()
	confirm := false
	if raw := strings.TrimSpace(query.Get("confirm")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			invalidRequest(ctx, w, "confirm must be a boolean")
			return
		}
		confirm = parsed
	}
	result, err := h.catalog.DeleteCategory(ctx, services.DeleteCategoryCommand{
		CategoryID: chi.URLParam(r, "categoryID"),
		TargetID:   query.Get("target"),
		Confirm:    confirm,
	})
	if err != nil {
		if result.Migration != nil {
			// Report how far the migration got alongside the failure.
			var svcErr *services.Error
			if errors.As(err, &svcErr) && svcErr.Kind == services.ErrorKindStoreWriteFailed {
				httpx.WriteError(ctx, w, httpx.NewError("store_write_failed", svcErr.Message, http.StatusBadGateway).
					WithDetails(map[string]any{"migration": newMigrationResponse(*result.Migration)}))
				return
			}
		}
		writeServiceError(ctx, w, err, "category")
		return
	}
	body := map[string]any{"status": string(result.Status)}
	if result.Migration != nil {
		body["migration"] = newMigrationResponse(*result.Migration)
	}
	httpx.WriteJSON(w, http.StatusOK, body)
}

func (h *AdminCatalogHandlers) getMigration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.migrations == nil {
		serviceUnavailable(ctx, w, "migration")
		return
	}
	migration, err := h.migrations.Get(ctx, chi.URLParam(r, "migrationID"))
	if err != nil {
		writeServiceError(ctx, w, err, "migration")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newMigrationResponse(migration))
}

func (h *AdminCatalogHandlers) resumeMigration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.migrations == nil {
		serviceUnavailable(ctx, w, "migration")
		return
	}
	migration, err := h.migrations.Resume(ctx, chi.URLParam(r, "migrationID"))
	if err != nil {
		if migration.ID != "" {
			httpx.WriteError(ctx, w, httpx.NewError("store_write_failed", err.Error(), http.StatusBadGateway).
				WithDetails(map[string]any{"migration": newMigrationResponse(migration)}))
			return
		}
		writeServiceError(ctx, w, err, "migration")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newMigrationResponse(migration))
}

type uploadFailureResponse struct {
	FileName string `json:"fileName"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
}

type uploadReportResponse struct {
	Products []productResponse       `json:"products"`
	Failures []uploadFailureResponse `json:"failures"`
}

func newUploadReportResponse(report services.UploadReport) uploadReportResponse {
	failures := make([]uploadFailureResponse, 0, len(report.Failures))
	for _, f := range report.Failures {
		failures = append(failures, uploadFailureResponse{FileName: f.FileName, Kind: string(f.Kind), Message: f.Message})
	}
	return uploadReportResponse{Products: newProductResponses(report.Products), Failures: failures}
}

func (h *AdminCatalogHandlers) upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.uploads == nil {
		serviceUnavailable(ctx, w, "upload")
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		invalidRequest(ctx, w, "invalid multipart form: "+err.Error())
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	cmd := services.UploadCommand{
		Category:    r.FormValue("category"),
		Description: r.FormValue("description"),
		UploadedBy:  identity.UID,
	}
	if raw := strings.TrimSpace(r.FormValue("price")); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			invalidRequest(ctx, w, "price must be a decimal number")
			return
		}
		cmd.Price = &price
	}
	files, err := readUploadFiles(r.MultipartForm)
	if err != nil {
		invalidRequest(ctx, w, err.Error())
		return
	}
	cmd.Files = files

	report, err := h.uploads.Upload(ctx, cmd)
	if err != nil {
		if services.IsKind(err, services.ErrorKindUploadFailed) && (len(report.Products) > 0 || len(report.Failures) > 0) {
			status := http.StatusMultiStatus
			if len(report.Products) == 0 {
				status = http.StatusBadGateway
			}
			httpx.WriteJSON(w, status, newUploadReportResponse(report))
			return
		}
		writeServiceError(ctx, w, err, "upload")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, newUploadReportResponse(report))
}

func readUploadFiles(form *multipart.Form) ([]services.UploadFile, error) {
	if form == nil {
		return nil, nil
	}
	headers := form.File[uploadFileField]
	files := make([]services.UploadFile, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, services.UploadFile{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, nil
}
