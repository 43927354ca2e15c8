package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"

	"github.com/nitu-designer/lehangas/internal/platform/httpx"
	"github.com/nitu-designer/lehangas/internal/services"
)

// PublicCatalogHandlers serves the anonymous catalog and shared product pages.
type PublicCatalogHandlers struct {
	catalog services.CatalogService
	share   services.ShareService
}

// NewPublicCatalogHandlers constructs public catalog handlers.
func NewPublicCatalogHandlers(catalog services.CatalogService, share services.ShareService) *PublicCatalogHandlers {
	return &PublicCatalogHandlers{catalog: catalog, share: share}
}

// Routes registers public catalog endpoints.
func (h *PublicCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/categories", h.listCategories)
	r.Get("/products", h.listProducts)
	r.Get("/shared/{name}", h.getSharedProduct)
	r.Post("/shared/{name}/share", h.shareSharedProduct)
}

func (h *PublicCatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		serviceUnavailable(r.Context(), w, "catalog")
		return
	}
	writeCachedJSON(w, r, map[string]any{"categories": newCategoryResponses(h.catalog.Categories())})
}

func (h *PublicCatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		serviceUnavailable(r.Context(), w, "catalog")
		return
	}
	query := r.URL.Query()
	products := h.catalog.FilteredProducts(strings.TrimSpace(query.Get("category")), query.Get("q"))
	writeCachedJSON(w, r, map[string]any{"products": newProductResponses(products)})
}

func (h *PublicCatalogHandlers) getSharedProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	if name == "" {
		invalidRequest(ctx, w, "design name is required")
		return
	}
	product, err := h.catalog.FindProduct(ctx, name)
	if err != nil {
		writeServiceError(ctx, w, err, "design")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newProductResponse(product))
}

func (h *PublicCatalogHandlers) shareSharedProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.share == nil {
		serviceUnavailable(ctx, w, "share")
		return
	}
	link, err := h.share.ShareSharedPage(ctx, chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(ctx, w, err, "design")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newShareLinkResponse(link))
}

// writeCachedJSON writes payload with a content hash ETag and answers 304 when the client already
// holds that version.
func writeCachedJSON(w http.ResponseWriter, r *http.Request, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("encode_failed", err.Error(), http.StatusInternalServerError))
		return
	}
	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" && etagMatches(match, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(body, '\n'))
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
