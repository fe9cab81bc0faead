package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arborline/catalog-server/internal/domain"
	"github.com/arborline/catalog-server/internal/pkg/httputil"
	"github.com/arborline/catalog-server/internal/service/staging"
)

func optParam(r *http.Request, name string) *string {
	if v := r.URL.Query().Get(name); v != "" {
		return &v
	}
	return nil
}

// ListFamilies returns one page of staged families. Without upload_id the
// most recent active session is used.
func (h *Handlers) ListFamilies(w http.ResponseWriter, r *http.Request) {
	limit, offset := ParsePage(r, staging.DefaultPageSize, staging.MaxPageSize)
	items, total, err := h.staged.ListFamilies(r.Context(), staging.FamilyQuery{
		UploadID: optParam(r, "upload_id"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, ListResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}

// ListProducts returns one page of staged products. Filters: upload_id,
// family_id, include_skipped.
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	limit, offset := ParsePage(r, staging.DefaultPageSize, staging.MaxPageSize)
	items, total, err := h.staged.ListProducts(r.Context(), staging.ProductQuery{
		UploadID:       optParam(r, "upload_id"),
		FamilyID:       optParam(r, "family_id"),
		IncludeSkipped: r.URL.Query().Get("include_skipped") == "true",
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, ListResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}

// GetProduct returns one staged product with variations and images attached.
func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.staged.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, p)
}

// UpdateProduct applies a partial edit; absent fields are untouched.
func (h *Handlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var patch staging.ProductPatch
	if !httputil.Decode(w, r, &patch) {
		return
	}
	p, err := h.staged.UpdateProduct(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, p)
}

// DeleteProduct excludes the product from import (soft skip).
func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	counts, err := h.staged.DeleteProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"skipped": true, "removed": counts})
}

// RestoreProduct clears the skip flag.
func (h *Handlers) RestoreProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.staged.RestoreProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, p)
}

// GetVariation returns one staged variation.
func (h *Handlers) GetVariation(w http.ResponseWriter, r *http.Request) {
	v, err := h.staged.GetVariation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, v)
}

// UpdateVariation applies a partial edit to a variation.
func (h *Handlers) UpdateVariation(w http.ResponseWriter, r *http.Request) {
	var patch staging.VariationPatch
	if !httputil.Decode(w, r, &patch) {
		return
	}
	v, err := h.staged.UpdateVariation(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, v)
}

// DeleteVariation removes a variation row.
func (h *Handlers) DeleteVariation(w http.ResponseWriter, r *http.Request) {
	if err := h.staged.DeleteVariation(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]bool{"deleted": true})
}

// UpdateImageRoles replaces an image's role set.
func (h *Handlers) UpdateImageRoles(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Roles []domain.ImageRole `json:"roles"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	img, err := h.staged.UpdateImageRoles(r.Context(), chi.URLParam(r, "id"), body.Roles)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, img)
}
