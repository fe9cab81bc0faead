package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/arborline/catalog-server/internal/pkg/httputil"
)

// CreateUpload accepts a multipart catalog upload and starts a parse.
// Form fields: "file" (the PDF), optional "max_pages" (0 = whole document).
func (h *Handlers) CreateUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	maxPages := 0
	if v := r.FormValue("max_pages"); v != "" {
		maxPages, err = strconv.Atoi(v)
		if err != nil || maxPages < 0 {
			httputil.BadRequest(w, "max_pages must be a non-negative integer")
			return
		}
	}

	sess, err := h.sessions.Create(r.Context(), header.Filename, file, maxPages)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.Created(w, sess)
}

// ListUploads returns recent sessions, newest first.
func (h *Handlers) ListUploads(w http.ResponseWriter, r *http.Request) {
	limit, offset := ParsePage(r, 50, 200)
	items, total, err := h.sessions.List(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, ListResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}

// GetUpload returns one session with live parse progress merged in.
func (h *Handlers) GetUpload(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, sess)
}

// DeleteUpload removes a session with everything staged under it.
func (h *Handlers) DeleteUpload(w http.ResponseWriter, r *http.Request) {
	res, err := h.sessions.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// ImportUpload promotes the session's staged data to production.
func (h *Handlers) ImportUpload(w http.ResponseWriter, r *http.Request) {
	res, err := h.importer.Import(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// RunCleanup triggers one expiry/orphan sweep immediately. The same sweep
// also runs on a schedule in the worker; this endpoint exists for operators.
func (h *Handlers) RunCleanup(w http.ResponseWriter, r *http.Request) {
	res, err := h.cleaner.Run(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}
