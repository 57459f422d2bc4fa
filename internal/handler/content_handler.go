package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"studio-site/internal/apierror"
	"studio-site/internal/domain"
	"studio-site/internal/service"
)

// ContentHandler serves public content reads, the contact form and the
// admin content endpoints.
type ContentHandler struct {
	content *service.ContentService
	devMode bool
}

func NewContentHandler(content *service.ContentService, devMode bool) *ContentHandler {
	return &ContentHandler{
		content: content,
		devMode: devMode,
	}
}

type DocumentList struct {
	Items []*domain.Document `json:"items"`
	Count int                `json:"count"`
}

func newDocumentList(docs []*domain.Document) DocumentList {
	if docs == nil {
		docs = []*domain.Document{}
	}
	return DocumentList{Items: docs, Count: len(docs)}
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, apierror.Validation("limit must be a positive integer")
	}
	return limit, nil
}

func (h *ContentHandler) fail(w http.ResponseWriter, err error) {
	apierror.Write(w, err, h.devMode)
}

// List handles GET /content/{collection}.
func (h *ContentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.fail(w, err)
		return
	}

	docs, err := h.content.List(r.Context(), chi.URLParam(r, "collection"), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDocumentList(docs))
}

// Get handles GET /content/{collection}/{id}.
func (h *ContentHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.content.Get(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Create handles POST /admin/content/{collection}.
func (h *ContentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var data json.RawMessage
	if err := decodeJSON(w, r, &data); err != nil {
		h.fail(w, err)
		return
	}

	doc, err := h.content.Create(r.Context(), chi.URLParam(r, "collection"), data)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// Update handles PUT /admin/content/{collection}/{id}.
func (h *ContentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var data json.RawMessage
	if err := decodeJSON(w, r, &data); err != nil {
		h.fail(w, err)
		return
	}

	doc, err := h.content.Update(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"), data)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Delete handles DELETE /admin/content/{collection}/{id}.
func (h *ContentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.content.Delete(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ContentHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	doc, err := h.content.GetSettings(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *ContentHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var data json.RawMessage
	if err := decodeJSON(w, r, &data); err != nil {
		h.fail(w, err)
		return
	}

	doc, err := h.content.UpdateSettings(r.Context(), data)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// SubmitMessage handles the public contact form.
func (h *ContentHandler) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	var msg domain.ContactMessage
	if err := decodeJSON(w, r, &msg); err != nil {
		h.fail(w, err)
		return
	}

	doc, err := h.content.SubmitContactMessage(r.Context(), &msg)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// ListMessages handles GET /admin/messages.
func (h *ContentHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.fail(w, err)
		return
	}

	docs, err := h.content.ListMessages(r.Context(), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDocumentList(docs))
}
