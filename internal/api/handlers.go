package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/content"
	"github.com/starford/ansuz/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	svc *content.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *content.Service) *Handler {
	return &Handler{svc: svc}
}

// recordPath extracts the logical path from the URL (everything after
// /api/records). Encoded slashes are accepted (posts%2Fhello).
func recordPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	return "/" + decoded
}

// Snapshot handles GET /api/db.
//
//	@Summary		Full record collection as a JSON array
//	@Tags			db
//	@Produce		json
//	@Success		200	{array}	models.Record
//	@Success		304	"Not modified"
//	@Security		BearerAuth
//	@Router			/db [get]
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	data, hash, err := h.svc.Snapshot()
	if err != nil {
		slog.Error("snapshot failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	etag := `"` + hash + `"`
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match == etag || strings.Trim(match, `"`) == hash {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Dirs handles GET /api/dirs.
//
//	@Summary		Directory set
//	@Tags			db
//	@Produce		json
//	@Success		200	{object}	DirsResponse
//	@Security		BearerAuth
//	@Router			/dirs [get]
func (h *Handler) Dirs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, DirsResponse{Dirs: h.svc.Dirs()})
}

// GetRecords handles GET /api/records/*. A directory path lists its records,
// any other path returns the record stored there.
//
//	@Summary		Fetch a record or a directory listing
//	@Tags			records
//	@Produce		json
//	@Param			path	path		string	true	"Logical path"
//	@Success		200		{object}	RecordResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{path} [get]
func (h *Handler) GetRecords(w http.ResponseWriter, r *http.Request) {
	path := recordPath(r)
	res, err := h.svc.Query(path).Fetch()
	if err != nil {
		h.writeError(w, path, err)
		return
	}
	if res.IsMany {
		writeJSON(w, http.StatusOK, RecordsResponse{Records: res.Many, Total: len(res.Many)})
		return
	}
	writeJSON(w, http.StatusOK, RecordResponse{Record: res.One})
}

// Query handles POST /api/query.
//
//	@Summary		Run a declarative query
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			body	body		QueryRequest	true	"Query"
//	@Success		200		{object}	RecordsResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/query [post]
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	out, err := h.svc.Run(req)
	if err != nil {
		h.writeError(w, req.Path, err)
		return
	}
	switch v := out.(type) {
	case []models.Record:
		writeJSON(w, http.StatusOK, RecordsResponse{Records: v, Total: len(v)})
	case models.Record:
		writeJSON(w, http.StatusOK, RecordResponse{Record: v})
	default:
		writeJSON(w, http.StatusOK, out)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, path string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrInvalidFilter):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		slog.Error("query failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
