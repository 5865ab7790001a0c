package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/canvasarchive/internal/archiveservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *archiveservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *archiveservice.Service) *Handler {
	return &Handler{svc: svc}
}

// wildcardPath extracts the vault path from the URL wildcard.
// Supports encoded slashes from OpenAPI clients (e.g. boards%2Fplan.canvas).
func wildcardPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// Archive handles POST /api/archive.
//
//	@Summary		Move selected cards from a canvas into its archive
//	@Tags			archive
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ArchiveRequest	true	"Canvas to archive"
//	@Success		200		{object}	ArchiveResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/archive [post]
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ArchiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	var (
		res *ArchiveResponse
		err error
	)
	if req.DryRun {
		res, err = h.svc.Preview(r.Context(), req.Path)
	} else {
		res, err = h.svc.Archive(r.Context(), req.Path)
	}
	if err != nil {
		writeError(w, "archive", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Sweep handles POST /api/sweep.
//
//	@Summary		Archive every canvas in the vault
//	@Tags			archive
//	@Produce		json
//	@Success		200	{object}	SweepResponse
//	@Security		BearerAuth
//	@Router			/sweep [post]
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Sweep(r.Context())
	if err != nil {
		writeError(w, "sweep", err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{Changed: n})
}

// Outline handles GET /api/outline/*.
//
//	@Summary		Section outline of an archive (or of a canvas's archive)
//	@Tags			archive
//	@Produce		json
//	@Param			path	path		string	true	"Archive or canvas path"
//	@Success		200		{object}	parser.Outline
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/outline/{path} [get]
func (h *Handler) Outline(w http.ResponseWriter, r *http.Request) {
	path := wildcardPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	o, err := h.svc.Outline(r.Context(), path)
	if err != nil {
		writeError(w, "outline", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search over archived cards
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: nonNilSlice(results)})
}

// Runs handles GET /api/runs.
//
//	@Summary		Recent archive runs
//	@Tags			archive
//	@Produce		json
//	@Param			canvas	query		string	false	"Only runs for this canvas"
//	@Param			limit	query		int		false	"Max runs"
//	@Success		200		{object}	RunsResponse
//	@Security		BearerAuth
//	@Router			/runs [get]
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	runs, err := h.svc.Runs(r.Context(), q.Get("canvas"), limit)
	if err != nil {
		writeError(w, "runs", err)
		return
	}
	writeJSON(w, http.StatusOK, RunsResponse{Runs: nonNilSlice(runs)})
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
