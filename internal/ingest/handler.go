package ingest

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/spendlens/spendlens/internal/platform/httpx"
)

// Handler manages upload endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	// maxMemory caps the in-memory portion of multipart parsing; the rest
	// spills to temp files.
	maxMemory int64
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, maxMemory: 8 << 20}
}

// MountRoutes registers upload routes under an organization scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.upload)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
}

// upload accepts a multipart form with a "file" part and an optional
// "skip_duplicates" field (default true). It responds 202 with the upload
// row; processing continues in the background.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	orgID := orgIDFromRequest(r)
	if err := r.ParseMultipartForm(h.maxMemory); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Upload", "expected multipart form data with a file part")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Upload", "missing file part")
		return
	}
	defer file.Close()

	skipDuplicates := true
	if raw := r.FormValue("skip_duplicates"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Upload", "skip_duplicates must be a boolean")
			return
		}
		skipDuplicates = parsed
	}

	upload, err := h.service.StartUpload(r.Context(), orgID, header.Filename, file, skipDuplicates)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, upload)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	orgID := orgIDFromRequest(r)
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	upload, err := h.service.GetUpload(r.Context(), orgID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, upload)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	orgID := orgIDFromRequest(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	uploads, err := h.service.ListUploads(r.Context(), orgID, limit, offset)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": uploads})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrFileInvalid), errors.Is(err, ErrTooManyRows):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Upload", err.Error())
	default:
		h.logger.Error("ingest handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func orgIDFromRequest(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "orgID"), 10, 64)
	return id
}
