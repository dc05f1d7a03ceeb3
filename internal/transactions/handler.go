package transactions

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/spendlens/spendlens/internal/platform/httpx"
)

// Handler manages transaction endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers transaction routes under an organization scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/export", h.export)
	r.Get("/duplicates", h.duplicates)
	r.Get("/{id}", h.get)
	r.Post("/bulk-delete", h.bulkDelete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	orgID := orgIDFromRequest(r)
	filters, err := filtersFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filters", err.Error())
		return
	}
	items, total, err := h.service.List(r.Context(), orgID, filters)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if items == nil {
		items = []Row{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	orgID := orgIDFromRequest(r)
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	row, err := h.service.Get(r.Context(), orgID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, row)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	orgID := orgIDFromRequest(r)
	filters, err := filtersFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filters", err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
	if err := h.service.WriteCSV(r.Context(), w, orgID, filters); err != nil {
		// Headers are already out; all we can do is log.
		h.logger.Error("csv export aborted", slog.Any("error", err))
	}
}

type bulkDeletePayload struct {
	IDs []int64 `json:"transaction_ids" validate:"required,min=1,max=1000,dive,gt=0"`
}

func (h *Handler) bulkDelete(w http.ResponseWriter, r *http.Request) {
	orgID := orgIDFromRequest(r)
	var payload bulkDeletePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	deleted, err := h.service.BulkDelete(r.Context(), orgID, payload.IDs)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (h *Handler) duplicates(w http.ResponseWriter, r *http.Request) {
	orgID := orgIDFromRequest(r)
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	groups, err := h.service.DuplicateReport(r.Context(), orgID, time.Duration(days)*24*time.Hour, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if groups == nil {
		groups = []DuplicateGroup{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func filtersFromQuery(r *http.Request) (Filters, error) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	supplierID, _ := strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	categoryID, _ := strconv.ParseInt(q.Get("category_id"), 10, 64)
	fiscalYear, _ := strconv.Atoi(q.Get("fiscal_year"))

	filters := Filters{
		SupplierID: supplierID,
		CategoryID: categoryID,
		FiscalYear: fiscalYear,
		Search:     q.Get("search"),
		SortBy:     q.Get("sort"),
		SortDir:    q.Get("dir"),
		Page:       page,
		Limit:      limit,
	}
	for key, dst := range map[string]**time.Time{"date_from": &filters.DateFrom, "date_to": &filters.DateTo} {
		if raw := q.Get(key); raw != "" {
			t, err := time.Parse("2006-01-02", raw)
			if err != nil {
				return Filters{}, errors.New(key + " must be formatted as YYYY-MM-DD")
			}
			*dst = &t
		}
	}
	for key, dst := range map[string]**decimal.Decimal{"min_amount": &filters.MinAmount, "max_amount": &filters.MaxAmount} {
		if raw := q.Get(key); raw != "" {
			d, err := decimal.NewFromString(raw)
			if err != nil {
				return Filters{}, errors.New(key + " must be a decimal number")
			}
			*dst = &d
		}
	}
	return filters, nil
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("transactions handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func orgIDFromRequest(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "orgID"), 10, 64)
	return id
}
