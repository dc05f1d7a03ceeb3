package analytics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/spendlens/spendlens/internal/platform/httpx"
)

// Handler exposes one endpoint per derived view.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers analytics routes under an organization scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/overview", view(h, h.service.Overview))
	r.Get("/spend-by-category", view(h, h.service.SpendByCategory))
	r.Get("/spend-by-supplier", view(h, h.service.SpendBySupplier))
	r.Get("/trend", view(h, h.service.MonthlyTrend))
	r.Get("/pareto", view(h, h.service.Pareto))
	r.Get("/tail-spend", view(h, h.service.TailSpend))
	r.Get("/stratification", view(h, h.service.Stratification))
	r.Get("/seasonality", view(h, h.service.Seasonality))
	r.Get("/year-over-year", view(h, h.service.YearOverYear))
	r.Get("/consolidation", view(h, h.service.Consolidation))
}

// view adapts one service operation into an HTTP handler: parse the filter
// query, call, serialize.
func view[T any](h *Handler, op func(ctx context.Context, orgID int64, filters Filters) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, _ := strconv.ParseInt(chi.URLParam(r, "orgID"), 10, 64)
		filters, err := filtersFromQuery(r)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Filters", err.Error())
			return
		}
		result, err := op(r.Context(), orgID, filters)
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, result)
	}
}

func filtersFromQuery(r *http.Request) (Filters, error) {
	q := r.URL.Query()
	supplierID, _ := strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	categoryID, _ := strconv.ParseInt(q.Get("category_id"), 10, 64)
	filters := Filters{SupplierID: supplierID, CategoryID: categoryID}

	for key, dst := range map[string]**time.Time{"date_from": &filters.DateFrom, "date_to": &filters.DateTo} {
		if raw := q.Get(key); raw != "" {
			t, err := time.Parse("2006-01-02", raw)
			if err != nil {
				return Filters{}, errors.New(key + " must be formatted as YYYY-MM-DD")
			}
			*dst = &t
		}
	}
	if filters.DateFrom != nil && filters.DateTo != nil && filters.DateFrom.After(*filters.DateTo) {
		return Filters{}, errors.New("date_from is after date_to")
	}
	return filters, nil
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	h.logger.Error("analytics handler", slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
