package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/spendlens/spendlens/internal/analytics"
	"github.com/spendlens/spendlens/internal/ingest"
	"github.com/spendlens/spendlens/internal/masterdata/categories"
	"github.com/spendlens/spendlens/internal/masterdata/suppliers"
	"github.com/spendlens/spendlens/internal/observability"
	"github.com/spendlens/spendlens/internal/tenancy"
	"github.com/spendlens/spendlens/internal/transactions"
)

// RouterDeps aggregates everything the HTTP router mounts.
type RouterDeps struct {
	Logger       *slog.Logger
	Config       *Config
	Metrics      *observability.Metrics
	Tenants      *tenancy.Repository
	Orgs         *tenancy.Handler
	Suppliers    *suppliers.Handler
	Categories   *categories.Handler
	Uploads      *ingest.Handler
	Transactions *transactions.Handler
	Analytics    *analytics.Handler
}

// NewRouter assembles the HTTP surface: the shared middleware stack, health
// and metrics endpoints, and every module under its organization scope.
func NewRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  deps.Logger,
		Config:  deps.Config,
		Metrics: deps.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/orgs", func(orgs chi.Router) {
			deps.Orgs.MountRoutes(orgs)

			orgs.Route("/{orgID}", func(scoped chi.Router) {
				scoped.Use(tenancy.RequireOrg(deps.Tenants))
				deps.Orgs.MountOrgRoutes(scoped)
				scoped.Route("/suppliers", deps.Suppliers.MountRoutes)
				scoped.Route("/categories", deps.Categories.MountRoutes)
				scoped.Route("/uploads", deps.Uploads.MountRoutes)
				scoped.Route("/transactions", deps.Transactions.MountRoutes)
				scoped.Route("/analytics", deps.Analytics.MountRoutes)
			})
		})
	})
	return r
}
