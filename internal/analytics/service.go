package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"
)

// Service serves derived views from cache, computing on miss. Concurrent
// misses for the same key collapse into one computation per process.
type Service struct {
	repo   Repository
	engine *Engine
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
}

// NewService wires the analytics service. cache may be nil, which disables
// caching entirely.
func NewService(repo Repository, engine *Engine, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, engine: engine, cache: cache, logger: logger}
}

// InvalidateOrg makes every cached view for the organization unreachable.
func (s *Service) InvalidateOrg(ctx context.Context, orgID int64) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Bump(ctx, orgID)
}

func filterTag(f Filters) string {
	from, to := "", ""
	if f.DateFrom != nil {
		from = f.DateFrom.Format("2006-01-02")
	}
	if f.DateTo != nil {
		to = f.DateTo.Format("2006-01-02")
	}
	return fmt.Sprintf("f:%s:%s:%d:%d", from, to, f.SupplierID, f.CategoryID)
}

// cached serves one view through the version-keyed cache. Cache failures
// degrade to a direct computation, never to a request failure.
func cached[T any](ctx context.Context, s *Service, orgID int64, view string, filters Filters, compute func([]Row) T) (T, error) {
	var zero T
	if s.cache == nil {
		rows, err := s.repo.Rows(ctx, orgID, filters)
		if err != nil {
			return zero, err
		}
		return compute(rows), nil
	}

	version, err := s.cache.Version(ctx, orgID)
	if err != nil {
		s.logger.Warn("analytics cache unavailable", "org_id", orgID, "error", err)
		version = -1
	}

	key := s.cache.Key(orgID, version, view, filterTag(filters))
	if version >= 0 {
		if payload, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var result T
			if err := json.Unmarshal(payload, &result); err == nil {
				return result, nil
			}
			// Corrupt entry: fall through and recompute over it.
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		rows, err := s.repo.Rows(ctx, orgID, filters)
		if err != nil {
			return zero, err
		}
		result := compute(rows)
		if version >= 0 {
			if payload, err := json.Marshal(result); err == nil {
				if err := s.cache.Set(ctx, key, payload); err != nil {
					s.logger.Warn("analytics cache write failed", "key", key, "error", err)
				}
			}
		}
		return result, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// Overview returns the headline numbers for the organization.
func (s *Service) Overview(ctx context.Context, orgID int64, filters Filters) (Overview, error) {
	return cached(ctx, s, orgID, "overview", filters, s.engine.Overview)
}

// SpendByCategory returns spend grouped by category.
func (s *Service) SpendByCategory(ctx context.Context, orgID int64, filters Filters) ([]GroupTotal, error) {
	return cached(ctx, s, orgID, "spend_by_category", filters, s.engine.SpendByCategory)
}

// SpendBySupplier returns spend grouped by supplier.
func (s *Service) SpendBySupplier(ctx context.Context, orgID int64, filters Filters) ([]GroupTotal, error) {
	return cached(ctx, s, orgID, "spend_by_supplier", filters, s.engine.SpendBySupplier)
}

// MonthlyTrend returns the trailing monthly spend sequence.
func (s *Service) MonthlyTrend(ctx context.Context, orgID int64, filters Filters) ([]TrendPoint, error) {
	return cached(ctx, s, orgID, "trend", filters, s.engine.MonthlyTrend)
}

// Pareto returns the supplier concentration curve.
func (s *Service) Pareto(ctx context.Context, orgID int64, filters Filters) ([]ParetoEntry, error) {
	return cached(ctx, s, orgID, "pareto", filters, s.engine.Pareto)
}

// TailSpend returns the trailing low-value suppliers.
func (s *Service) TailSpend(ctx context.Context, orgID int64, filters Filters) (TailSpend, error) {
	return cached(ctx, s, orgID, "tail_spend", filters, s.engine.TailSpend)
}

// Stratification returns the category tiering.
func (s *Service) Stratification(ctx context.Context, orgID int64, filters Filters) (Stratification, error) {
	return cached(ctx, s, orgID, "stratification", filters, s.engine.Stratification)
}

// Seasonality returns per-calendar-month historical averages.
func (s *Service) Seasonality(ctx context.Context, orgID int64, filters Filters) ([]SeasonalityEntry, error) {
	return cached(ctx, s, orgID, "seasonality", filters, s.engine.Seasonality)
}

// YearOverYear returns yearly aggregates with growth figures.
func (s *Service) YearOverYear(ctx context.Context, orgID int64, filters Filters) ([]YearTotal, error) {
	return cached(ctx, s, orgID, "year_over_year", filters, s.engine.YearOverYear)
}

// Consolidation returns multi-supplier categories with estimated savings.
func (s *Service) Consolidation(ctx context.Context, orgID int64, filters Filters) ([]ConsolidationOpportunity, error) {
	return cached(ctx, s, orgID, "consolidation", filters, s.engine.Consolidation)
}

// WarmOrg precomputes the unfiltered views for one organization. Used by the
// scheduled warmup job so dashboards hit a hot cache.
func (s *Service) WarmOrg(ctx context.Context, orgID int64) error {
	if _, err := s.Overview(ctx, orgID, Filters{}); err != nil {
		return err
	}
	if _, err := s.Pareto(ctx, orgID, Filters{}); err != nil {
		return err
	}
	if _, err := s.MonthlyTrend(ctx, orgID, Filters{}); err != nil {
		return err
	}
	if _, err := s.SpendByCategory(ctx, orgID, Filters{}); err != nil {
		return err
	}
	_, err := s.TailSpend(ctx, orgID, Filters{})
	return err
}
