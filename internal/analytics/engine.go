package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// EngineConfig carries the tunable constants of the derived views.
type EngineConfig struct {
	// TrendMonths is the trailing window of the monthly trend.
	TrendMonths int
	// TailThreshold is the bottom share of cumulative spend, in percent,
	// that counts as tail.
	TailThreshold float64
	// SavingsRate is the fraction of non-leader spend assumed recoverable
	// by consolidation.
	SavingsRate decimal.Decimal
	// FallbackSpendThreshold and FallbackSupplierThreshold classify
	// categories when fewer than two exist and no median is defined.
	FallbackSpendThreshold    decimal.Decimal
	FallbackSupplierThreshold float64
}

// DefaultEngineConfig returns the standard view constants.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TrendMonths:               12,
		TailThreshold:             20,
		SavingsRate:               decimal.RequireFromString("0.10"),
		FallbackSpendThreshold:    decimal.RequireFromString("10000.00"),
		FallbackSupplierThreshold: 3,
	}
}

// Engine computes derived views as pure functions over a transaction set.
// Every view returns a well-defined zeroed result on empty input; none can
// fail, so dashboards render before any data is uploaded.
type Engine struct {
	cfg EngineConfig
}

// NewEngine constructs an engine, filling zero config fields with defaults.
func NewEngine(cfg EngineConfig) *Engine {
	def := DefaultEngineConfig()
	if cfg.TrendMonths <= 0 {
		cfg.TrendMonths = def.TrendMonths
	}
	if cfg.TailThreshold <= 0 || cfg.TailThreshold >= 100 {
		cfg.TailThreshold = def.TailThreshold
	}
	if cfg.SavingsRate.IsZero() {
		cfg.SavingsRate = def.SavingsRate
	}
	if cfg.FallbackSpendThreshold.IsZero() {
		cfg.FallbackSpendThreshold = def.FallbackSpendThreshold
	}
	if cfg.FallbackSupplierThreshold <= 0 {
		cfg.FallbackSupplierThreshold = def.FallbackSupplierThreshold
	}
	return &Engine{cfg: cfg}
}

// Overview returns the headline aggregate of the transaction set.
func (e *Engine) Overview(rows []Row) Overview {
	ov := Overview{TransactionCount: len(rows)}
	suppliers := make(map[int64]struct{})
	categories := make(map[int64]struct{})
	for _, r := range rows {
		ov.TotalSpend = ov.TotalSpend.Add(r.Amount)
		suppliers[r.SupplierID] = struct{}{}
		categories[r.CategoryID] = struct{}{}
		if ov.EarliestDate == nil || r.Date.Before(*ov.EarliestDate) {
			d := r.Date
			ov.EarliestDate = &d
		}
		if ov.LatestDate == nil || r.Date.After(*ov.LatestDate) {
			d := r.Date
			ov.LatestDate = &d
		}
	}
	ov.SupplierCount = len(suppliers)
	ov.CategoryCount = len(categories)
	if ov.TransactionCount > 0 {
		ov.AvgTransaction = ov.TotalSpend.Div(decimal.NewFromInt(int64(ov.TransactionCount))).Round(2)
	}
	return ov
}

// SpendBySupplier groups spend by supplier, descending by amount with name
// ascending on ties.
func (e *Engine) SpendBySupplier(rows []Row) []GroupTotal {
	return e.groupTotals(rows, func(r Row) (int64, string) { return r.SupplierID, r.SupplierName })
}

// SpendByCategory groups spend by category, descending by amount with name
// ascending on ties.
func (e *Engine) SpendByCategory(rows []Row) []GroupTotal {
	return e.groupTotals(rows, func(r Row) (int64, string) { return r.CategoryID, r.CategoryName })
}

func (e *Engine) groupTotals(rows []Row, key func(Row) (int64, string)) []GroupTotal {
	byID := make(map[int64]*GroupTotal)
	var grand decimal.Decimal
	for _, r := range rows {
		id, name := key(r)
		g, ok := byID[id]
		if !ok {
			g = &GroupTotal{ID: id, Name: name}
			byID[id] = g
		}
		g.Amount = g.Amount.Add(r.Amount)
		g.Count++
		grand = grand.Add(r.Amount)
	}

	groups := make([]GroupTotal, 0, len(byID))
	for _, g := range byID {
		if grand.Sign() != 0 {
			g.Percentage = percentOf(g.Amount, grand)
		}
		groups = append(groups, *g)
	}
	sortByAmountDesc(groups)
	return groups
}

// Pareto ranks suppliers descending by spend and walks the ranked list
// accumulating cumulative share. Zero grand total yields an empty sequence.
func (e *Engine) Pareto(rows []Row) []ParetoEntry {
	groups := e.SpendBySupplier(rows)
	var grand decimal.Decimal
	for _, g := range groups {
		grand = grand.Add(g.Amount)
	}
	if grand.Sign() == 0 {
		return []ParetoEntry{}
	}

	entries := make([]ParetoEntry, 0, len(groups))
	var running decimal.Decimal
	for _, g := range groups {
		running = running.Add(g.Amount)
		entries = append(entries, ParetoEntry{
			SupplierID:           g.ID,
			Supplier:             g.Name,
			Amount:               g.Amount,
			CumulativePercentage: percentOf(running, grand),
		})
	}
	return entries
}

// TailSpend reports the suppliers beyond the point where cumulative share
// first exceeds 100−threshold.
func (e *Engine) TailSpend(rows []Row) TailSpend {
	result := TailSpend{Threshold: e.cfg.TailThreshold, TailSuppliers: []ParetoEntry{}}
	entries := e.Pareto(rows)
	if len(entries) == 0 {
		return result
	}

	var grand decimal.Decimal
	for _, entry := range entries {
		grand = grand.Add(entry.Amount)
	}

	cutoff := 100 - e.cfg.TailThreshold
	head := len(entries)
	for i, entry := range entries {
		if entry.CumulativePercentage > cutoff {
			head = i
			break
		}
	}
	// Everything after the supplier that crossed the cutoff is tail.
	if head < len(entries) {
		result.TailSuppliers = entries[head+1:]
	}
	for _, entry := range result.TailSuppliers {
		result.TailSpend = result.TailSpend.Add(entry.Amount)
	}
	result.TailCount = len(result.TailSuppliers)
	if grand.Sign() != 0 {
		result.TailPercentage = percentOf(result.TailSpend, grand)
	}
	return result
}

// MonthlyTrend returns a contiguous trailing window of months ending at the
// most recent transaction date, zero-filling months without spend. Anchoring
// at the data instead of "today" keeps the view stable for historical sets.
func (e *Engine) MonthlyTrend(rows []Row) []TrendPoint {
	if len(rows) == 0 {
		return []TrendPoint{}
	}

	type bucket struct {
		amount decimal.Decimal
		count  int
	}
	byMonth := make(map[string]*bucket)
	var latest time.Time
	for _, r := range rows {
		key := r.Date.Format("2006-01")
		b, ok := byMonth[key]
		if !ok {
			b = &bucket{}
			byMonth[key] = b
		}
		b.amount = b.amount.Add(r.Amount)
		b.count++
		if r.Date.After(latest) {
			latest = r.Date
		}
	}

	anchor := time.Date(latest.Year(), latest.Month(), 1, 0, 0, 0, 0, time.UTC)
	points := make([]TrendPoint, 0, e.cfg.TrendMonths)
	for i := e.cfg.TrendMonths - 1; i >= 0; i-- {
		month := anchor.AddDate(0, -i, 0)
		key := month.Format("2006-01")
		point := TrendPoint{Month: key}
		if b, ok := byMonth[key]; ok {
			point.Amount = b.amount
			point.Count = b.count
		}
		points = append(points, point)
	}
	return points
}

// Stratification classifies each category by comparing its spend and
// supplier count to the organization-wide medians. With fewer than two
// categories no median is defined, so fixed fallback thresholds apply.
func (e *Engine) Stratification(rows []Row) Stratification {
	type catAgg struct {
		id        int64
		name      string
		spend     decimal.Decimal
		suppliers map[int64]struct{}
	}
	byCat := make(map[int64]*catAgg)
	for _, r := range rows {
		c, ok := byCat[r.CategoryID]
		if !ok {
			c = &catAgg{id: r.CategoryID, name: r.CategoryName, suppliers: make(map[int64]struct{})}
			byCat[r.CategoryID] = c
		}
		c.spend = c.spend.Add(r.Amount)
		c.suppliers[r.SupplierID] = struct{}{}
	}

	spendThreshold := e.cfg.FallbackSpendThreshold
	supplierThreshold := e.cfg.FallbackSupplierThreshold
	if len(byCat) >= 2 {
		spends := make([]decimal.Decimal, 0, len(byCat))
		counts := make([]float64, 0, len(byCat))
		for _, c := range byCat {
			spends = append(spends, c.spend)
			counts = append(counts, float64(len(c.suppliers)))
		}
		spendThreshold = medianDecimal(spends)
		supplierThreshold = medianFloat(counts)
	}

	result := Stratification{
		Categories:        make([]CategoryTier, 0, len(byCat)),
		SpendThreshold:    spendThreshold,
		SupplierThreshold: supplierThreshold,
	}
	for _, c := range byCat {
		highSpend := c.spend.GreaterThanOrEqual(spendThreshold)
		manySuppliers := float64(len(c.suppliers)) >= supplierThreshold
		tier := TierTactical
		switch {
		case highSpend && !manySuppliers:
			tier = TierStrategic
		case highSpend && manySuppliers:
			tier = TierLeverage
		case !highSpend && !manySuppliers:
			tier = TierBottleneck
		}
		result.Categories = append(result.Categories, CategoryTier{
			CategoryID:    c.id,
			Category:      c.name,
			TotalSpend:    c.spend,
			SupplierCount: len(c.suppliers),
			Tier:          tier,
		})
	}
	sort.Slice(result.Categories, func(i, j int) bool {
		a, b := result.Categories[i], result.Categories[j]
		if !a.TotalSpend.Equal(b.TotalSpend) {
			return a.TotalSpend.GreaterThan(b.TotalSpend)
		}
		return a.Category < b.Category
	})
	return result
}

// Seasonality averages spend per calendar month-of-year across all years on
// record. Occurrences counts distinct year-month periods, not transactions.
func (e *Engine) Seasonality(rows []Row) []SeasonalityEntry {
	totals := make([]decimal.Decimal, 13)
	periods := make([]map[int]struct{}, 13)
	for i := range periods {
		periods[i] = make(map[int]struct{})
	}
	for _, r := range rows {
		m := int(r.Date.Month())
		totals[m] = totals[m].Add(r.Amount)
		periods[m][r.Date.Year()] = struct{}{}
	}

	entries := make([]SeasonalityEntry, 0, 12)
	for m := 1; m <= 12; m++ {
		entry := SeasonalityEntry{
			Month:       m,
			MonthName:   time.Month(m).String(),
			Occurrences: len(periods[m]),
		}
		if entry.Occurrences > 0 {
			entry.AverageSpend = totals[m].Div(decimal.NewFromInt(int64(entry.Occurrences))).Round(2)
		}
		entries = append(entries, entry)
	}
	return entries
}

// YearOverYear aggregates per calendar year, ascending, with growth against
// the preceding year on record. The first year, or growth over a zero-spend
// year, carries no growth figure at all.
func (e *Engine) YearOverYear(rows []Row) []YearTotal {
	type yearAgg struct {
		spend decimal.Decimal
		count int
	}
	byYear := make(map[int]*yearAgg)
	for _, r := range rows {
		y, ok := byYear[r.Date.Year()]
		if !ok {
			y = &yearAgg{}
			byYear[r.Date.Year()] = y
		}
		y.spend = y.spend.Add(r.Amount)
		y.count++
	}

	years := make([]int, 0, len(byYear))
	for year := range byYear {
		years = append(years, year)
	}
	sort.Ints(years)

	totals := make([]YearTotal, 0, len(years))
	for i, year := range years {
		agg := byYear[year]
		total := YearTotal{
			Year:             year,
			TotalSpend:       agg.spend,
			TransactionCount: agg.count,
		}
		if agg.count > 0 {
			total.AvgTransaction = agg.spend.Div(decimal.NewFromInt(int64(agg.count))).Round(2)
		}
		if i > 0 {
			prev := byYear[years[i-1]].spend
			if prev.Sign() != 0 {
				growth := agg.spend.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100)).InexactFloat64()
				total.GrowthPercentage = &growth
			}
		}
		totals = append(totals, total)
	}
	return totals
}

// Consolidation lists categories bought from more than one supplier.
// PotentialSavings applies the configured rate to the spend of every
// supplier but the leader; it is a heuristic, not measured savings.
func (e *Engine) Consolidation(rows []Row) []ConsolidationOpportunity {
	type catRows struct {
		id   int64
		name string
		rows []Row
	}
	byCat := make(map[int64]*catRows)
	for _, r := range rows {
		c, ok := byCat[r.CategoryID]
		if !ok {
			c = &catRows{id: r.CategoryID, name: r.CategoryName}
			byCat[r.CategoryID] = c
		}
		c.rows = append(c.rows, r)
	}

	opportunities := make([]ConsolidationOpportunity, 0)
	for _, c := range byCat {
		suppliers := e.SpendBySupplier(c.rows)
		if len(suppliers) < 2 {
			continue
		}
		var total, nonLeader decimal.Decimal
		for i, s := range suppliers {
			total = total.Add(s.Amount)
			if i > 0 {
				nonLeader = nonLeader.Add(s.Amount)
			}
		}
		opportunities = append(opportunities, ConsolidationOpportunity{
			CategoryID:       c.id,
			Category:         c.name,
			SupplierCount:    len(suppliers),
			TotalSpend:       total,
			Suppliers:        suppliers,
			PotentialSavings: nonLeader.Mul(e.cfg.SavingsRate).Round(2),
		})
	}
	sort.Slice(opportunities, func(i, j int) bool {
		a, b := opportunities[i], opportunities[j]
		if !a.PotentialSavings.Equal(b.PotentialSavings) {
			return a.PotentialSavings.GreaterThan(b.PotentialSavings)
		}
		return a.Category < b.Category
	})
	return opportunities
}

func sortByAmountDesc(groups []GroupTotal) {
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if !a.Amount.Equal(b.Amount) {
			return a.Amount.GreaterThan(b.Amount)
		}
		return a.Name < b.Name
	})
}

func percentOf(part, total decimal.Decimal) float64 {
	if total.Sign() == 0 {
		return 0
	}
	return part.Div(total).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

func medianDecimal(values []decimal.Decimal) decimal.Decimal {
	sort.Slice(values, func(i, j int) bool { return values[i].LessThan(values[j]) })
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return values[n/2-1].Add(values[n/2]).Div(decimal.NewFromInt(2))
}

func medianFloat(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}
