package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func tx(supplier string, supplierID int64, category string, categoryID int64, amount string, date string) Row {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return Row{
		SupplierID:   supplierID,
		SupplierName: supplier,
		CategoryID:   categoryID,
		CategoryName: category,
		Amount:       d(amount),
		Date:         day,
	}
}

// abcRows is the reference scenario: suppliers A($800), B($150), C($50).
func abcRows() []Row {
	return []Row{
		tx("A", 1, "IT", 1, "800", "2024-01-10"),
		tx("B", 2, "IT", 1, "150", "2024-02-10"),
		tx("C", 3, "Office", 2, "50", "2024-03-10"),
	}
}

func defaultEngine() *Engine { return NewEngine(DefaultEngineConfig()) }

func TestOverview(t *testing.T) {
	ov := defaultEngine().Overview(abcRows())
	require.True(t, ov.TotalSpend.Equal(d("1000")))
	require.Equal(t, 3, ov.TransactionCount)
	require.Equal(t, 3, ov.SupplierCount)
	require.Equal(t, 2, ov.CategoryCount)
	require.True(t, ov.AvgTransaction.Equal(d("333.33")))
	require.Equal(t, "2024-01-10", ov.EarliestDate.Format("2006-01-02"))
	require.Equal(t, "2024-03-10", ov.LatestDate.Format("2006-01-02"))
}

func TestOverviewEmpty(t *testing.T) {
	ov := defaultEngine().Overview(nil)
	require.True(t, ov.TotalSpend.IsZero())
	require.Zero(t, ov.TransactionCount)
	require.Zero(t, ov.SupplierCount)
	require.Zero(t, ov.CategoryCount)
	require.True(t, ov.AvgTransaction.IsZero())
	require.Nil(t, ov.EarliestDate)
}

func TestPareto(t *testing.T) {
	entries := defaultEngine().Pareto(abcRows())
	require.Len(t, entries, 3)

	require.Equal(t, "A", entries[0].Supplier)
	require.True(t, entries[0].Amount.Equal(d("800")))
	require.InDelta(t, 80.0, entries[0].CumulativePercentage, 1e-9)

	require.Equal(t, "B", entries[1].Supplier)
	require.InDelta(t, 95.0, entries[1].CumulativePercentage, 1e-9)

	require.Equal(t, "C", entries[2].Supplier)
	require.InDelta(t, 100.0, entries[2].CumulativePercentage, 1e-9)
}

func TestParetoTieBreakByName(t *testing.T) {
	rows := []Row{
		tx("Zeta", 1, "IT", 1, "100", "2024-01-01"),
		tx("Alpha", 2, "IT", 1, "100", "2024-01-02"),
		tx("Mid", 3, "IT", 1, "200", "2024-01-03"),
	}
	entries := defaultEngine().Pareto(rows)
	require.Equal(t, []string{"Mid", "Alpha", "Zeta"}, []string{entries[0].Supplier, entries[1].Supplier, entries[2].Supplier})
}

func TestParetoCumulativeIsNonDecreasingAndEndsAt100(t *testing.T) {
	entries := defaultEngine().Pareto(abcRows())
	prev := 0.0
	for _, entry := range entries {
		require.GreaterOrEqual(t, entry.CumulativePercentage, prev)
		prev = entry.CumulativePercentage
	}
	require.InDelta(t, 100.0, entries[len(entries)-1].CumulativePercentage, 1e-9)
}

func TestParetoEmpty(t *testing.T) {
	require.Empty(t, defaultEngine().Pareto(nil))
}

func TestTailSpend(t *testing.T) {
	tail := defaultEngine().TailSpend(abcRows())
	require.Equal(t, 1, tail.TailCount)
	require.Len(t, tail.TailSuppliers, 1)
	require.Equal(t, "C", tail.TailSuppliers[0].Supplier)
	require.True(t, tail.TailSpend.Equal(d("50")))
	require.InDelta(t, 5.0, tail.TailPercentage, 1e-9)
}

func TestTailSpendEmpty(t *testing.T) {
	tail := defaultEngine().TailSpend(nil)
	require.Zero(t, tail.TailCount)
	require.Empty(t, tail.TailSuppliers)
	require.True(t, tail.TailSpend.IsZero())
	require.Zero(t, tail.TailPercentage)
}

func TestTailSpendThresholdMonotonic(t *testing.T) {
	rows := abcRows()
	small := NewEngine(EngineConfig{TailThreshold: 10}).TailSpend(rows)
	large := NewEngine(EngineConfig{TailThreshold: 40}).TailSpend(rows)
	require.GreaterOrEqual(t, large.TailCount, small.TailCount)
}

func TestSpendByCategoryOrdering(t *testing.T) {
	groups := defaultEngine().SpendByCategory(abcRows())
	require.Len(t, groups, 2)
	require.Equal(t, "IT", groups[0].Name)
	require.True(t, groups[0].Amount.Equal(d("950")))
	require.Equal(t, 2, groups[0].Count)
	require.InDelta(t, 95.0, groups[0].Percentage, 1e-9)
	require.Equal(t, "Office", groups[1].Name)
}

func TestMonthlyTrendContiguousAnchoredAtLatest(t *testing.T) {
	rows := []Row{
		tx("A", 1, "IT", 1, "100", "2023-11-05"),
		tx("A", 1, "IT", 1, "200", "2024-02-10"),
		tx("B", 2, "IT", 1, "300", "2024-02-20"),
	}
	points := NewEngine(EngineConfig{TrendMonths: 6}).MonthlyTrend(rows)
	require.Len(t, points, 6)
	require.Equal(t, "2023-09", points[0].Month)
	require.Equal(t, "2024-02", points[5].Month)

	// Contiguous months, zero-filled where nothing was spent.
	require.Equal(t, "2023-11", points[2].Month)
	require.True(t, points[2].Amount.Equal(d("100")))
	require.Equal(t, "2023-12", points[3].Month)
	require.True(t, points[3].Amount.IsZero())
	require.Zero(t, points[3].Count)

	require.True(t, points[5].Amount.Equal(d("500")))
	require.Equal(t, 2, points[5].Count)
}

func TestMonthlyTrendEmpty(t *testing.T) {
	require.Empty(t, defaultEngine().MonthlyTrend(nil))
}

func TestStratificationMedians(t *testing.T) {
	// Four categories spanning the four tiers. Medians: spend 525, suppliers 2.
	rows := []Row{
		tx("S1", 1, "Strategic", 1, "1000", "2024-01-01"),

		tx("S1", 1, "Leverage", 2, "300", "2024-01-02"),
		tx("S2", 2, "Leverage", 2, "300", "2024-01-03"),
		tx("S3", 3, "Leverage", 2, "300", "2024-01-04"),

		tx("S4", 4, "Bottleneck", 3, "100", "2024-01-05"),

		tx("S1", 1, "Tactical", 4, "50", "2024-01-06"),
		tx("S2", 2, "Tactical", 4, "50", "2024-01-07"),
		tx("S5", 5, "Tactical", 4, "50", "2024-01-08"),
	}
	strat := defaultEngine().Stratification(rows)
	require.Len(t, strat.Categories, 4)

	tiers := make(map[string]string, 4)
	for _, c := range strat.Categories {
		tiers[c.Category] = c.Tier
	}
	require.Equal(t, TierStrategic, tiers["Strategic"])
	require.Equal(t, TierLeverage, tiers["Leverage"])
	require.Equal(t, TierBottleneck, tiers["Bottleneck"])
	require.Equal(t, TierTactical, tiers["Tactical"])
}

func TestStratificationSingleCategoryUsesFixedThresholds(t *testing.T) {
	rows := []Row{
		tx("S1", 1, "Only", 1, "15000", "2024-01-01"),
	}
	strat := defaultEngine().Stratification(rows)
	require.Len(t, strat.Categories, 1)
	require.Equal(t, TierStrategic, strat.Categories[0].Tier)
	require.True(t, strat.SpendThreshold.Equal(d("10000.00")))

	rows[0].Amount = d("500")
	strat = defaultEngine().Stratification(rows)
	require.Equal(t, TierBottleneck, strat.Categories[0].Tier)
}

func TestStratificationEmpty(t *testing.T) {
	strat := defaultEngine().Stratification(nil)
	require.Empty(t, strat.Categories)
}

func TestSeasonalityOneTransactionPerMonth(t *testing.T) {
	var rows []Row
	for m := 1; m <= 12; m++ {
		rows = append(rows, tx("A", 1, "IT", 1, "100", time.Date(2024, time.Month(m), 15, 0, 0, 0, 0, time.UTC).Format("2006-01-02")))
	}
	entries := defaultEngine().Seasonality(rows)
	require.Len(t, entries, 12)
	for _, entry := range entries {
		require.Equal(t, 1, entry.Occurrences)
		require.True(t, entry.AverageSpend.Equal(d("100")), "month %d", entry.Month)
	}
}

func TestSeasonalityAveragesAcrossYears(t *testing.T) {
	rows := []Row{
		tx("A", 1, "IT", 1, "100", "2023-06-10"),
		tx("A", 1, "IT", 1, "300", "2024-06-10"),
	}
	entries := defaultEngine().Seasonality(rows)
	june := entries[5]
	require.Equal(t, 6, june.Month)
	require.Equal(t, "June", june.MonthName)
	require.Equal(t, 2, june.Occurrences)
	require.True(t, june.AverageSpend.Equal(d("200")))

	july := entries[6]
	require.Zero(t, july.Occurrences)
	require.True(t, july.AverageSpend.IsZero())
}

func TestYearOverYear(t *testing.T) {
	rows := []Row{
		tx("A", 1, "IT", 1, "1000", "2022-05-01"),
		tx("A", 1, "IT", 1, "1100", "2023-05-01"),
		tx("B", 2, "IT", 1, "400", "2023-06-01"),
	}
	totals := defaultEngine().YearOverYear(rows)
	require.Len(t, totals, 2)

	require.Equal(t, 2022, totals[0].Year)
	require.Nil(t, totals[0].GrowthPercentage, "first year has no growth figure")

	require.Equal(t, 2023, totals[1].Year)
	require.True(t, totals[1].TotalSpend.Equal(d("1500")))
	require.Equal(t, 2, totals[1].TransactionCount)
	require.True(t, totals[1].AvgTransaction.Equal(d("750")))
	require.NotNil(t, totals[1].GrowthPercentage)
	require.InDelta(t, 50.0, *totals[1].GrowthPercentage, 1e-9)
}

func TestYearOverYearZeroPreviousYearOmitsGrowth(t *testing.T) {
	rows := []Row{
		tx("A", 1, "IT", 1, "100", "2022-05-01"),
		tx("A", 1, "IT", 1, "-100", "2022-06-01"),
		tx("A", 1, "IT", 1, "500", "2023-05-01"),
	}
	totals := defaultEngine().YearOverYear(rows)
	require.Len(t, totals, 2)
	require.True(t, totals[0].TotalSpend.IsZero())
	require.Nil(t, totals[1].GrowthPercentage, "zero-spend base year yields no growth figure")
}

func TestConsolidation(t *testing.T) {
	rows := []Row{
		tx("A", 1, "IT", 1, "800", "2024-01-01"),
		tx("B", 2, "IT", 1, "150", "2024-01-02"),
		tx("C", 3, "IT", 1, "50", "2024-01-03"),
		tx("A", 1, "Office", 2, "100", "2024-01-04"),
	}
	opportunities := defaultEngine().Consolidation(rows)
	require.Len(t, opportunities, 1, "single-supplier categories are not opportunities")

	opp := opportunities[0]
	require.Equal(t, "IT", opp.Category)
	require.Equal(t, 3, opp.SupplierCount)
	require.True(t, opp.TotalSpend.Equal(d("1000")))
	require.Equal(t, "A", opp.Suppliers[0].Name, "leader first")
	// 10% of the non-leader spend (150 + 50).
	require.True(t, opp.PotentialSavings.Equal(d("20.00")))
}

func TestConsolidationEmpty(t *testing.T) {
	require.Empty(t, defaultEngine().Consolidation(nil))
}

func TestNegativeAmountsFlowThroughAggregation(t *testing.T) {
	rows := []Row{
		tx("A", 1, "IT", 1, "500", "2024-01-01"),
		tx("A", 1, "IT", 1, "-100", "2024-01-15"),
	}
	ov := defaultEngine().Overview(rows)
	require.True(t, ov.TotalSpend.Equal(d("400")), "credits reduce total spend, never dropped")
	require.Equal(t, 2, ov.TransactionCount)
}
