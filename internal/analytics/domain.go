// Package analytics derives spend-analysis views from an organization's
// committed transactions: concentration, tiering, trends and consolidation.
package analytics

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Row is one committed transaction as the engine sees it, joined with its
// supplier and category names.
type Row struct {
	SupplierID   int64
	SupplierName string
	CategoryID   int64
	CategoryName string
	Amount       decimal.Decimal
	Date         time.Time
}

// Filters narrows the transaction set a view is computed over.
type Filters struct {
	DateFrom   *time.Time
	DateTo     *time.Time
	SupplierID int64
	CategoryID int64
}

// Overview is the headline numbers for a dashboard.
type Overview struct {
	TotalSpend       decimal.Decimal `json:"total_spend"`
	TransactionCount int             `json:"transaction_count"`
	SupplierCount    int             `json:"supplier_count"`
	CategoryCount    int             `json:"category_count"`
	AvgTransaction   decimal.Decimal `json:"avg_transaction"`
	EarliestDate     *time.Time      `json:"earliest_date,omitempty"`
	LatestDate       *time.Time      `json:"latest_date,omitempty"`
}

// GroupTotal is one supplier or category with its summed spend.
type GroupTotal struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
	Count      int             `json:"count"`
	Percentage float64         `json:"percentage"`
}

// ParetoEntry is one supplier on the descending concentration curve.
type ParetoEntry struct {
	SupplierID           int64           `json:"supplier_id"`
	Supplier             string          `json:"supplier"`
	Amount               decimal.Decimal `json:"amount"`
	CumulativePercentage float64         `json:"cumulative_percentage"`
}

// TailSpend reports the low-value trailing suppliers.
type TailSpend struct {
	Threshold      float64         `json:"threshold"`
	TailSuppliers  []ParetoEntry   `json:"tail_suppliers"`
	TailCount      int             `json:"tail_count"`
	TailSpend      decimal.Decimal `json:"tail_spend"`
	TailPercentage float64         `json:"tail_percentage"`
}

// TrendPoint is one calendar month on the trailing spend trend.
type TrendPoint struct {
	Month  string          `json:"month"`
	Amount decimal.Decimal `json:"amount"`
	Count  int             `json:"count"`
}

// Tier labels for category stratification.
const (
	TierStrategic  = "strategic"
	TierLeverage   = "leverage"
	TierBottleneck = "bottleneck"
	TierTactical   = "tactical"
)

// CategoryTier is one category's stratification verdict.
type CategoryTier struct {
	CategoryID    int64           `json:"category_id"`
	Category      string          `json:"category"`
	TotalSpend    decimal.Decimal `json:"total_spend"`
	SupplierCount int             `json:"supplier_count"`
	Tier          string          `json:"tier"`
}

// Stratification classifies every category into one of four tiers, with the
// thresholds that were applied.
type Stratification struct {
	Categories        []CategoryTier  `json:"categories"`
	SpendThreshold    decimal.Decimal `json:"spend_threshold"`
	SupplierThreshold float64         `json:"supplier_threshold"`
}

// SeasonalityEntry is the historical average for one calendar month.
type SeasonalityEntry struct {
	Month        int             `json:"month"`
	MonthName    string          `json:"month_name"`
	AverageSpend decimal.Decimal `json:"average_spend"`
	Occurrences  int             `json:"occurrences"`
}

// YearTotal is one calendar year's aggregate with growth against the
// preceding year on record. Growth is omitted when there is no usable
// predecessor.
type YearTotal struct {
	Year             int             `json:"year"`
	TotalSpend       decimal.Decimal `json:"total_spend"`
	TransactionCount int             `json:"transaction_count"`
	AvgTransaction   decimal.Decimal `json:"avg_transaction"`
	GrowthPercentage *float64        `json:"growth_percentage,omitempty"`
}

// ConsolidationOpportunity is a category spread across several suppliers.
// PotentialSavings is a heuristic estimate (a configured fraction of the
// non-leader spend), not a measured figure.
type ConsolidationOpportunity struct {
	CategoryID       int64           `json:"category_id"`
	Category         string          `json:"category"`
	SupplierCount    int             `json:"supplier_count"`
	TotalSpend       decimal.Decimal `json:"total_spend"`
	Suppliers        []GroupTotal    `json:"suppliers"`
	PotentialSavings decimal.Decimal `json:"potential_savings"`
}

// ErrNotFound indicates the organization has no such resource.
var ErrNotFound = errors.New("analytics: not found")
