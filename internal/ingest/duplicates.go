package ingest

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Match is a committed transaction that collides with a candidate.
type Match struct {
	TransactionID int64
	InvoiceNumber string
	AmountEqual   bool
	DateEqual     bool
}

// MatchStore looks up committed transactions that could collide with a
// candidate: same organization and supplier, and either the same invoice
// number or the same (amount, date) tuple. Logical deletes are excluded.
type MatchStore interface {
	FindMatches(ctx context.Context, orgID, supplierID int64, amount decimal.Decimal, date time.Time, invoiceNumber string) ([]Match, error)
}

// DetectionResult reports the detector's verdict for one candidate.
type DetectionResult struct {
	Duplicate bool
	// MatchedID is the committed transaction considered the duplicate's
	// original, when Duplicate is true.
	MatchedID int64
	// Ambiguous is set when the invoice number and the fallback tuple point
	// at different committed transactions. The invoice match wins, but the
	// row is worth manual review.
	Ambiguous bool
}

// DuplicateDetector decides whether a candidate already exists for the
// organization.
//
// The decision is a heuristic, not an exact-content match: an invoice number
// present on both sides is authoritative; when either side lacks one, the
// (supplier, amount, date) tuple decides. Detection consults committed state
// only, so two concurrent uploads inserting the same row may both succeed —
// an accepted eventual-consistency trade-off, surfaced later by the
// duplicate report.
type DuplicateDetector struct {
	store MatchStore
}

// NewDuplicateDetector constructs a detector over committed transactions.
func NewDuplicateDetector(store MatchStore) *DuplicateDetector {
	return &DuplicateDetector{store: store}
}

// Inspect classifies one candidate against committed state.
func (d *DuplicateDetector) Inspect(ctx context.Context, orgID int64, cand Candidate) (DetectionResult, error) {
	matches, err := d.store.FindMatches(ctx, orgID, cand.SupplierID, cand.Amount, cand.Date, cand.InvoiceNumber)
	if err != nil {
		return DetectionResult{}, err
	}
	if len(matches) == 0 {
		return DetectionResult{}, nil
	}

	var invoiceMatch *Match
	var tupleMatch *Match
	for i := range matches {
		m := matches[i]
		if cand.InvoiceNumber != "" && m.InvoiceNumber == cand.InvoiceNumber {
			if invoiceMatch == nil {
				invoiceMatch = &m
			}
			continue
		}
		if m.AmountEqual && m.DateEqual {
			// The tuple only decides when the invoice signal is missing on
			// one side; two differing invoice numbers mean distinct rows.
			if cand.InvoiceNumber != "" && m.InvoiceNumber != "" {
				continue
			}
			if tupleMatch == nil {
				tupleMatch = &m
			}
		}
	}

	switch {
	case invoiceMatch != nil:
		return DetectionResult{
			Duplicate: true,
			MatchedID: invoiceMatch.TransactionID,
			Ambiguous: tupleMatch != nil && tupleMatch.TransactionID != invoiceMatch.TransactionID,
		}, nil
	case tupleMatch != nil:
		return DetectionResult{Duplicate: true, MatchedID: tupleMatch.TransactionID}, nil
	default:
		return DetectionResult{}, nil
	}
}
