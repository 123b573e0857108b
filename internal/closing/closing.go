// Package closing derives the daily closing ledger rows from physical
// stock counts. The arithmetic lives here, free of storage concerns, so
// every store backend applies the exact same reconciliation.
package closing

import (
	"time"

	"panaderia/backend/internal/domain"
)

// Derive computes the closing row for a single product given the
// physical count for the day. A product missing from the submitted
// counts is treated as counted zero by the caller.
//
// The derivation reads the live counters as they stand at closing time:
// opening stock is reconstructed by subtracting today's production from
// the current stock, and units sold is whatever of the available stock
// did not survive the count. A count above the available stock would
// make sales negative; it is clamped to zero and the uncorrected delta
// is kept on the record for auditing.
func Derive(p domain.Product, date time.Time, counted int, now time.Time) domain.ClosingRecord {
	opening := p.Stock - p.ProducedToday
	available := opening + p.ProducedToday
	rawDelta := available - counted
	sales := rawDelta
	if sales < 0 {
		sales = 0
	}
	return domain.ClosingRecord{
		Date:         date,
		ProductID:    p.ID,
		ProductName:  p.Name,
		OpeningStock: opening,
		Produced:     p.ProducedToday,
		CountedStock: counted,
		SalesDerived: sales,
		RevenueCents: int64(sales) * p.PriceCents,
		RawDelta:     rawDelta,
		CreatedAt:    now,
	}
}

// Apply returns the product as it should look after the closing is
// committed: stock reset to the physical count, daily counters zeroed.
func Apply(p domain.Product, counted int) domain.Product {
	p.Stock = counted
	p.ProducedToday = 0
	p.SoldToday = 0
	return p
}

// NormalizeDate truncates t to UTC midnight, the canonical form for
// ledger dates.
func NormalizeDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
