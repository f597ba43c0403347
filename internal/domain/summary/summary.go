// Package summary reduces cleaned invoice lines to one RFM record per
// customer.
package summary

import (
	"math"
	"slices"
	"time"

	"github.com/okian/cltv/internal/domain/model"
)

const hoursPerDay = 24

// Options controls Aggregate.
type Options struct {
	// Cutoff is the end of the observation window.
	Cutoff time.Time
	// UnitDays is the length of one model time unit in days.
	UnitDays int
	// MinFrequency drops customers with fewer repeat purchases.
	MinFrequency int
}

type invoice struct {
	date    time.Time
	revenue float64
}

// Aggregate groups lines by customer and invoice. An invoice's date is its
// earliest line and its revenue the sum of its lines. Frequency counts
// invoices after the first, recency and T are whole days divided by
// UnitDays, and monetary is the mean revenue of the repeat invoices.
// Customers below MinFrequency or without positive monetary are dropped.
// Records come back sorted by customer id.
func Aggregate(txs []model.Transaction, opts Options) ([]model.Summary, error) {
	if opts.UnitDays <= 0 {
		return nil, model.Invalid("unit_days", "", "must be positive", opts.UnitDays)
	}
	if opts.Cutoff.IsZero() {
		return nil, model.Invalid("cutoff", "", "must be set", opts.Cutoff)
	}

	byCustomer := make(map[string]map[string]*invoice)
	for _, t := range txs {
		invoices, ok := byCustomer[t.CustomerID]
		if !ok {
			invoices = make(map[string]*invoice)
			byCustomer[t.CustomerID] = invoices
		}
		inv, ok := invoices[t.Invoice]
		if !ok {
			inv = &invoice{date: t.InvoiceDate}
			invoices[t.Invoice] = inv
		}
		if t.InvoiceDate.Before(inv.date) {
			inv.date = t.InvoiceDate
		}
		inv.revenue += t.Revenue()
	}

	unit := float64(opts.UnitDays)
	out := make([]model.Summary, 0, len(byCustomer))
	for id, invoices := range byCustomer {
		list := make([]invoice, 0, len(invoices))
		for _, inv := range invoices {
			list = append(list, *inv)
		}
		slices.SortFunc(list, func(a, b invoice) int { return a.date.Compare(b.date) })

		first, last := list[0].date, list[len(list)-1].date
		if opts.Cutoff.Before(last) {
			return nil, model.Invalid("cutoff", id, "must not precede the customer's last invoice", opts.Cutoff)
		}
		s := model.Summary{
			CustomerID: id,
			Frequency:  len(list) - 1,
			Recency:    wholeDays(last.Sub(first)) / unit,
			T:          wholeDays(opts.Cutoff.Sub(first)) / unit,
		}
		if s.Frequency > 0 {
			var sum float64
			for _, inv := range list[1:] {
				sum += inv.revenue
			}
			s.Monetary = sum / float64(s.Frequency)
		}
		if s.Frequency < opts.MinFrequency || !(s.Monetary > 0) {
			continue
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b model.Summary) int {
		switch {
		case a.CustomerID < b.CustomerID:
			return -1
		case a.CustomerID > b.CustomerID:
			return 1
		}
		return 0
	})
	return out, nil
}

// LatestDate returns the latest invoice date, or the zero time for no lines.
func LatestDate(txs []model.Transaction) time.Time {
	var latest time.Time
	for _, t := range txs {
		if t.InvoiceDate.After(latest) {
			latest = t.InvoiceDate
		}
	}
	return latest
}

// DefaultCutoff is midnight offsetDays after the latest invoice day.
func DefaultCutoff(txs []model.Transaction, offsetDays int) time.Time {
	latest := LatestDate(txs)
	if latest.IsZero() {
		return latest
	}
	y, m, d := latest.Date()
	return time.Date(y, m, d+offsetDays, 0, 0, 0, 0, latest.Location())
}

func wholeDays(d time.Duration) float64 {
	return math.Floor(d.Hours() / hoursPerDay)
}
