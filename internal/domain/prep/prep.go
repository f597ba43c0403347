// Package prep cleans raw invoice lines before they are reduced to customer
// summaries: it drops returns and malformed lines and caps extreme
// quantities and prices.
package prep

import (
	"context"
	"math"
	"strings"

	"github.com/okian/cltv/internal/domain/dedupe"
	"github.com/okian/cltv/internal/domain/model"
	"github.com/okian/cltv/internal/domain/numeric"
)

// Options controls Clean.
type Options struct {
	// DropDuplicates removes lines identical in every field.
	DropDuplicates bool
}

// Report counts the lines removed by each rule.
type Report struct {
	Input               int `json:"input"`
	MissingCustomer     int `json:"missing_customer"`
	Cancelled           int `json:"cancelled"`
	NonPositiveQuantity int `json:"non_positive_quantity"`
	NonPositivePrice    int `json:"non_positive_price"`
	Duplicates          int `json:"duplicates"`
	OtherCountry        int `json:"other_country"`
	Kept                int `json:"kept"`
}

// Clean drops lines without a customer, cancellation invoices and lines with
// non-positive quantity or price. Rules apply in that order and each dropped
// line is counted once.
func Clean(ctx context.Context, txs []model.Transaction, opts Options) ([]model.Transaction, Report) {
	rep := Report{Input: len(txs)}
	var seen dedupe.Deduper
	if opts.DropDuplicates {
		seen = dedupe.NewInMemoryDeduper()
	}

	out := make([]model.Transaction, 0, len(txs))
	for _, t := range txs {
		switch {
		case strings.TrimSpace(t.CustomerID) == "":
			rep.MissingCustomer++
		case t.Cancelled():
			rep.Cancelled++
		case !(t.Quantity > 0):
			rep.NonPositiveQuantity++
		case !(t.Price > 0):
			rep.NonPositivePrice++
		case seen != nil && seen.SeenAndRecord(ctx, dedupe.Key(t)):
			rep.Duplicates++
		default:
			out = append(out, t)
		}
	}
	rep.Kept = len(out)
	return out, rep
}

// FilterCountry keeps lines whose country equals country. An empty country
// keeps everything.
func FilterCountry(txs []model.Transaction, country string, rep *Report) []model.Transaction {
	if country == "" {
		return txs
	}
	out := make([]model.Transaction, 0, len(txs))
	for _, t := range txs {
		if t.Country == country {
			out = append(out, t)
		}
	}
	if rep != nil {
		rep.OtherCountry += len(txs) - len(out)
		rep.Kept = len(out)
	}
	return out
}

// Thresholds returns the outlier limits q1 - mult*iqr and q3 + mult*iqr,
// where q1 and q3 are the lowQ and highQ quantiles of values and
// iqr = q3 - q1.
func Thresholds(values []float64, lowQ, highQ, mult float64) (low, up float64, err error) {
	if len(values) == 0 {
		return 0, 0, model.Invalid("values", "", "must not be empty", 0)
	}
	if !(lowQ >= 0 && lowQ < highQ && highQ <= 1) {
		return 0, 0, model.Invalid("quantiles", "", "must satisfy 0 <= low < high <= 1", [2]float64{lowQ, highQ})
	}
	if !(mult >= 0) || math.IsInf(mult, 0) {
		return 0, 0, model.Invalid("iqr multiplier", "", "must be finite and non-negative", mult)
	}
	q1 := numeric.Quantile(values, lowQ)
	q3 := numeric.Quantile(values, highQ)
	iqr := q3 - q1
	return q1 - mult*iqr, q3 + mult*iqr, nil
}

// CapOutliers clamps Quantity and Price into their Thresholds. The input
// slice is not modified.
func CapOutliers(txs []model.Transaction, lowQ, highQ, mult float64) ([]model.Transaction, error) {
	if len(txs) == 0 {
		return nil, nil
	}
	qty := make([]float64, len(txs))
	price := make([]float64, len(txs))
	for i, t := range txs {
		qty[i], price[i] = t.Quantity, t.Price
	}
	qLow, qUp, err := Thresholds(qty, lowQ, highQ, mult)
	if err != nil {
		return nil, err
	}
	pLow, pUp, err := Thresholds(price, lowQ, highQ, mult)
	if err != nil {
		return nil, err
	}

	out := make([]model.Transaction, len(txs))
	for i, t := range txs {
		t.Quantity = clamp(t.Quantity, qLow, qUp)
		t.Price = clamp(t.Price, pLow, pUp)
		out[i] = t
	}
	return out, nil
}

func clamp(v, lo, hi float64) float64 { return math.Min(math.Max(v, lo), hi) }
