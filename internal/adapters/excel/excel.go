// Package excel reads invoice lines from and writes run results to xlsx
// workbooks.
package excel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/okian/cltv/internal/domain/model"
)

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("missing column")

// Header names written by WriteTransactions and matched by ReadTransactions.
var transactionHeader = []string{"Invoice", "StockCode", "Quantity", "InvoiceDate", "Price", "Customer ID", "Country"}

// aliases maps normalized header text to a column key.
var aliases = map[string]string{
	"invoice":     "invoice",
	"invoiceno":   "invoice",
	"stockcode":   "stockcode",
	"quantity":    "quantity",
	"price":       "price",
	"unitprice":   "price",
	"invoicedate": "invoicedate",
	"customerid":  "customerid",
	"country":     "country",
}

var required = []string{"invoice", "quantity", "price", "invoicedate", "customerid"}

var textDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05Z07:00",
	"1/2/2006 15:04",
	"2006-01-02",
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "").Replace(h)
}

// ReadTransactions loads every data row of sheet. Dates may be Excel serial
// numbers or text. Rows with unparsable numbers or dates are rejected.
func ReadTransactions(path, sheet string) ([]model.Transaction, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q: %w: header row", sheet, ErrMissingColumn)
	}

	cols := make(map[string]int)
	for i, h := range rows[0] {
		if key, ok := aliases[normalizeHeader(h)]; ok {
			if _, seen := cols[key]; !seen {
				cols[key] = i
			}
		}
	}
	for _, key := range required {
		if _, ok := cols[key]; !ok {
			return nil, fmt.Errorf("sheet %q: %w: %s", sheet, ErrMissingColumn, key)
		}
	}

	cell := func(row []string, key string) string {
		i, ok := cols[key]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	out := make([]model.Transaction, 0, len(rows)-1)
	for n, row := range rows[1:] {
		line := n + 2
		if len(row) == 0 {
			continue
		}
		qty, err := parseNumber(cell(row, "quantity"))
		if err != nil {
			return nil, fmt.Errorf("row %d quantity: %w", line, err)
		}
		price, err := parseNumber(cell(row, "price"))
		if err != nil {
			return nil, fmt.Errorf("row %d price: %w", line, err)
		}
		date, err := parseDate(cell(row, "invoicedate"))
		if err != nil {
			return nil, fmt.Errorf("row %d invoice date: %w", line, err)
		}
		out = append(out, model.Transaction{
			Invoice:     cell(row, "invoice"),
			StockCode:   cell(row, "stockcode"),
			Quantity:    qty,
			Price:       price,
			InvoiceDate: date,
			CustomerID:  model.NormalizeCustomerID(cell(row, "customerid")),
			Country:     cell(row, "country"),
		})
	}
	return out, nil
}

// parseNumber treats an empty cell as zero.
func parseNumber(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, err
		}
		// Serial dates carry sub-second float noise.
		return t.Round(time.Second), nil
	}
	for _, layout := range textDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
