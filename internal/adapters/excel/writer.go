package excel

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/okian/cltv/internal/domain/model"
)

const (
	resultsSheet = "cltv"
	paramsSheet  = "params"
	defaultSheet = "Sheet1"
	dateLayout   = "2006-01-02 15:04:05"
)

// Param is one fitted model parameter for the params sheet.
type Param struct {
	Model string
	Name  string
	Value float64
}

var resultHeader = []any{
	"run_id", "customer_id", "frequency", "recency", "T", "monetary",
	"expected_short", "expected_long", "probability_alive", "expected_average_value",
	"cltv", "scaled_cltv", "segment",
}

// WriteResults writes values to a cltv sheet and params to a params sheet.
func WriteResults(path, runID string, values []model.CustomerValue, params []Param) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(defaultSheet, resultsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(resultsSheet)
	if err != nil {
		return fmt.Errorf("stream %s: %w", resultsSheet, err)
	}
	if err := sw.SetRow("A1", resultHeader); err != nil {
		return err
	}
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			runID, v.CustomerID, v.Frequency, v.Recency, v.T, v.Monetary,
			v.ExpectedShort, v.ExpectedLong, v.ProbabilityAlive, v.ExpectedAverageValue,
			v.CLTV, v.ScaledCLTV, v.Segment,
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write %s row %d: %w", resultsSheet, i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", resultsSheet, err)
	}

	if _, err := f.NewSheet(paramsSheet); err != nil {
		return fmt.Errorf("create %s: %w", paramsSheet, err)
	}
	if err := f.SetSheetRow(paramsSheet, "A1", &[]any{"run_id", "model", "parameter", "value"}); err != nil {
		return err
	}
	for i, p := range params {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(paramsSheet, cell, &[]any{runID, p.Model, p.Name, p.Value}); err != nil {
			return fmt.Errorf("write %s row %d: %w", paramsSheet, i+2, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// WriteTransactions writes invoice lines under the header ReadTransactions
// expects. Dates are written as text.
func WriteTransactions(path, sheet string, txs []model.Transaction) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet != defaultSheet {
		if err := f.SetSheetName(defaultSheet, sheet); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("stream %s: %w", sheet, err)
	}
	header := make([]any, len(transactionHeader))
	for i, h := range transactionHeader {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for i, t := range txs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{t.Invoice, t.StockCode, t.Quantity, t.InvoiceDate.Format(dateLayout), t.Price, t.CustomerID, t.Country}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", sheet, err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
