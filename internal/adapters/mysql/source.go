package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/okian/cltv/internal/domain/model"
)

// TransactionSource reads invoice lines laid out like the Online Retail II
// export (Invoice, StockCode, Quantity, Price, InvoiceDate, Customer ID, Country).
type TransactionSource struct {
	db    *sql.DB
	table string
}

// NewTransactionSource validates table and returns a source over db.
func NewTransactionSource(db *sql.DB, table string) (*TransactionSource, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	return &TransactionSource{db: db, table: table}, nil
}

// Load returns every line of the table. NULL cells load as zero values and
// are dropped by cleaning.
func (s *TransactionSource) Load(ctx context.Context) ([]model.Transaction, error) {
	q := fmt.Sprintf("SELECT `Invoice`, `StockCode`, `Quantity`, `Price`, `InvoiceDate`, `Customer ID`, `Country` FROM `%s`", s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var (
			invoice, stock, customer, country sql.NullString
			qty, price                        sql.NullFloat64
			date                              sql.NullTime
		)
		if err := rows.Scan(&invoice, &stock, &qty, &price, &date, &customer, &country); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table, err)
		}
		out = append(out, model.Transaction{
			Invoice:     invoice.String,
			StockCode:   stock.String,
			Quantity:    qty.Float64,
			Price:       price.Float64,
			InvoiceDate: date.Time,
			CustomerID:  model.NormalizeCustomerID(customer.String),
			Country:     country.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.table, err)
	}
	return out, nil
}
