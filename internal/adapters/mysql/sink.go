package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/okian/cltv/internal/domain/model"
)

const insertBatch = 500

var resultColumns = []string{
	"run_id", "customer_id", "frequency", "recency", "t", "monetary",
	"expected_short", "expected_long", "probability_alive", "expected_average_value",
	"cltv", "scaled_cltv", "segment", "created_at",
}

// ResultSink replaces the results table with the latest run.
type ResultSink struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// NewResultSink validates table and returns a sink over db.
func NewResultSink(db *sql.DB, table string) (*ResultSink, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	return &ResultSink{db: db, table: table, now: time.Now}, nil
}

func (s *ResultSink) createStatement() string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+
		"`run_id` VARCHAR(36) NOT NULL, "+
		"`customer_id` VARCHAR(64) NOT NULL PRIMARY KEY, "+
		"`frequency` INT NOT NULL, "+
		"`recency` DOUBLE NOT NULL, "+
		"`t` DOUBLE NOT NULL, "+
		"`monetary` DOUBLE NOT NULL, "+
		"`expected_short` DOUBLE NOT NULL, "+
		"`expected_long` DOUBLE NOT NULL, "+
		"`probability_alive` DOUBLE NOT NULL, "+
		"`expected_average_value` DOUBLE NOT NULL, "+
		"`cltv` DOUBLE NOT NULL, "+
		"`scaled_cltv` DOUBLE NOT NULL, "+
		"`segment` VARCHAR(32) NOT NULL, "+
		"`created_at` DATETIME NOT NULL)", s.table)
}

// insertStatement returns a multi-row INSERT for n rows.
func (s *ResultSink) insertStatement(n int) string {
	row := "(" + strings.TrimSuffix(strings.Repeat("?,", len(resultColumns)), ",") + ")"
	rows := strings.TrimSuffix(strings.Repeat(row+",", n), ",")
	return fmt.Sprintf("INSERT INTO `%s` (`%s`) VALUES %s", s.table, strings.Join(resultColumns, "`, `"), rows)
}

// Save creates the table if missing, then clears it and inserts values in
// batches inside one transaction. MySQL commits implicitly around DDL, so the
// CREATE runs before the transaction begins.
func (s *ResultSink) Save(ctx context.Context, runID string, values []model.CustomerValue) (err error) {
	if _, err = s.db.ExecContext(ctx, s.createStatement()); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM `%s`", s.table)); err != nil {
		return fmt.Errorf("clear %s: %w", s.table, err)
	}

	created := s.now().UTC()
	for start := 0; start < len(values); start += insertBatch {
		batch := values[start:min(start+insertBatch, len(values))]
		args := make([]any, 0, len(batch)*len(resultColumns))
		for _, v := range batch {
			args = append(args, runID, v.CustomerID, v.Frequency, v.Recency, v.T, v.Monetary,
				v.ExpectedShort, v.ExpectedLong, v.ProbabilityAlive, v.ExpectedAverageValue,
				v.CLTV, v.ScaledCLTV, v.Segment, created)
		}
		if _, err = tx.ExecContext(ctx, s.insertStatement(len(batch)), args...); err != nil {
			return fmt.Errorf("insert into %s: %w", s.table, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
