// Command synth writes a simulated transaction history to an Excel workbook
// that the excel source can read back.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/cltv/internal/adapters/excel"
	"github.com/okian/cltv/internal/domain/bgnbd"
	"github.com/okian/cltv/internal/domain/gammagamma"
	"github.com/okian/cltv/internal/synth"
	"github.com/okian/cltv/pkg/logger"
)

func main() {
	def := synth.DefaultConfig()
	var (
		output    = flag.String("output", "synthetic.xlsx", "Workbook to write")
		sheet     = flag.String("sheet", "Sheet1", "Sheet name")
		customers = flag.Int("customers", def.Customers, "Number of customers to simulate")
		seed      = flag.Uint64("seed", def.Seed, "Random seed")
		end       = flag.String("end", "2011-12-09", "Observation end date (YYYY-MM-DD)")
		unitDays  = flag.Int("unit-days", 7, "Days per model time unit")
		country   = flag.String("country", "United Kingdom", "Country written on every line")
		r         = flag.Float64("r", def.BGNBD.R, "BG/NBD r")
		alpha     = flag.Float64("alpha", def.BGNBD.Alpha, "BG/NBD alpha")
		a         = flag.Float64("a", def.BGNBD.A, "BG/NBD a")
		b         = flag.Float64("b", def.BGNBD.B, "BG/NBD b")
		p         = flag.Float64("p", def.GammaGamma.P, "Gamma-Gamma p")
		q         = flag.Float64("q", def.GammaGamma.Q, "Gamma-Gamma q")
		v         = flag.Float64("v", def.GammaGamma.V, "Gamma-Gamma v")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	ctx := context.Background()
	log := logger.Get().Named("synth")

	endDate, err := time.Parse(time.DateOnly, *end)
	if err != nil {
		log.Error(ctx, "invalid end date", logger.String("end", *end), logger.Error(err))
		os.Exit(2)
	}

	cfg := def
	cfg.Customers = *customers
	cfg.Seed = *seed
	cfg.BGNBD = bgnbd.Params{R: *r, Alpha: *alpha, A: *a, B: *b}
	cfg.GammaGamma = gammagamma.Params{P: *p, Q: *q, V: *v}

	population, err := synth.Simulate(cfg)
	if err != nil {
		log.Error(ctx, "simulation failed", logger.Error(err))
		os.Exit(1)
	}
	txs := synth.Transactions(population, synth.TransactionOptions{
		End:      endDate,
		UnitDays: *unitDays,
		Country:  *country,
	})
	if err := excel.WriteTransactions(*output, *sheet, txs); err != nil {
		log.Error(ctx, "write failed", logger.String("output", *output), logger.Error(err))
		os.Exit(1)
	}
	log.Info(ctx, "synthetic history written",
		logger.String("output", *output),
		logger.Int("customers", len(population)),
		logger.Int("lines", len(txs)),
	)
}
