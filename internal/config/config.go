// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New returns defaults; Load layers a YAML file and CLTV_* env vars on top.
//   - Every field is checked with validator tags before the config is returned.
//   - External errors are wrapped with this package's sentinels.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`
	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required_if=Serve true"`
	// Serve keeps the read API running after the pipeline finishes.
	Serve bool `koanf:"serve"`

	// Source picks where invoice lines come from.
	Source string `koanf:"source" validate:"oneof=mysql excel synthetic"`

	MySQLDSN          string `koanf:"mysql_dsn" validate:"required_if=Source mysql"`
	TransactionsTable string `koanf:"transactions_table" validate:"required"`
	ResultsTable      string `koanf:"results_table" validate:"required"`

	ExcelInput  string `koanf:"excel_input" validate:"required_if=Source excel"`
	ExcelSheet  string `koanf:"excel_sheet" validate:"required"`
	ExcelOutput string `koanf:"excel_output"`

	// Country keeps only lines of one country when set.
	Country string `koanf:"country"`
	// CutoffDate is the observation end (YYYY-MM-DD); empty means the latest
	// invoice day plus CutoffOffsetDays.
	CutoffDate       string `koanf:"cutoff_date" validate:"omitempty,datetime=2006-01-02"`
	CutoffOffsetDays int    `koanf:"cutoff_offset_days" validate:"gte=0"`
	// TimeUnitDays converts day ages into model time units (7 = weeks).
	TimeUnitDays   int  `koanf:"time_unit_days" validate:"gt=0"`
	DropDuplicates bool `koanf:"drop_duplicates"`

	OutlierLowerQuantile float64 `koanf:"outlier_lower_quantile" validate:"gte=0,lt=1"`
	OutlierUpperQuantile float64 `koanf:"outlier_upper_quantile" validate:"gtfield=OutlierLowerQuantile,lte=1"`
	OutlierIQRMultiplier float64 `koanf:"outlier_iqr_multiplier" validate:"gte=0"`

	// MinFrequency is the smallest repeat-purchase count a customer needs.
	MinFrequency int `koanf:"min_frequency" validate:"gte=1"`

	Penalizer     float64 `koanf:"penalizer" validate:"gte=0"`
	MaxIterations int     `koanf:"max_iterations" validate:"gt=0"`
	Tolerance     float64 `koanf:"tolerance" validate:"gt=0"`

	ShortHorizon   float64 `koanf:"short_horizon" validate:"gte=0"`
	LongHorizon    float64 `koanf:"long_horizon" validate:"gte=0"`
	HorizonPeriods int     `koanf:"horizon_periods" validate:"gte=0"`
	PeriodLength   float64 `koanf:"period_length" validate:"gt=0"`
	DiscountRate   float64 `koanf:"discount_rate" validate:"gte=0"`

	// SegmentLabels name the CLTV quantile bins from lowest to highest.
	SegmentLabels []string `koanf:"segment_labels" validate:"min=1,unique,dive,required"`

	// WorkerCount sets the number of prediction workers.
	WorkerCount int `koanf:"worker_count" validate:"gt=0"`
	// QueueSize bounds the prediction job queue.
	QueueSize int `koanf:"queue_size" validate:"gt=0"`

	// RedisURL enables the shared parameter cache when set.
	RedisURL string        `koanf:"redis_url" validate:"omitempty,url"`
	CacheTTL time.Duration `koanf:"cache_ttl" validate:"gte=0s"`

	// Progress draws a progress bar on stderr while customers are valued.
	Progress bool `koanf:"progress"`

	// MaxTopLimit caps GET /customers?limit.
	MaxTopLimit int `koanf:"max_top_limit" validate:"gt=0"`

	SyntheticCustomers int    `koanf:"synthetic_customers" validate:"gt=0"`
	SyntheticSeed      uint64 `koanf:"synthetic_seed"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		Serve:                true,
		Source:               "synthetic",
		TransactionsTable:    "online_retail",
		ResultsTable:         "customer_cltv",
		ExcelSheet:           "Sheet1",
		CutoffOffsetDays:     2,
		TimeUnitDays:         7,
		OutlierLowerQuantile: 0.01,
		OutlierUpperQuantile: 0.99,
		OutlierIQRMultiplier: 1.5,
		MinFrequency:         2,
		Penalizer:            0.001,
		MaxIterations:        2000,
		Tolerance:            1e-7,
		ShortHorizon:         1,
		LongHorizon:          4,
		HorizonPeriods:       6,
		PeriodLength:         4.345,
		DiscountRate:         0.01,
		SegmentLabels:        []string{"D", "C", "B", "A"},
		WorkerCount:          runtime.NumCPU(),
		QueueSize:            1024,
		CacheTTL:             24 * time.Hour,
		MaxTopLimit:          100,
		SyntheticCustomers:   2000,
		SyntheticSeed:        42,
	}
}

// Cutoff returns the configured observation end, or false when it should be
// derived from the data.
func (c *Config) Cutoff() (time.Time, bool) {
	if c.CutoffDate == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, c.CutoffDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
