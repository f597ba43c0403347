package service

import (
	"runtime"
	"time"

	"github.com/okian/cltv/internal/config"
	"github.com/okian/cltv/internal/domain/cltv"
	"github.com/okian/cltv/internal/domain/segment"
)

// Settings holds the pipeline parameters.
type Settings struct {
	Country          string
	Cutoff           time.Time // zero derives it from the data
	CutoffOffsetDays int
	UnitDays         int
	DropDuplicates   bool

	OutlierLowerQuantile float64
	OutlierUpperQuantile float64
	OutlierIQRMultiplier float64

	MinFrequency  int
	Penalizer     float64
	MaxIterations int
	Tolerance     float64

	ShortHorizon  float64
	LongHorizon   float64
	Horizon       cltv.Horizon
	SegmentLabels []string

	WorkerCount int
	QueueSize   int
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		CutoffOffsetDays:     2,
		UnitDays:             7,
		OutlierLowerQuantile: 0.01,
		OutlierUpperQuantile: 0.99,
		OutlierIQRMultiplier: 1.5,
		MinFrequency:         2,
		Penalizer:            0.001,
		MaxIterations:        2000,
		Tolerance:            1e-7,
		ShortHorizon:         1,
		LongHorizon:          4,
		Horizon:              cltv.Horizon{Periods: 6, PeriodLength: 4.345, DiscountRate: 0.01},
		SegmentLabels:        append([]string(nil), segment.DefaultLabels...),
		WorkerCount:          runtime.NumCPU(),
		QueueSize:            1024,
	}
}

// SettingsFromConfig maps a validated configuration onto Settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	s := Settings{
		Country:              cfg.Country,
		CutoffOffsetDays:     cfg.CutoffOffsetDays,
		UnitDays:             cfg.TimeUnitDays,
		DropDuplicates:       cfg.DropDuplicates,
		OutlierLowerQuantile: cfg.OutlierLowerQuantile,
		OutlierUpperQuantile: cfg.OutlierUpperQuantile,
		OutlierIQRMultiplier: cfg.OutlierIQRMultiplier,
		MinFrequency:         cfg.MinFrequency,
		Penalizer:            cfg.Penalizer,
		MaxIterations:        cfg.MaxIterations,
		Tolerance:            cfg.Tolerance,
		ShortHorizon:         cfg.ShortHorizon,
		LongHorizon:          cfg.LongHorizon,
		Horizon: cltv.Horizon{
			Periods:      cfg.HorizonPeriods,
			PeriodLength: cfg.PeriodLength,
			DiscountRate: cfg.DiscountRate,
		},
		SegmentLabels: cfg.SegmentLabels,
		WorkerCount:   cfg.WorkerCount,
		QueueSize:     cfg.QueueSize,
	}
	if at, ok := cfg.Cutoff(); ok {
		s.Cutoff = at
	}
	return s
}
