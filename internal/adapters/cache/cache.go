// Package cache stores fitted model parameters keyed by a fingerprint of
// the data and fit settings, so identical inputs skip refitting.
package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/cltv/internal/domain/model"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// ParamsCache stores JSON-encodable values by key.
type ParamsCache interface {
	// Get decodes the value stored under key into dst, or returns ErrMiss.
	Get(ctx context.Context, key string, dst any) error
	// Set stores v under key.
	Set(ctx context.Context, key string, v any) error
}

// FitSettings are the inputs besides the records that change a fit.
type FitSettings struct {
	Model         string
	Penalizer     float64
	MaxIterations int
	Tolerance     float64
}

// Fingerprint hashes the records in order together with the fit settings.
func Fingerprint(records []model.Summary, s FitSettings) string {
	d := xxhash.New()
	buf := make([]byte, 0, 64)

	writeString := func(v string) {
		buf = binary.LittleEndian.AppendUint64(buf[:0], uint64(len(v)))
		_, _ = d.Write(buf)
		_, _ = d.WriteString(v)
	}
	writeFloat := func(v float64) {
		buf = binary.LittleEndian.AppendUint64(buf[:0], math.Float64bits(v))
		_, _ = d.Write(buf)
	}

	writeString(s.Model)
	writeFloat(s.Penalizer)
	writeFloat(float64(s.MaxIterations))
	writeFloat(s.Tolerance)
	for _, r := range records {
		writeString(r.CustomerID)
		writeFloat(float64(r.Frequency))
		writeFloat(r.Recency)
		writeFloat(r.T)
		writeFloat(r.Monetary)
	}
	return s.Model + ":" + strconv.FormatUint(d.Sum64(), 16)
}
