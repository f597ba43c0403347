// Package dedupe tracks fingerprints of already seen invoice lines so exact
// duplicates can be dropped while cleaning.
package dedupe

import (
	"context"
	"encoding/binary"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/cltv/internal/domain/model"
)

// Deduper records seen fingerprints.
type Deduper interface {
	// SeenAndRecord reports whether key was seen before and records it if not.
	SeenAndRecord(ctx context.Context, key uint64) bool
	Size() int
}

// Key fingerprints every field of an invoice line.
func Key(t model.Transaction) uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, s := range []string{t.Invoice, t.StockCode, t.CustomerID, t.Country} {
		_, _ = d.WriteString(s)
		_, _ = d.Write([]byte{0})
	}
	for _, f := range []float64{t.Quantity, t.Price} {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		_, _ = d.Write(buf[:])
	}
	binary.LittleEndian.PutUint64(buf[:], uint64(t.InvoiceDate.UnixNano()))
	_, _ = d.Write(buf[:])
	return d.Sum64()
}

// inMemoryDeduper keeps fingerprints in a map. In bounded mode the oldest
// fingerprint is evicted first once maxSize is reached.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[uint64]struct{}
	order   []uint64 // insertion ring, bounded mode only
	next    int
	maxSize int // <= 0 means unbounded
}

// NewInMemoryDeduper creates an unbounded deduper unless WithMaxSize is given.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[uint64]struct{})
	if d.maxSize > 0 {
		d.order = make([]uint64, 0, d.maxSize)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	if d.maxSize > 0 {
		if len(d.order) < d.maxSize {
			d.order = append(d.order, key)
		} else {
			delete(d.seen, d.order[d.next])
			d.order[d.next] = key
			d.next = (d.next + 1) % d.maxSize
		}
	}
	d.seen[key] = struct{}{}
	return false
}

func (d *inMemoryDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
