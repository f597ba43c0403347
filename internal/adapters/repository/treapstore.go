package repository

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/cltv/internal/domain/model"
	"github.com/okian/cltv/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: CLTV DESC, then customer id ASC (deterministic).
// "less" means ranks earlier, so in-order traversal yields the ranking from
// most to least valuable. Subtree sizes give O(log n) rank lookups.

type node struct {
	id    string
	cltv  float64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aCLTV, aID) ranks before (bCLTV, bID).
func less(aCLTV float64, aID string, bCLTV float64, bID string) bool {
	if aCLTV != bCLTV {
		return aCLTV > bCLTV
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, cltv float64, prio uint64) *node {
	if n == nil {
		return &node{id: id, cltv: cltv, prio: prio, size: 1}
	}
	if less(cltv, id, n.cltv, n.id) {
		n.left = insert(n.left, id, cltv, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, cltv, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, cltv float64) *node {
	if n == nil {
		return nil
	}
	switch {
	case cltv == n.cltv && id == n.id:
		// Rotate the higher-priority child up until the node is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, cltv)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, cltv)
		}
	case less(cltv, id, n.cltv, n.id):
		n.left = deleteNode(n.left, id, cltv)
	default:
		n.right = deleteNode(n.right, id, cltv)
	}
	fix(n)
	return n
}

// rankOf returns the 1-based position of (cltv, id), which must be present.
func rankOf(n *node, id string, cltv float64) int {
	rank := 0
	for n != nil {
		switch {
		case cltv == n.cltv && id == n.id:
			return rank + nsize(n.left) + 1
		case less(cltv, id, n.cltv, n.id):
			n = n.left
		default:
			rank += nsize(n.left) + 1
			n = n.right
		}
	}
	return 0
}

// collect appends up to limit entries in rank order.
func collect(n *node, limit int, byID map[string]model.CustomerValue, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collect(n.left, limit, byID, out)
	if len(*out) < limit {
		*out = append(*out, Entry{Rank: len(*out) + 1, CustomerValue: byID[n.id]})
	}
	if len(*out) < limit {
		collect(n.right, limit, byID, out)
	}
}

// TreapStore is a concurrency-safe ranking of customers by CLTV.
type TreapStore struct {
	mu   sync.RWMutex
	root *node
	byID map[string]model.CustomerValue
	rng  *rand.Rand
	seed uint64
}

var _ Store = (*TreapStore)(nil)

// NewTreapStore constructs an empty treap store.
func NewTreapStore(opts ...Option) *TreapStore {
	s := &TreapStore{
		byID: make(map[string]model.CustomerValue),
		seed: uint64(time.Now().UnixNano()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rng = rand.New(rand.NewPCG(s.seed, s.seed^0x9e3779b97f4a7c15))
	metrics.UpdateCustomersRanked(0)
	return s
}

// Put implements Store.Put with O(log n) expected time.
func (s *TreapStore) Put(ctx context.Context, v model.CustomerValue) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.CustomerID == "" {
		return model.Invalid("customer_id", "", "must not be empty", v.CustomerID)
	}
	if math.IsNaN(v.CLTV) || math.IsInf(v.CLTV, 0) {
		return model.Invalid("cltv", v.CustomerID, "must be finite", v.CLTV)
	}

	s.mu.Lock()
	prev, existed := s.byID[v.CustomerID]
	if existed {
		s.root = deleteNode(s.root, prev.CustomerID, prev.CLTV)
	}
	s.byID[v.CustomerID] = v
	s.root = insert(s.root, v.CustomerID, v.CLTV, s.rng.Uint64())
	count := len(s.byID)
	s.mu.Unlock()

	if !existed {
		metrics.UpdateCustomersRanked(count)
	}
	return nil
}

// Get returns the customer's entry and rank in O(log n).
func (s *TreapStore) Get(_ context.Context, customerID string) (Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.byID[customerID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return Entry{}, ErrNotFound
	}
	return Entry{Rank: rankOf(s.root, v.CustomerID, v.CLTV), CustomerValue: v}, nil
}

// TopN returns the top N entries ordered by CLTV desc.
func (s *TreapStore) TopN(_ context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, min(n, len(s.byID)))
	collect(s.root, n, s.byID, &out)
	return out, nil
}

// All returns every entry in rank order.
func (s *TreapStore) All(_ context.Context) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.byID))
	collect(s.root, len(s.byID), s.byID, &out)
	return out
}

// Count returns the number of customers.
func (s *TreapStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// SegmentCounts returns the number of customers per segment label. Customers
// not yet segmented are not counted.
func (s *TreapStore) SegmentCounts(_ context.Context) map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int)
	for _, v := range s.byID {
		if v.Segment != "" {
			out[v.Segment]++
		}
	}
	return out
}
