// Package orderbook maintains a local mirror of one market's order book from
// a snapshot-plus-delta exchange feed, the way the teacher's market.Book
// mirrors a CLOB book from REST snapshots and WS price-change events — but
// generalized from a fixed YES/NO token pair to one depth book per side with
// genuine incremental size updates instead of a hash-only change log.
package orderbook

import (
	"sort"

	"github.com/shopspring/decimal"
)

// MaxLevels bounds how many price levels a side retains; levels beyond it
// are dropped from the worst end on every trim.
const MaxLevels = 100

// Side is one side (bid or ask) of a local order book: a price -> size
// mapping with insertion via SetLevel (size 0 deletes the level) and O(n log
// n) sorted traversal for best-price / trim operations.
type Side struct {
	isBid  bool
	levels map[string]level
}

type level struct {
	price decimal.Decimal
	size  decimal.Decimal
}

// NewSide constructs an empty side. isBid selects descending (best = highest
// price) vs ascending (best = lowest price) ordering.
func NewSide(isBid bool) *Side {
	return &Side{isBid: isBid, levels: make(map[string]level)}
}

// SetLevel inserts or updates the size at price. A zero or negative size
// removes the level entirely, matching incremental depth-update semantics
// where a size of zero means "this level is gone".
func (s *Side) SetLevel(price, size decimal.Decimal) {
	key := price.String()
	if size.Sign() <= 0 {
		delete(s.levels, key)
		return
	}
	s.levels[key] = level{price: price, size: size}
}

// Reset clears every level, used when a fresh snapshot replaces local state.
func (s *Side) Reset() {
	s.levels = make(map[string]level)
}

// Trim drops levels past MaxLevels, keeping the best MaxLevels prices.
func (s *Side) Trim() {
	if len(s.levels) <= MaxLevels {
		return
	}
	sorted := s.sortedLevels()
	s.levels = make(map[string]level, MaxLevels)
	for _, lv := range sorted[:MaxLevels] {
		s.levels[lv.price.String()] = lv
	}
}

// sortedLevels returns levels best-first: descending price for bids,
// ascending price for asks.
func (s *Side) sortedLevels() []level {
	out := make([]level, 0, len(s.levels))
	for _, lv := range s.levels {
		out = append(out, lv)
	}
	sort.Slice(out, func(i, j int) bool {
		if s.isBid {
			return out[i].price.GreaterThan(out[j].price)
		}
		return out[i].price.LessThan(out[j].price)
	})
	return out
}

// Best returns the best price and size on this side, and whether any level
// exists.
func (s *Side) Best() (price, size decimal.Decimal, ok bool) {
	if len(s.levels) == 0 {
		return decimal.Zero, decimal.Zero, false
	}
	sorted := s.sortedLevels()
	return sorted[0].price, sorted[0].size, true
}

// Len returns the number of resting price levels.
func (s *Side) Len() int {
	return len(s.levels)
}
