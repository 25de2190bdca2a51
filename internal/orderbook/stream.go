package orderbook

import (
	"time"

	"github.com/shopspring/decimal"

	"perp-mm/pkg/types"
)

// PriceLevel is one (price, size) pair as carried on the wire, either in a
// full snapshot or an incremental delta.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Stream reconstructs a local order book from an exchange feed that sends an
// initial full snapshot followed by sequenced incremental deltas. Deltas at
// or below the last applied update id are dropped; any higher id is applied
// even if it skips ids. ApplyDelta's needsResync return value reports only a
// delta that arrives before any snapshot — the caller is expected to trigger
// a fresh REST snapshot in that case.
type Stream struct {
	bid *Side
	ask *Side

	lastUpdateID int64
	haveSnapshot bool
	updated      time.Time
}

// NewStream constructs an empty, pre-snapshot stream.
func NewStream() *Stream {
	return &Stream{bid: NewSide(true), ask: NewSide(false)}
}

// ApplySnapshot replaces the entire book state and establishes the sequence
// baseline for subsequent deltas.
func (s *Stream) ApplySnapshot(bids, asks []PriceLevel, updateID int64, now time.Time) {
	s.bid.Reset()
	s.ask.Reset()
	for _, lv := range bids {
		s.bid.SetLevel(lv.Price, lv.Size)
	}
	for _, lv := range asks {
		s.ask.SetLevel(lv.Price, lv.Size)
	}
	s.bid.Trim()
	s.ask.Trim()
	s.lastUpdateID = updateID
	s.haveSnapshot = true
	s.updated = now
}

// ApplyDelta applies one incremental update. It returns needsResync=true,
// applied=false when there is no snapshot yet; the caller must then
// re-snapshot before further deltas are meaningful. An update at or before
// the current sequence is a harmless duplicate/replay and is dropped
// silently. Any update past the current sequence is applied regardless of
// contiguity — the feed's distinct lag signal, not a local gap check, is
// what triggers resync on a dropped update.
func (s *Stream) ApplyDelta(bids, asks []PriceLevel, updateID int64, now time.Time) (applied bool, needsResync bool) {
	if !s.haveSnapshot {
		return false, true
	}
	if updateID <= s.lastUpdateID {
		return false, false
	}

	for _, lv := range bids {
		s.bid.SetLevel(lv.Price, lv.Size)
	}
	for _, lv := range asks {
		s.ask.SetLevel(lv.Price, lv.Size)
	}
	s.bid.Trim()
	s.ask.Trim()
	s.lastUpdateID = updateID
	s.updated = now
	return true, false
}

// Reset discards all state, forcing the next ApplyDelta to report
// needsResync until a fresh ApplySnapshot arrives.
func (s *Stream) Reset() {
	s.bid.Reset()
	s.ask.Reset()
	s.lastUpdateID = 0
	s.haveSnapshot = false
	s.updated = time.Time{}
}

// IsStale reports whether no update (snapshot or delta) has landed within
// maxAge, the trigger for the staleness watchdog to force a reconnect.
func (s *Stream) IsStale(maxAge time.Duration, now time.Time) bool {
	if s.updated.IsZero() {
		return true
	}
	return now.Sub(s.updated) > maxAge
}

// BBO returns the current best bid/offer.
func (s *Stream) BBO() types.BBO {
	var out types.BBO
	if price, size, ok := s.bid.Best(); ok {
		out.BestBid, out.HasBid = price, true
		_ = size
	}
	if price, size, ok := s.ask.Best(); ok {
		out.BestAsk, out.HasAsk = price, true
		_ = size
	}
	return out
}

// Depth returns the full depth snapshot for downstream consumers (e.g. the
// monitor TUI).
func (s *Stream) Depth() types.Depth {
	return types.Depth{
		BBO:            s.BBO(),
		LastUpdateID:   s.lastUpdateID,
		LastUpdateTime: s.updated,
	}
}
