// Package types defines the common vocabulary shared by every layer of the
// market maker: prices and sizes, order book levels, tracked orders, and the
// wire DTOs exchanged with the reference feed and the exchange. It has no
// dependencies on internal packages so any layer may import it.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order or quote.
type Side string

const (
	Bid Side = "BID"
	Ask Side = "ASK"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// MidPrice is an immutable snapshot emitted by a venue feed.
type MidPrice struct {
	Mid         decimal.Decimal
	Bid         decimal.Decimal
	Ask         decimal.Decimal
	TimestampMs int64
}

// BBO is the best bid and best ask of a local order book. Either side may be
// absent (empty book on that side).
type BBO struct {
	BestBid decimal.Decimal
	HasBid  bool
	BestAsk decimal.Decimal
	HasAsk  bool
}

// Mid returns (bestBid+bestAsk)/2 and true only when both sides are present.
func (b BBO) Mid() (decimal.Decimal, bool) {
	if !b.HasBid || !b.HasAsk {
		return decimal.Zero, false
	}
	return b.BestBid.Add(b.BestAsk).Div(decimal.NewFromInt(2)), true
}

// MarketMeta describes the tick/lot precision and identity of one instrument.
type MarketMeta struct {
	MarketID      uint64
	Symbol        string
	PriceDecimals int32
	SizeDecimals  int32
}

// TickSize returns 10^(-PriceDecimals).
func (m MarketMeta) TickSize() decimal.Decimal {
	return decimal.New(1, -m.PriceDecimals)
}

// LotSize returns 10^(-SizeDecimals).
func (m MarketMeta) LotSize() decimal.Decimal {
	return decimal.New(1, -m.SizeDecimals)
}

// TrackedOrder is one resting order as known from account-stream events.
type TrackedOrder struct {
	OrderID  uint64
	Side     Side
	Price    decimal.Decimal
	Size     decimal.Decimal
	MarketID uint64
}

// CachedOrder is the reconciler's view of a resting order: a TrackedOrder
// plus equality semantics restricted to (side, price, size).
type CachedOrder struct {
	OrderID uint64
	Side    Side
	Price   decimal.Decimal
	Size    decimal.Decimal
}

// Equal reports whether two cached orders describe the same desired quote,
// ignoring OrderID.
func (c CachedOrder) Equal(o CachedOrder) bool {
	return c.Side == o.Side && c.Price.Equal(o.Price) && c.Size.Equal(o.Size)
}

// FillEvent is emitted by the account stream for every executed fill.
type FillEvent struct {
	OrderID   uint64          `json:"order_id"`
	Side      Side            `json:"side"`
	Size      decimal.Decimal `json:"size"`
	Price     decimal.Decimal `json:"price"`
	Remaining decimal.Decimal `json:"remaining"`
	MarketID  uint64          `json:"market_id"`
}

// PositionState is the derived, read-only view of current inventory.
type PositionState struct {
	SizeBase    decimal.Decimal
	SizeUSD     decimal.Decimal
	IsLong      bool
	IsCloseMode bool
}

// Quote is one side of a desired resting order, tick/lot aligned.
type Quote struct {
	Side  Side
	Price decimal.Decimal
	Size  decimal.Decimal
}

// AllowedSides is the set of sides the quoter may currently produce.
type AllowedSides struct {
	Bid bool
	Ask bool
}

// QuotingContext is the input to the quoter for one pass.
type QuotingContext struct {
	FairPrice decimal.Decimal
	Position  PositionState
	Allowed   AllowedSides
}

// Depth is the order book summary returned by orderbook.Stream.Depth,
// reflecting the most recently applied delta or snapshot.
type Depth struct {
	BBO            BBO
	LastUpdateID   int64
	LastUpdateTime time.Time
}
