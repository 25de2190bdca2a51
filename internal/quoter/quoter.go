// Package quoter derives the bid and ask the bot wants resting, given a fair
// price, the current position, and the local order book. It mirrors the
// teacher's Avellaneda-Stoikov reservation-price-and-spread derivation in
// internal/strategy/maker.go computeQuotes, but replaces the stochastic
// volatility model with the specification's fixed-bps spread, and does all
// arithmetic in exact decimals instead of float64.
package quoter

import (
	"github.com/shopspring/decimal"

	"perp-mm/pkg/decimalx"
	"perp-mm/pkg/types"
)

const bpsDivisor = 10000

// Config holds the tunable quoting parameters, sourced from CLI flags.
type Config struct {
	SpreadBps     int64
	TakeProfitBps int64
	OrderSizeUSD  decimal.Decimal
}

// Quoter derives tick/lot-aligned quotes for one market.
type Quoter struct {
	cfg    Config
	market types.MarketMeta
}

// New constructs a Quoter for the given market and configuration.
func New(cfg Config, market types.MarketMeta) *Quoter {
	return &Quoter{cfg: cfg, market: market}
}

// Derive computes the desired bid and ask, if any, for the given quoting
// context and current best bid/offer. A returned quote omits either side
// when the position tracker disallows it (close mode) or clamping against
// the book leaves no valid price.
func (q *Quoter) Derive(ctx types.QuotingContext, bbo types.BBO) []types.Quote {
	var out []types.Quote

	spreadBps := q.cfg.SpreadBps
	if ctx.Position.IsCloseMode {
		spreadBps = q.cfg.TakeProfitBps
	}

	half := ctx.FairPrice.Mul(decimal.NewFromInt(spreadBps)).Div(decimal.NewFromInt(bpsDivisor))
	rawBid := ctx.FairPrice.Sub(half)
	rawAsk := ctx.FairPrice.Add(half)

	tick := q.market.TickSize()
	bidPrice := decimalx.FloorToStep(rawBid, tick)
	askPrice := decimalx.CeilToStep(rawAsk, tick)

	// Never cross the book: a bid may not sit at or above the best ask, an
	// ask may not sit at or below the best bid.
	if bbo.HasAsk && bidPrice.GreaterThanOrEqual(bbo.BestAsk) {
		bidPrice = bbo.BestAsk.Sub(tick)
	}
	if bbo.HasBid && askPrice.LessThanOrEqual(bbo.BestBid) {
		askPrice = bbo.BestBid.Add(tick)
	}

	if ctx.Allowed.Bid && bidPrice.IsPositive() {
		size := q.sizeAt(bidPrice, ctx.Position)
		if size.IsPositive() {
			out = append(out, types.Quote{Side: types.Bid, Price: bidPrice, Size: size})
		}
	}
	if ctx.Allowed.Ask && askPrice.IsPositive() {
		size := q.sizeAt(askPrice, ctx.Position)
		if size.IsPositive() {
			out = append(out, types.Quote{Side: types.Ask, Price: askPrice, Size: size})
		}
	}

	return out
}

// sizeAt converts the configured USD order size into a lot-aligned base size
// at the given price. In close mode the size is the whole position instead
// of a fresh USD-notional order, so the close-mode quote can fully flatten
// it.
func (q *Quoter) sizeAt(price decimal.Decimal, pos types.PositionState) decimal.Decimal {
	if pos.IsCloseMode {
		return decimalx.FloorToStep(pos.SizeBase.Abs(), q.market.LotSize())
	}
	if price.IsZero() {
		return decimal.Zero
	}
	raw := q.cfg.OrderSizeUSD.Div(price)
	return decimalx.FloorToStep(raw, q.market.LotSize())
}
