package quoter

import (
	"testing"

	"github.com/shopspring/decimal"

	"perp-mm/pkg/types"
)

func newQuoter(spreadBps, takeProfitBps int64, orderSizeUSD string) *Quoter {
	market := types.MarketMeta{PriceDecimals: 2, SizeDecimals: 4}
	cfg := Config{
		SpreadBps:     spreadBps,
		TakeProfitBps: takeProfitBps,
		OrderSizeUSD:  decimal.RequireFromString(orderSizeUSD),
	}
	return New(cfg, market)
}

// S1: flat position quotes both sides around fair price.
func TestDeriveFlatQuotesBothSides(t *testing.T) {
	t.Parallel()

	q := newQuoter(20, 5, "1000")
	ctx := types.QuotingContext{
		FairPrice: decimal.RequireFromString("50000"),
		Position:  types.PositionState{},
		Allowed:   types.AllowedSides{Bid: true, Ask: true},
	}

	quotes := q.Derive(ctx, types.BBO{})
	if len(quotes) != 2 {
		t.Fatalf("len(quotes) = %d, want 2", len(quotes))
	}
	for _, quote := range quotes {
		if quote.Side == types.Bid && quote.Price.GreaterThanOrEqual(ctx.FairPrice) {
			t.Errorf("bid %s should be below fair price %s", quote.Price, ctx.FairPrice)
		}
		if quote.Side == types.Ask && quote.Price.LessThanOrEqual(ctx.FairPrice) {
			t.Errorf("ask %s should be above fair price %s", quote.Price, ctx.FairPrice)
		}
	}
}

// S2: close mode long position only produces an ask, sized to flatten the
// whole position rather than a fresh USD-notional order.
func TestDeriveCloseModeLongAskOnly(t *testing.T) {
	t.Parallel()

	q := newQuoter(20, 5, "1000")
	position := types.PositionState{
		SizeBase:    decimal.RequireFromString("2.5"),
		IsLong:      true,
		IsCloseMode: true,
	}
	ctx := types.QuotingContext{
		FairPrice: decimal.RequireFromString("50000"),
		Position:  position,
		Allowed:   types.AllowedSides{Bid: false, Ask: true},
	}

	quotes := q.Derive(ctx, types.BBO{})
	if len(quotes) != 1 || quotes[0].Side != types.Ask {
		t.Fatalf("quotes = %+v, want single ask-only quote", quotes)
	}
	wantSize := position.SizeBase.Abs()
	if !quotes[0].Size.Equal(wantSize) {
		t.Errorf("close-mode size = %s, want whole position %s", quotes[0].Size, wantSize)
	}
}

// S3: a bid that would cross the best ask is clamped one tick inside it.
func TestDeriveBidClampedByBestAsk(t *testing.T) {
	t.Parallel()

	q := newQuoter(20, 5, "1000") // raw bid 49900.00 sits exactly at the best ask
	bbo := types.BBO{BestAsk: decimal.RequireFromString("49900.00"), HasAsk: true}
	ctx := types.QuotingContext{
		FairPrice: decimal.RequireFromString("50000"),
		Allowed:   types.AllowedSides{Bid: true, Ask: true},
	}

	quotes := q.Derive(ctx, bbo)
	var bid *types.Quote
	for i := range quotes {
		if quotes[i].Side == types.Bid {
			bid = &quotes[i]
		}
	}
	if bid == nil {
		t.Fatal("expected a bid quote")
	}
	if bid.Price.GreaterThanOrEqual(bbo.BestAsk) {
		t.Errorf("bid %s crosses best ask %s", bid.Price, bbo.BestAsk)
	}
	if want := decimal.RequireFromString("49899.99"); !bid.Price.Equal(want) {
		t.Errorf("bid = %s, want %s (one tick inside best ask)", bid.Price, want)
	}
}

func TestDeriveDisallowedSideOmitted(t *testing.T) {
	t.Parallel()

	q := newQuoter(20, 5, "1000")
	ctx := types.QuotingContext{
		FairPrice: decimal.RequireFromString("50000"),
		Allowed:   types.AllowedSides{Bid: true, Ask: false},
	}

	quotes := q.Derive(ctx, types.BBO{})
	for _, quote := range quotes {
		if quote.Side == types.Ask {
			t.Error("ask should be omitted when Allowed.Ask is false")
		}
	}
}

func TestDerivePricesAlignToTick(t *testing.T) {
	t.Parallel()

	q := newQuoter(37, 5, "1000") // odd bps to force non-tick-aligned raw price
	ctx := types.QuotingContext{
		FairPrice: decimal.RequireFromString("50000.123"),
		Allowed:   types.AllowedSides{Bid: true, Ask: true},
	}

	quotes := q.Derive(ctx, types.BBO{})
	tick := decimal.RequireFromString("0.01")
	for _, quote := range quotes {
		if !quote.Price.Mod(tick).IsZero() {
			t.Errorf("price %s is not tick-aligned to %s", quote.Price, tick)
		}
	}
}
