// Package bot is the event loop that owns the fair-price estimator, the
// cached set of resting orders, and the quote-submission throttle clock,
// selecting across every upstream source the way the teacher's
// internal/engine/engine.go manageMarkets loop selects across scanner
// results and kill signals — generalized from a multi-market
// scanner-driven engine to a single-symbol bot with one select case per
// upstream source and no priority among them.
package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"perp-mm/internal/account"
	"perp-mm/internal/exchange"
	"perp-mm/internal/fairprice"
	"perp-mm/internal/orderbook"
	"perp-mm/internal/position"
	"perp-mm/internal/quoter"
	"perp-mm/internal/reconciler"
	"perp-mm/internal/reffeed"
	"perp-mm/pkg/decimalx"
	"perp-mm/pkg/types"
)

// localMidFreshness is the maximum age a local book update may have and
// still be paired with an incoming reference price sample.
const localMidFreshness = 1000 * time.Millisecond

// Config holds the bot's runtime tunables, sourced from internal/config.
type Config struct {
	UpdateThrottle    time.Duration
	OrderSyncInterval time.Duration
	StatusInterval    time.Duration
}

// Snapshot is an immutable, read-only view of loop state emitted on every
// status tick for display by the monitor subcommand — the same
// non-blocking dashboard-event pattern the teacher uses to keep its
// strategy goroutine from ever blocking on a slow UI consumer.
type Snapshot struct {
	Symbol         string
	FairPriceReady bool
	FairPrice      decimal.Decimal
	BestBid        decimal.Decimal
	HasBid         bool
	BestAsk        decimal.Decimal
	HasAsk         bool
	PositionBase   decimal.Decimal
	PositionUSD    decimal.Decimal
	CloseMode      bool
	ActiveOrders   int
	Timestamp      time.Time
}

const snapshotBufferSize = 8

// Bot owns the event loop's exclusive state: the fair-price estimator, the
// cached resting-order set, and the quote-submission throttle clock.
type Bot struct {
	cfg    Config
	market types.MarketMeta
	logger *slog.Logger

	estimator  *fairprice.Estimator
	book       *orderbook.Stream
	acct       *account.Stream
	pos        *position.Tracker
	quoter     *quoter.Quoter
	reconciler *reconciler.Reconciler

	exFeed *exchange.WSFeed
	client *exchange.Client
	ref    *reffeed.Client

	activeOrders    []types.CachedOrder
	lastQuoteSubmit time.Time
	lastLocalMid    time.Time
	haveLocalMid    bool

	lastRefMid     decimal.Decimal
	lastRefMidTime time.Time
	haveRefMid     bool

	lastFairPrice     decimal.Decimal
	haveLastFairPrice bool

	snapshotCh chan Snapshot
}

// Snapshots returns the read-only status-snapshot stream for the monitor
// subcommand to display.
func (b *Bot) Snapshots() <-chan Snapshot { return b.snapshotCh }

// New wires one Bot instance over its already-constructed dependencies.
func New(
	cfg Config,
	market types.MarketMeta,
	estimator *fairprice.Estimator,
	book *orderbook.Stream,
	acct *account.Stream,
	pos *position.Tracker,
	q *quoter.Quoter,
	rec *reconciler.Reconciler,
	exFeed *exchange.WSFeed,
	client *exchange.Client,
	ref *reffeed.Client,
	logger *slog.Logger,
) *Bot {
	return &Bot{
		cfg:        cfg,
		market:     market,
		estimator:  estimator,
		book:       book,
		acct:       acct,
		pos:        pos,
		quoter:     q,
		reconciler: rec,
		exFeed:     exFeed,
		client:     client,
		ref:        ref,
		logger:     logger.With("component", "bot"),
		snapshotCh: make(chan Snapshot, snapshotBufferSize),
	}
}

// Run executes the event loop until ctx is cancelled, then cancels every
// active order and returns.
func (b *Bot) Run(ctx context.Context) error {
	orderSyncTicker := time.NewTicker(b.cfg.OrderSyncInterval)
	defer orderSyncTicker.Stop()
	statusTicker := time.NewTicker(b.cfg.StatusInterval)
	defer statusTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.shutdown()
			return ctx.Err()

		case mid, ok := <-b.ref.MidPrices():
			if !ok {
				continue
			}
			b.handleReferencePrice(ctx, mid)

		case delta, ok := <-b.exFeed.DepthDeltas():
			if !ok {
				continue
			}
			b.handleDepthDelta(delta.Bids, delta.Asks, delta.UpdateID, delta.IsSnapshot)

		case fill, ok := <-b.exFeed.Trades():
			if !ok {
				continue
			}
			b.handleFill(ctx, fill)

		case evt, ok := <-b.exFeed.Account():
			if !ok {
				continue
			}
			if evt.Fill != nil {
				b.handleFill(ctx, *evt.Fill)
			}

		case lag, ok := <-b.exFeed.Lag():
			if !ok {
				continue
			}
			b.handleLag(ctx, lag)

		case <-orderSyncTicker.C:
			b.syncOrders(ctx)

		case <-statusTicker.C:
			b.logStatus()
		}
	}
}

// handleReferencePrice implements event-loop source 1: a reference price
// change feeds the estimator (if the local mid is fresh), then attempts a
// throttled quote update.
func (b *Bot) handleReferencePrice(ctx context.Context, mid types.MidPrice) {
	now := time.Now()
	nowMs := now.UnixMilli()

	if b.haveLocalMid && now.Sub(b.lastLocalMid) < localMidFreshness {
		if localMid, ok := b.book.BBO().Mid(); ok {
			b.estimator.AddSample(localMid, mid.Mid, nowMs)
		}
	}

	b.lastRefMid = mid.Mid
	b.lastRefMidTime = now
	b.haveRefMid = true

	fairPrice, ready := b.estimator.FairPrice(mid.Mid, nowMs)
	if !ready {
		b.logWarmup(nowMs)
		return
	}
	b.lastFairPrice = fairPrice
	b.haveLastFairPrice = true

	if now.Sub(b.lastQuoteSubmit) < b.cfg.UpdateThrottle {
		return
	}
	b.lastQuoteSubmit = now

	b.submitQuotes(ctx, fairPrice)
}

// handleDepthDelta implements event-loop source 2: applying local book
// updates records the local mid for later pairing, and if the reference mid
// is still fresh, immediately feeds the sample pair to the estimator; it
// never triggers quoting on its own. A delta that arrives before any
// snapshot pulls a fresh REST snapshot.
func (b *Bot) handleDepthDelta(bids, asks []orderbook.PriceLevel, updateID int64, isSnapshot bool) {
	now := time.Now()

	if isSnapshot {
		b.book.ApplySnapshot(bids, asks, updateID, now)
	} else {
		_, needsResync := b.book.ApplyDelta(bids, asks, updateID, now)
		if needsResync {
			b.resyncBook(context.Background())
			return
		}
	}

	b.lastLocalMid = now
	b.haveLocalMid = true

	if b.haveRefMid && now.Sub(b.lastRefMidTime) < localMidFreshness {
		if localMid, ok := b.book.BBO().Mid(); ok {
			b.estimator.AddSample(localMid, b.lastRefMid, now.UnixMilli())
		}
	}
}

// handleFill implements event-loop source 3: apply the fill to the
// position tracker and the local order cache; if the new state enters
// close mode, cancel every outstanding order immediately rather than
// waiting for the next quote pass.
func (b *Bot) handleFill(ctx context.Context, fill types.FillEvent) {
	b.pos.ApplyFill(fill)
	b.acct.ApplyFill(fill)

	if !b.haveLastFairPrice || len(b.activeOrders) == 0 {
		return
	}
	if !b.pos.IsCloseMode(b.lastFairPrice) {
		return
	}

	b.logger.Warn("entering close mode, cancelling all resting orders")
	var cancels []reconciler.Action
	for _, o := range b.activeOrders {
		cancels = append(cancels, reconciler.Action{Kind: reconciler.Cancel, OrderID: o.OrderID})
	}
	if _, err := b.client.SubmitAtomic(ctx, cancels); err != nil {
		b.logger.Error("failed to cancel orders entering close mode", "error", err)
	}
	b.activeOrders = nil
}

// handleLag reacts to a protocol-gap signal from the multiplexed exchange
// feed: a depth lag forces an order-book resync, an account/trade lag
// forces an account resync, since the event loop can no longer trust the
// stream's incremental view.
func (b *Bot) handleLag(ctx context.Context, lag exchange.LagSignal) {
	b.logger.Warn("exchange feed lagging", "stream", lag.Stream)
	switch {
	case hasPrefix(lag.Stream, "deltas@"):
		b.resyncBook(ctx)
	case hasPrefix(lag.Stream, "account@"), hasPrefix(lag.Stream, "trades@"):
		b.syncOrders(ctx)
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// resyncBook fetches a fresh REST snapshot and resets the book stream onto
// it, used when a delta arrives before any snapshot and when the deltas@
// stream reports lag.
func (b *Bot) resyncBook(ctx context.Context) {
	snapshot, err := b.client.GetOrderbookBySymbol(ctx, b.market.Symbol)
	if err != nil {
		b.logger.Error("failed to resync order book", "error", err)
		return
	}

	bids := wireToLevels(snapshot.Bids, b.market)
	asks := wireToLevels(snapshot.Asks, b.market)
	b.book.ApplySnapshot(bids, asks, snapshot.LastUpdateID, time.Now())
}

func wireToLevels(wire []exchange.PriceLevelWire, market types.MarketMeta) []orderbook.PriceLevel {
	out := make([]orderbook.PriceLevel, len(wire))
	for i, lv := range wire {
		out[i] = orderbook.PriceLevel{
			Price: decimalx.FromScaled(lv.PriceScaled, market.PriceDecimals),
			Size:  decimalx.FromScaled(lv.SizeScaled, market.SizeDecimals),
		}
	}
	return out
}

// syncOrders implements event-loop source 4: replace the active-order
// cache and the position tracker's authoritative value with a fresh REST
// snapshot. Errors are logged and the previous cache is kept; a failed
// sync never panics or stops the loop.
func (b *Bot) syncOrders(ctx context.Context) {
	basePosition, err := b.acct.Resync(ctx)
	if err != nil {
		b.logger.Error("order sync failed", "error", err)
		return
	}
	b.pos.Set(basePosition)
	b.activeOrders = b.acct.Orders()
}

// logStatus implements event-loop source 5: emit a structured status line
// summarizing current fair price, position, and resting order count.
func (b *Bot) logStatus() {
	price := b.lastFairPrice
	state := b.pos.State(price)
	bbo := b.book.BBO()
	b.logger.Info("status",
		"symbol", b.market.Symbol,
		"fair_price_ready", b.haveLastFairPrice,
		"fair_price", price.String(),
		"position_base", state.SizeBase.String(),
		"close_mode", state.IsCloseMode,
		"active_orders", len(b.activeOrders),
	)

	snap := Snapshot{
		Symbol:         b.market.Symbol,
		FairPriceReady: b.haveLastFairPrice,
		FairPrice:      price,
		BestBid:        bbo.BestBid,
		HasBid:         bbo.HasBid,
		BestAsk:        bbo.BestAsk,
		HasAsk:         bbo.HasAsk,
		PositionBase:   state.SizeBase,
		PositionUSD:    state.SizeUSD,
		CloseMode:      state.IsCloseMode,
		ActiveOrders:   len(b.activeOrders),
		Timestamp:      time.Now(),
	}
	select {
	case b.snapshotCh <- snap:
	default:
	}
}

// shutdown implements event-loop source 6: cancel every active order
// before the loop returns.
func (b *Bot) shutdown() {
	if len(b.activeOrders) == 0 {
		return
	}
	var cancels []reconciler.Action
	for _, o := range b.activeOrders {
		cancels = append(cancels, reconciler.Action{Kind: reconciler.Cancel, OrderID: o.OrderID})
	}

	cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := b.client.SubmitAtomic(cancelCtx, cancels); err != nil {
		b.logger.Error("failed to cancel orders on shutdown", "error", err)
	}
	b.activeOrders = nil
}

// submitQuotes derives and reconciles a new quote pair at the given fair
// price, replacing the active-order cache on success.
func (b *Bot) submitQuotes(ctx context.Context, fairPrice decimal.Decimal) {
	qctx := b.pos.QuotingContext(fairPrice)
	quotes := b.quoter.Derive(qctx, b.book.BBO())

	next, err := b.reconciler.Reconcile(ctx, b.activeOrders, quotes)
	if err != nil {
		b.logger.Error("quote reconciliation failed, cache discarded", "error", err)
		b.activeOrders = nil
		return
	}
	b.activeOrders = next
}

// logWarmup emits estimator warm-up progress at debug level.
func (b *Bot) logWarmup(nowMs int64) {
	state := b.estimator.State(nowMs)
	b.logger.Debug("fair price estimator warming up", "valid_samples", state.ValidCount)
}
