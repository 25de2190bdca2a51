// Package account maintains the bot's view of its own resting orders and
// position from the exchange's account@ WebSocket stream, falling back to a
// REST resync whenever the stream reports a lag. This mirrors the teacher's
// pattern of driving an in-memory order map from account/order WS events
// (internal/strategy/maker.go handleOrderEvent) generalized with an
// explicit resync path instead of silently trusting the stream forever.
package account

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"perp-mm/pkg/types"
)

// Snapshot is the REST-authoritative account state used to replace local
// state wholesale on resync.
type Snapshot struct {
	PositionBase string              `json:"position_base"`
	Orders       []types.CachedOrder `json:"orders"`
}

// RestClient is the subset of the exchange REST client needed for a full
// resync; satisfied directly by *exchange.Client.
type RestClient interface {
	GetAccount(ctx context.Context) (*Snapshot, error)
}

// Stream tracks resting orders locally, applied from fill/placement/
// cancellation events, with a full REST resync available on demand.
type Stream struct {
	orders map[uint64]types.CachedOrder
	rest   RestClient
}

// New constructs an empty account stream.
func New(rest RestClient) *Stream {
	return &Stream{orders: make(map[uint64]types.CachedOrder), rest: rest}
}

// ApplyFill updates or removes the resting order referenced by the fill: a
// full fill removes the order, a partial fill reduces its remaining size.
func (s *Stream) ApplyFill(fill types.FillEvent) {
	order, ok := s.orders[fill.OrderID]
	if !ok {
		return
	}
	if fill.Remaining.IsZero() {
		delete(s.orders, fill.OrderID)
		return
	}
	order.Size = fill.Remaining
	s.orders[fill.OrderID] = order
}

// ApplyPlacement records a newly placed order (from our own submission
// receipts or an account@ placement event).
func (s *Stream) ApplyPlacement(order types.CachedOrder) {
	s.orders[order.OrderID] = order
}

// ApplyCancellation removes a resting order following a cancel
// confirmation.
func (s *Stream) ApplyCancellation(orderID uint64) {
	delete(s.orders, orderID)
}

// Orders returns a snapshot of every currently resting order.
func (s *Stream) Orders() []types.CachedOrder {
	out := make([]types.CachedOrder, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	return out
}

// Resync replaces local state with the authoritative REST snapshot,
// invoked when the account or trades stream reports a lag signal and on the
// bot's periodic order-sync tick.
func (s *Stream) Resync(ctx context.Context) (decimal.Decimal, error) {
	snapshot, err := s.rest.GetAccount(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("account: resync: %w", err)
	}

	position, err := decimal.NewFromString(snapshot.PositionBase)
	if err != nil {
		return decimal.Zero, fmt.Errorf("account: resync: parse position: %w", err)
	}

	s.orders = make(map[uint64]types.CachedOrder, len(snapshot.Orders))
	for _, o := range snapshot.Orders {
		s.orders[o.OrderID] = o
	}
	return position, nil
}
