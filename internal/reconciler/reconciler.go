// Package reconciler diffs the bot's desired quotes against its currently
// resting orders and submits the minimal set of cancels and placements
// needed to converge, the way the teacher's Maker.reconcileOrders diffs
// active orders against a QuotePair — but generalized to N sides instead of
// a fixed bid/ask pair, and submitted through the exchange's atomic
// cancel-and-place action batch instead of separate cancel/place calls.
package reconciler

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"perp-mm/pkg/types"
)

// MaxAtomicActions bounds how many cancel/place actions may be submitted in
// a single atomic batch.
const MaxAtomicActions = 4

// ActionKind distinguishes a cancel from a place within one atomic batch.
type ActionKind int

const (
	Cancel ActionKind = iota
	Place
)

// Action is one atomic submission unit.
type Action struct {
	Kind          ActionKind
	OrderID       uint64      // set for Cancel
	Quote         types.Quote // set for Place
	ClientOrderID string      // set for Place, idempotency key for the exchange
}

// Submitter submits one atomic batch of actions and reports, for each Place
// action in the batch (in order), the order id the exchange assigned.
// Cancel actions have no corresponding output entry. An error means the
// whole batch's outcome is unknown — the caller must treat its local cache
// as stale.
type Submitter interface {
	SubmitAtomic(ctx context.Context, actions []Action) (placedOrderIDs []uint64, err error)
}

// Reconciler diffs desired quotes against the current cache and submits
// convergent actions in bounded-size atomic batches.
type Reconciler struct {
	submitter Submitter
}

// New constructs a Reconciler over the given atomic submitter.
func New(submitter Submitter) *Reconciler {
	return &Reconciler{submitter: submitter}
}

// Diff returns the cancel and place actions needed to converge current into
// desired. An order already matching a desired quote (by exact side/price/
// size equality) is left resting; everything else is replaced.
func Diff(current []types.CachedOrder, desired []types.Quote) []Action {
	matchedDesired := make([]bool, len(desired))
	var actions []Action

	for _, order := range current {
		matched := false
		for i, q := range desired {
			if matchedDesired[i] {
				continue
			}
			if order.Equal(types.CachedOrder{Side: q.Side, Price: q.Price, Size: q.Size}) {
				matchedDesired[i] = true
				matched = true
				break
			}
		}
		if !matched {
			actions = append(actions, Action{Kind: Cancel, OrderID: order.OrderID})
		}
	}

	for i, q := range desired {
		if !matchedDesired[i] {
			actions = append(actions, Action{Kind: Place, Quote: q, ClientOrderID: uuid.NewString()})
		}
	}

	return actions
}

// Reconcile computes the diff and submits it in MaxAtomicActions-sized
// batches, returning the updated order cache on success. On any batch
// failure the local cache is discarded (nil, err returned) since the
// actions' true outcome is unknown; the caller must fall back to an
// authoritative resync before reconciling again.
func (r *Reconciler) Reconcile(ctx context.Context, current []types.CachedOrder, desired []types.Quote) ([]types.CachedOrder, error) {
	actions := Diff(current, desired)
	if len(actions) == 0 {
		return current, nil
	}

	// Start from orders untouched by any action (no cancel targets them).
	cancelled := make(map[uint64]bool)
	for _, a := range actions {
		if a.Kind == Cancel {
			cancelled[a.OrderID] = true
		}
	}
	next := make([]types.CachedOrder, 0, len(current))
	for _, order := range current {
		if !cancelled[order.OrderID] {
			next = append(next, order)
		}
	}

	for start := 0; start < len(actions); start += MaxAtomicActions {
		end := start + MaxAtomicActions
		if end > len(actions) {
			end = len(actions)
		}
		batch := actions[start:end]

		placedIDs, err := r.submitter.SubmitAtomic(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("reconciler: atomic batch failed, cache discarded: %w", err)
		}

		placeIdx := 0
		for _, a := range batch {
			if a.Kind != Place {
				continue
			}
			var orderID uint64
			if placeIdx < len(placedIDs) {
				orderID = placedIDs[placeIdx]
			}
			placeIdx++
			next = append(next, types.CachedOrder{
				OrderID: orderID,
				Side:    a.Quote.Side,
				Price:   a.Quote.Price,
				Size:    a.Quote.Size,
			})
		}
	}

	return next, nil
}
