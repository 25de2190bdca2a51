package account

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"perp-mm/pkg/types"
)

type fakeRest struct {
	snapshot *Snapshot
	err      error
}

func (f *fakeRest) GetAccount(ctx context.Context) (*Snapshot, error) {
	return f.snapshot, f.err
}

func TestApplyPlacementThenFullFillRemovesOrder(t *testing.T) {
	t.Parallel()
	s := New(&fakeRest{})

	s.ApplyPlacement(types.CachedOrder{OrderID: 1, Side: types.Bid, Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(5)})
	s.ApplyFill(types.FillEvent{OrderID: 1, Remaining: decimal.Zero})

	if len(s.Orders()) != 0 {
		t.Errorf("Orders() = %v, want empty after full fill", s.Orders())
	}
}

func TestApplyPartialFillReducesSize(t *testing.T) {
	t.Parallel()
	s := New(&fakeRest{})

	s.ApplyPlacement(types.CachedOrder{OrderID: 1, Side: types.Bid, Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(5)})
	s.ApplyFill(types.FillEvent{OrderID: 1, Remaining: decimal.NewFromInt(2)})

	orders := s.Orders()
	if len(orders) != 1 || !orders[0].Size.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Orders() = %v, want size 2", orders)
	}
}

func TestApplyFillForUnknownOrderIsNoop(t *testing.T) {
	t.Parallel()
	s := New(&fakeRest{})

	s.ApplyFill(types.FillEvent{OrderID: 99, Remaining: decimal.NewFromInt(1)})

	if len(s.Orders()) != 0 {
		t.Errorf("Orders() = %v, want empty", s.Orders())
	}
}

func TestApplyCancellationRemovesOrder(t *testing.T) {
	t.Parallel()
	s := New(&fakeRest{})

	s.ApplyPlacement(types.CachedOrder{OrderID: 1, Side: types.Ask, Price: decimal.NewFromInt(101), Size: decimal.NewFromInt(1)})
	s.ApplyCancellation(1)

	if len(s.Orders()) != 0 {
		t.Errorf("Orders() = %v, want empty after cancellation", s.Orders())
	}
}

func TestResyncReplacesLocalStateAndReturnsPosition(t *testing.T) {
	t.Parallel()
	s := New(&fakeRest{})
	s.ApplyPlacement(types.CachedOrder{OrderID: 1, Side: types.Bid, Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)})

	rest := &fakeRest{snapshot: &Snapshot{
		PositionBase: "3.5",
		Orders:       []types.CachedOrder{{OrderID: 2, Side: types.Ask, Price: decimal.NewFromInt(102), Size: decimal.NewFromInt(4)}},
	}}
	s.rest = rest

	position, err := s.Resync(context.Background())
	if err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if !position.Equal(decimal.NewFromFloat(3.5)) {
		t.Errorf("position = %s, want 3.5", position)
	}

	orders := s.Orders()
	if len(orders) != 1 || orders[0].OrderID != 2 {
		t.Errorf("Orders() = %v, want only order 2 from resync", orders)
	}
}

func TestResyncPropagatesRestError(t *testing.T) {
	t.Parallel()
	wantErr := errFakeRest
	s := New(&fakeRest{err: wantErr})

	if _, err := s.Resync(context.Background()); err == nil {
		t.Error("expected error from failed resync")
	}
}

var errFakeRest = &restError{"boom"}

type restError struct{ msg string }

func (e *restError) Error() string { return e.msg }
