package position

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"perp-mm/pkg/types"
)

func TestApplyFillBidIncreasesAskDecreases(t *testing.T) {
	t.Parallel()

	tr := New(1, decimal.NewFromInt(1000))
	tr.ApplyFill(types.FillEvent{Side: types.Bid, Size: decimal.NewFromInt(2)})
	tr.ApplyFill(types.FillEvent{Side: types.Ask, Size: decimal.NewFromInt(1)})

	got := tr.BaseSize()
	if !got.Equal(decimal.NewFromInt(1)) {
		t.Errorf("BaseSize() = %s, want 1", got)
	}
}

func TestApplyFillConcurrentNeverLosesUpdates(t *testing.T) {
	t.Parallel()

	tr := New(1, decimal.NewFromInt(100000))
	const n = 500

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			tr.ApplyFill(types.FillEvent{Side: types.Bid, Size: decimal.NewFromInt(1)})
		}()
	}
	wg.Wait()

	got := tr.BaseSize()
	if !got.Equal(decimal.NewFromInt(n)) {
		t.Errorf("BaseSize() = %s, want %d (concurrent fills must not be lost)", got, n)
	}
}

func TestIsCloseModeThreshold(t *testing.T) {
	t.Parallel()

	tr := New(1, decimal.NewFromInt(1000))
	tr.Set(decimal.NewFromInt(10))
	price := decimal.NewFromInt(50)

	if tr.IsCloseMode(price) {
		t.Error("500 notional should be under 1000 threshold")
	}

	tr.Set(decimal.NewFromInt(30))
	if !tr.IsCloseMode(price) {
		t.Error("1500 notional should exceed 1000 threshold")
	}

	tr.Set(decimal.NewFromInt(20))
	if !tr.IsCloseMode(price) {
		t.Error("1000 notional at exactly the threshold should enter close mode")
	}
}

func TestAllowedSidesCloseModeLongAskOnly(t *testing.T) {
	t.Parallel()

	tr := New(1, decimal.NewFromInt(100))
	tr.Set(decimal.NewFromInt(10))
	allowed := tr.AllowedSides(decimal.NewFromInt(50))

	if allowed.Bid || !allowed.Ask {
		t.Errorf("AllowedSides (long, close mode) = %+v, want ask-only", allowed)
	}
}

func TestAllowedSidesCloseModeShortBidOnly(t *testing.T) {
	t.Parallel()

	tr := New(1, decimal.NewFromInt(100))
	tr.Set(decimal.NewFromInt(-10))
	allowed := tr.AllowedSides(decimal.NewFromInt(50))

	if !allowed.Bid || allowed.Ask {
		t.Errorf("AllowedSides (short, close mode) = %+v, want bid-only", allowed)
	}
}

func TestAllowedSidesBothWhenFlat(t *testing.T) {
	t.Parallel()

	tr := New(1, decimal.NewFromInt(100))
	allowed := tr.AllowedSides(decimal.NewFromInt(50))

	if !allowed.Bid || !allowed.Ask {
		t.Errorf("AllowedSides (flat) = %+v, want both sides allowed", allowed)
	}
}
