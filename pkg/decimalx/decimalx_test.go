package decimalx

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestToScaledFromScaledRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		x        string
		decimals int32
	}{
		{"50000.00", 2},
		{"0.0600", 4},
		{"1", 0},
		{"123.456", 3},
	}

	for _, tt := range tests {
		x := decimal.RequireFromString(tt.x)
		scaled, err := ToScaled(x, tt.decimals)
		if err != nil {
			t.Fatalf("ToScaled(%s) error: %v", tt.x, err)
		}
		back := FromScaled(scaled, tt.decimals)
		if !back.Equal(x) {
			t.Errorf("round trip: ToScaled/FromScaled(%s, %d) = %s, want %s", tt.x, tt.decimals, back, x)
		}
	}
}

func TestToScaledOverflow(t *testing.T) {
	t.Parallel()

	huge := decimal.RequireFromString("99999999999999999999999999")
	if _, err := ToScaled(huge, 6); err == nil {
		t.Error("expected overflow error")
	}
}

func TestToScaledNegative(t *testing.T) {
	t.Parallel()

	if _, err := ToScaled(decimal.NewFromInt(-1), 2); err == nil {
		t.Error("expected error for negative amount")
	}
}

func TestFloorCeilToStep(t *testing.T) {
	t.Parallel()

	tick := decimal.RequireFromString("0.01")
	x := decimal.RequireFromString("49960.037")

	if got := FloorToStep(x, tick); !got.Equal(decimal.RequireFromString("49960.03")) {
		t.Errorf("FloorToStep = %s, want 49960.03", got)
	}
	if got := CeilToStep(x, tick); !got.Equal(decimal.RequireFromString("49960.04")) {
		t.Errorf("CeilToStep = %s, want 49960.04", got)
	}
}
