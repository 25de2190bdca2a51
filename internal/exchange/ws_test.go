package exchange

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"
)

func newTestFeed(t *testing.T) *WSFeed {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewWSFeed("wss://example.test/ws", logger)
}

func frame(t *testing.T, stream string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	envelope, err := json.Marshal(map[string]any{"stream": stream, "data": json.RawMessage(raw)})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return envelope
}

func TestDispatchMessageRoutesTradeByStreamPrefix(t *testing.T) {
	t.Parallel()
	f := newTestFeed(t)

	f.dispatchMessage(frame(t, "trades@BTC-PERP", map[string]any{"order_id": 1, "side": "BID", "size": "1", "price": "100"}))

	select {
	case evt := <-f.Trades():
		if evt.OrderID != 1 {
			t.Errorf("OrderID = %d, want 1", evt.OrderID)
		}
	default:
		t.Fatal("expected a trade event on the Trades channel")
	}
}

func TestDispatchMessageRoutesDeltaByStreamPrefix(t *testing.T) {
	t.Parallel()
	f := newTestFeed(t)

	f.dispatchMessage(frame(t, "deltas@BTC-PERP", map[string]any{"UpdateID": 1}))

	select {
	case <-f.DepthDeltas():
	default:
		t.Fatal("expected a delta event on the DepthDeltas channel")
	}
}

func TestDispatchMessageIgnoresUnknownStream(t *testing.T) {
	t.Parallel()
	f := newTestFeed(t)

	f.dispatchMessage(frame(t, "unknown@xyz", map[string]any{}))

	select {
	case <-f.Trades():
		t.Fatal("unexpected trade event")
	case <-f.DepthDeltas():
		t.Fatal("unexpected delta event")
	default:
	}
}

func TestDispatchMessageIgnoresNonJSON(t *testing.T) {
	t.Parallel()
	f := newTestFeed(t)

	f.dispatchMessage([]byte("not json"))

	select {
	case <-f.Trades():
		t.Fatal("unexpected trade event from malformed message")
	default:
	}
}

func TestReportLagEmitsSignalWhenChannelFull(t *testing.T) {
	t.Parallel()
	f := newTestFeed(t)

	for i := 0; i < cap(f.tradeCh); i++ {
		f.dispatchMessage(frame(t, "trades@BTC-PERP", map[string]any{"order_id": i}))
	}
	// channel is now full; one more dispatch must lag rather than block
	f.dispatchMessage(frame(t, "trades@BTC-PERP", map[string]any{"order_id": 999}))

	select {
	case sig := <-f.Lag():
		if sig.Stream != "trades@BTC-PERP" {
			t.Errorf("LagSignal.Stream = %q, want trades@BTC-PERP", sig.Stream)
		}
	default:
		t.Fatal("expected a lag signal once the trade channel fills up")
	}
}
