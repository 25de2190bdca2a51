package exchange

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	"perp-mm/internal/reconciler"
	"perp-mm/pkg/types"
)

func newLiveClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	signer, err := NewSigner(seedKey(t, 32))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return &Client{
		http:    resty.New().SetBaseURL(baseURL),
		signer:  signer,
		rl:      NewRateLimiter(),
		breaker: gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{Name: "test"}),
		market:  types.MarketMeta{PriceDecimals: 2, SizeDecimals: 4},
		logger:  logger,
	}
}

func newDryRunClient(t *testing.T) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	signer, err := NewSigner(seedKey(t, 32))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return &Client{
		dryRun: true,
		signer: signer,
		rl:     NewRateLimiter(),
		market: types.MarketMeta{PriceDecimals: 2, SizeDecimals: 4},
		logger: logger,
	}
}

func TestSubmitAtomicDryRunFabricatesPlacementIDs(t *testing.T) {
	t.Parallel()
	c := newDryRunClient(t)

	actions := []reconciler.Action{
		{Kind: reconciler.Place, Quote: types.Quote{Side: types.Bid, Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)}},
		{Kind: reconciler.Cancel, OrderID: 7},
		{Kind: reconciler.Place, Quote: types.Quote{Side: types.Ask, Price: decimal.NewFromInt(101), Size: decimal.NewFromInt(1)}},
	}

	ids, err := c.SubmitAtomic(context.Background(), actions)
	if err != nil {
		t.Fatalf("SubmitAtomic: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("len(ids) = %d, want 2 (one per Place action)", len(ids))
	}
}

func TestSubmitAtomicEmptyIsNoop(t *testing.T) {
	t.Parallel()
	c := newDryRunClient(t)

	ids, err := c.SubmitAtomic(context.Background(), nil)
	if err != nil {
		t.Fatalf("SubmitAtomic: %v", err)
	}
	if ids != nil {
		t.Errorf("ids = %v, want nil", ids)
	}
}

func TestSubmitAtomicRejectsOversizedBatch(t *testing.T) {
	t.Parallel()
	c := newDryRunClient(t)

	actions := make([]reconciler.Action, reconciler.MaxAtomicActions+1)
	for i := range actions {
		actions[i] = reconciler.Action{Kind: reconciler.Cancel, OrderID: uint64(i)}
	}

	if _, err := c.SubmitAtomic(context.Background(), actions); err == nil {
		t.Error("expected error for batch exceeding MaxAtomicActions")
	}
}

func TestSubmitAtomicReturnsErrorOnRejectedSubaction(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"kind":"placed","order_id":1},{"kind":"error","reason":"insufficient margin"}]`))
	}))
	defer server.Close()

	c := newLiveClient(t, server.URL)
	actions := []reconciler.Action{
		{Kind: reconciler.Place, Quote: types.Quote{Side: types.Bid, Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)}},
		{Kind: reconciler.Place, Quote: types.Quote{Side: types.Ask, Price: decimal.NewFromInt(101), Size: decimal.NewFromInt(1)}},
	}

	if _, err := c.SubmitAtomic(context.Background(), actions); err == nil {
		t.Error("expected error when a subaction receipt reports \"error\"")
	}
}

func TestAuthHeadersIncludesSignatureAndPublicKey(t *testing.T) {
	t.Parallel()
	c := newDryRunClient(t)

	headers, err := c.authHeaders([]byte("test message"))
	if err != nil {
		t.Fatalf("authHeaders: %v", err)
	}
	if headers["X-Public-Key"] == "" {
		t.Error("expected non-empty X-Public-Key header")
	}
	if headers["X-Signature"] == "" {
		t.Error("expected non-empty X-Signature header")
	}
}
