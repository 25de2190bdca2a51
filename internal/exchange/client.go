// Package exchange implements the REST and WebSocket clients for the
// exchange this bot trades on: a resty-based REST client for account/book
// reads and atomic order actions, and a gorilla/websocket feed for trades,
// depth deltas, account events, and candles.
package exchange

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"

	"perp-mm/internal/account"
	"perp-mm/internal/config"
	"perp-mm/internal/reconciler"
	"perp-mm/pkg/decimalx"
	"perp-mm/pkg/types"
)

// OrderbookSnapshot is one REST GET /orderbook response.
type OrderbookSnapshot struct {
	Bids         []PriceLevelWire `json:"bids"`
	Asks         []PriceLevelWire `json:"asks"`
	LastUpdateID int64            `json:"last_update_id"`
}

// PriceLevelWire is a (price, size) pair as scaled integers on the wire.
type PriceLevelWire struct {
	PriceScaled uint64 `json:"price_scaled"`
	SizeScaled  uint64 `json:"size_scaled"`
}

// actionWire is the on-wire shape of one atomic cancel/place subaction.
type actionWire struct {
	Kind          string `json:"kind"`
	OrderID       uint64 `json:"order_id,omitempty"`
	Side          string `json:"side,omitempty"`
	PriceScaled   uint64 `json:"price_scaled,omitempty"`
	SizeScaled    uint64 `json:"size_scaled,omitempty"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

// receiptWire is the exchange's response to one submitted atomic subaction.
type receiptWire struct {
	Kind    string `json:"kind"` // "placed", "cancelled", "error"
	OrderID uint64 `json:"order_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Client is the REST client for the exchange's account, book, and order
// submission endpoints. Every request is rate-limited by category and
// every mutating request goes through a circuit breaker so repeated
// transport failures degrade to "log and skip" instead of hammering a down
// exchange, per the specification's non-fatal transport error policy.
type Client struct {
	http    *resty.Client
	signer  *Signer
	rl      *RateLimiter
	breaker *gobreaker.CircuitBreaker[*resty.Response]
	market  types.MarketMeta
	dryRun  bool
	logger  *slog.Logger
}

// NewClient creates a REST client bound to one market.
func NewClient(cfg config.Config, signer *Signer, market types.MarketMeta, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.API.RESTBaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetTLSClientConfig(&tls.Config{MinVersion: tls.VersionTLS12})

	breaker := gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        "exchange-rest",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		http:    httpClient,
		signer:  signer,
		rl:      NewRateLimiter(),
		breaker: breaker,
		market:  market,
		dryRun:  cfg.DryRun,
		logger:  logger.With("component", "exchange.client"),
	}
}

// GetInfo fetches the tradeable market's tick/lot precision.
func (c *Client) GetInfo(ctx context.Context, symbol string) (types.MarketMeta, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return types.MarketMeta{}, err
	}

	var result types.MarketMeta
	_, err := c.breakerDo(func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetQueryParam("symbol", symbol).
			SetResult(&result).
			Get("/info")
	})
	if err != nil {
		return types.MarketMeta{}, fmt.Errorf("get info: %w", err)
	}
	return result, nil
}

// GetAccount fetches the authoritative account snapshot for a full resync.
// It implements account.RestClient.
func (c *Client) GetAccount(ctx context.Context) (*account.Snapshot, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}

	headers, err := c.authHeaders([]byte("GET /account"))
	if err != nil {
		return nil, err
	}

	var result account.Snapshot
	_, err = c.breakerDo(func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetHeaders(headers).
			SetResult(&result).
			Get("/account")
	})
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &result, nil
}

// GetOrderbookBySymbol fetches a REST depth snapshot, used to bootstrap or
// resync the local order book stream after a sequence gap.
func (c *Client) GetOrderbookBySymbol(ctx context.Context, symbol string) (*OrderbookSnapshot, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}

	var result OrderbookSnapshot
	_, err := c.breakerDo(func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetQueryParam("symbol", symbol).
			SetResult(&result).
			Get("/orderbook")
	})
	if err != nil {
		return nil, fmt.Errorf("get orderbook: %w", err)
	}
	return &result, nil
}

// SubmitAtomic submits one batch of cancel/place subactions atomically and
// implements reconciler.Submitter. In dry-run mode it logs the intended
// actions and fabricates placement ids without making any network call.
func (c *Client) SubmitAtomic(ctx context.Context, actions []reconciler.Action) ([]uint64, error) {
	if len(actions) == 0 {
		return nil, nil
	}
	if len(actions) > reconciler.MaxAtomicActions {
		return nil, fmt.Errorf("submit atomic: batch size %d exceeds max %d", len(actions), reconciler.MaxAtomicActions)
	}

	if c.dryRun {
		c.logger.Info("dry-run: would submit atomic batch", "actions", len(actions))
		var ids []uint64
		for i, a := range actions {
			if a.Kind == reconciler.Place {
				ids = append(ids, uint64(1_000_000+i))
			}
		}
		return ids, nil
	}

	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	wire := make([]actionWire, len(actions))
	for i, a := range actions {
		switch a.Kind {
		case reconciler.Cancel:
			wire[i] = actionWire{Kind: "cancel", OrderID: a.OrderID}
		case reconciler.Place:
			priceScaled, err := decimalx.ToScaled(a.Quote.Price, c.market.PriceDecimals)
			if err != nil {
				return nil, fmt.Errorf("submit atomic: scale price: %w", err)
			}
			sizeScaled, err := decimalx.ToScaled(a.Quote.Size, c.market.SizeDecimals)
			if err != nil {
				return nil, fmt.Errorf("submit atomic: scale size: %w", err)
			}
			wire[i] = actionWire{
				Kind:          "place",
				Side:          string(a.Quote.Side),
				PriceScaled:   priceScaled,
				SizeScaled:    sizeScaled,
				ClientOrderID: a.ClientOrderID,
			}
		}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("submit atomic: marshal: %w", err)
	}

	headers, err := c.authHeaders(body)
	if err != nil {
		return nil, err
	}

	var receipts []receiptWire
	_, err = c.breakerDo(func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetHeaders(headers).
			SetBody(json.RawMessage(body)).
			SetResult(&receipts).
			Post("/actions")
	})
	if err != nil {
		return nil, fmt.Errorf("submit atomic: %w", err)
	}

	var placedIDs []uint64
	for _, r := range receipts {
		switch r.Kind {
		case "placed":
			placedIDs = append(placedIDs, r.OrderID)
		case "cancelled":
			// no output entry expected by the reconciler
		case "error":
			c.logger.Warn("atomic subaction rejected", "reason", r.Reason)
			return nil, fmt.Errorf("submit atomic: subaction rejected: %s", r.Reason)
		default:
			c.logger.Debug("unrecognised receipt kind treated as no-op", "kind", r.Kind)
		}
	}
	return placedIDs, nil
}

// authHeaders signs message with the configured signer and returns the
// headers the exchange expects on every authenticated request.
func (c *Client) authHeaders(message []byte) (map[string]string, error) {
	sig := c.signer.Sign(message)
	return map[string]string{
		"X-Public-Key": c.signer.PublicKeyBase58(),
		"X-Signature":  fmt.Sprintf("%x", sig),
	}, nil
}

// breakerDo runs fn through the circuit breaker and validates the HTTP
// status code. A 5xx response counts as a breaker failure the same way a
// transport error does; any other non-200 status is returned as an error
// without counting against the breaker.
func (c *Client) breakerDo(fn func() (*resty.Response, error)) (*resty.Response, error) {
	resp, err := c.breaker.Execute(func() (*resty.Response, error) {
		resp, err := fn()
		if err != nil {
			return resp, err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return resp, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
		}
		return resp, nil
	})
	if err != nil {
		return resp, err
	}
	if resp.StatusCode() != http.StatusOK {
		return resp, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
	}
	return resp, nil
}
