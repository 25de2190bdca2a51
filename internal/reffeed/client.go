// Package reffeed implements a resilient WebSocket client for a single
// reference-venue best-bid/best-ask stream, grounded independently on the
// same connection-management shape as internal/exchange/ws.go: ping/pong
// keepalive, a read-deadline staleness watchdog, and reconnection with
// resubscription. Its fixed reconnect delay is much shorter than the
// exchange feed's, for faster recovery of a price source the fair-price
// estimator depends on continuously.
package reffeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"perp-mm/pkg/types"
)

const (
	pingInterval    = 30 * time.Second
	readTimeout     = 60 * time.Second
	reconnectDelay  = 3 * time.Second
	writeTimeout    = 10 * time.Second
	midPriceBufSize = 64
)

// Client streams best-bid/best-ask mid-price updates for one symbol from a
// reference venue.
type Client struct {
	url    string
	symbol string

	connMu sync.Mutex
	conn   *websocket.Conn

	midCh chan types.MidPrice

	logger *slog.Logger
}

// New constructs a reference-feed client for one symbol.
func New(wsURL, symbol string, logger *slog.Logger) *Client {
	return &Client{
		url:    wsURL,
		symbol: symbol,
		midCh:  make(chan types.MidPrice, midPriceBufSize),
		logger: logger.With("component", "reffeed.client"),
	}
}

// MidPrices returns the stream of reference mid-price updates.
func (c *Client) MidPrices() <-chan types.MidPrice { return c.midCh }

// Run connects and maintains the connection, reconnecting after a fixed
// delay on any disconnect. Blocks until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn("reference feed disconnected, reconnecting", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

// Close closes the active connection, if any.
func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	defer func() {
		c.connMu.Lock()
		conn.Close()
		c.conn = nil
		c.connMu.Unlock()
	}()

	if err := c.subscribe(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	c.logger.Info("reference feed connected", "symbol", c.symbol)

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go c.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		c.dispatchMessage(msg)
	}
}

func (c *Client) subscribe() error {
	return c.writeJSON(map[string]any{"op": "subscribe", "symbol": c.symbol})
}

type bookTickerMessage struct {
	Symbol string `json:"symbol"`
	Bid    string `json:"bid"`
	Ask    string `json:"ask"`
}

func (c *Client) dispatchMessage(data []byte) {
	var msg bookTickerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Debug("ignoring non-json reference feed message", "data", string(data))
		return
	}
	if msg.Symbol != "" && msg.Symbol != c.symbol {
		return
	}

	bid, err := decimal.NewFromString(msg.Bid)
	if err != nil {
		c.logger.Warn("malformed bid in reference feed message", "error", err)
		return
	}
	ask, err := decimal.NewFromString(msg.Ask)
	if err != nil {
		c.logger.Warn("malformed ask in reference feed message", "error", err)
		return
	}

	mid := types.MidPrice{
		Mid:         bid.Add(ask).Div(decimal.NewFromInt(2)),
		Bid:         bid,
		Ask:         ask,
		TimestampMs: time.Now().UnixMilli(),
	}

	select {
	case c.midCh <- mid:
	default:
		c.logger.Warn("reference feed consumer lagging, mid price dropped")
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("reference feed ping failed", "error", err)
				return
			}
		}
	}
}

func (c *Client) writeJSON(v any) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("reference feed not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *Client) writeMessage(msgType int, data []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("reference feed not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(msgType, data)
}
