// ws.go implements the exchange's multiplexed WebSocket feed: a single
// connection carrying trades@<symbol>, deltas@<symbol>, account@<id>, and
// candle@<symbol>:<res> streams, dispatched by a stream-name tag instead of
// the teacher's event_type tag. Reconnection, ping/pong, and the read-
// deadline staleness watchdog are grounded directly on the teacher's
// ws.go, generalized from a two-feed (market/user) split to one
// multi-stream connection.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"perp-mm/internal/orderbook"
	"perp-mm/pkg/types"
)

const (
	pingInterval     = 50 * time.Second
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	eventBufferSize  = 256
)

// LagSignal reports that a feed consumer could not keep up: the dispatcher
// dropped an event to the named stream rather than blocking the read loop,
// the protocol-gap notification the specification requires instead of a
// silent drop.
type LagSignal struct {
	Stream string
	Count  int
}

// WSFeed manages the exchange's multiplexed WebSocket connection:
// subscription tracking, message routing by stream tag, and automatic
// reconnection after a fixed delay.
type WSFeed struct {
	url    string
	conn   *websocket.Conn
	connMu sync.Mutex

	subscribedMu sync.RWMutex
	subscribed   map[string]bool

	tradeCh  chan types.FillEvent
	deltaCh  chan depthDeltaEvent
	accountCh chan accountEvent
	candleCh chan candleEvent
	lagCh    chan LagSignal

	logger *slog.Logger
}

type depthDeltaEvent struct {
	Symbol       string
	Bids         []orderbook.PriceLevel
	Asks         []orderbook.PriceLevel
	UpdateID     int64
	IsSnapshot   bool
}

type accountEvent struct {
	Fill *types.FillEvent
	// Additional account lifecycle fields (order placed/cancelled) would be
	// added here as the exchange's account@ stream grows; only fills are
	// needed by the current event loop.
}

type candleEvent struct {
	Symbol string
	Open   decimal.Decimal
	Close  decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
}

// NewWSFeed creates a feed client for the given base WebSocket URL.
func NewWSFeed(wsURL string, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		url:        wsURL,
		subscribed: make(map[string]bool),
		tradeCh:    make(chan types.FillEvent, eventBufferSize),
		deltaCh:    make(chan depthDeltaEvent, eventBufferSize),
		accountCh:  make(chan accountEvent, eventBufferSize),
		candleCh:   make(chan candleEvent, eventBufferSize),
		lagCh:      make(chan LagSignal, 16),
		logger:     logger.With("component", "exchange.ws"),
	}
}

// Trades returns the public trade stream.
func (f *WSFeed) Trades() <-chan types.FillEvent { return f.tradeCh }

// DepthDeltas returns the order-book delta/snapshot stream.
func (f *WSFeed) DepthDeltas() <-chan depthDeltaEvent { return f.deltaCh }

// Account returns the authenticated account event stream.
func (f *WSFeed) Account() <-chan accountEvent { return f.accountCh }

// Lag reports dropped-event notifications; consumers that care about
// protocol gaps should drain this alongside the data channels.
func (f *WSFeed) Lag() <-chan LagSignal { return f.lagCh }

// Run connects and maintains the connection with fixed-backoff reconnects,
// re-subscribing to every tracked stream on each reconnect. Blocks until
// ctx is cancelled.
func (f *WSFeed) Run(ctx context.Context) error {
	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("websocket disconnected, reconnecting", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(maxReconnectWait):
		}
	}
}

// Subscribe adds stream names (e.g. "trades@BTC-PERP", "deltas@BTC-PERP").
func (f *WSFeed) Subscribe(streams []string) error {
	f.subscribedMu.Lock()
	for _, s := range streams {
		f.subscribed[s] = true
	}
	f.subscribedMu.Unlock()

	return f.writeJSON(map[string]any{"op": "subscribe", "streams": streams})
}

// Close gracefully closes the connection.
func (f *WSFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *WSFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.resubscribeAll(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	f.logger.Info("websocket connected")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		f.dispatchMessage(msg)
	}
}

func (f *WSFeed) resubscribeAll() error {
	f.subscribedMu.RLock()
	streams := make([]string, 0, len(f.subscribed))
	for s := range f.subscribed {
		streams = append(streams, s)
	}
	f.subscribedMu.RUnlock()

	if len(streams) == 0 {
		return nil
	}
	return f.writeJSON(map[string]any{"op": "subscribe", "streams": streams})
}

// dispatchMessage routes one frame by its "stream" tag prefix
// (trades@/deltas@/account@/candle@).
func (f *WSFeed) dispatchMessage(data []byte) {
	var envelope struct {
		Stream string          `json:"stream"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		f.logger.Debug("ignoring non-json ws message", "data", string(data))
		return
	}

	switch {
	case hasPrefix(envelope.Stream, "trades@"):
		var evt types.FillEvent
		if err := json.Unmarshal(envelope.Data, &evt); err != nil {
			f.logger.Error("unmarshal trade event", "error", err)
			return
		}
		select {
		case f.tradeCh <- evt:
		default:
			f.reportLag(envelope.Stream)
		}

	case hasPrefix(envelope.Stream, "deltas@"):
		var evt depthDeltaEvent
		if err := json.Unmarshal(envelope.Data, &evt); err != nil {
			f.logger.Error("unmarshal delta event", "error", err)
			return
		}
		select {
		case f.deltaCh <- evt:
		default:
			f.reportLag(envelope.Stream)
		}

	case hasPrefix(envelope.Stream, "account@"):
		var evt accountEvent
		if err := json.Unmarshal(envelope.Data, &evt); err != nil {
			f.logger.Error("unmarshal account event", "error", err)
			return
		}
		select {
		case f.accountCh <- evt:
		default:
			f.reportLag(envelope.Stream)
		}

	case hasPrefix(envelope.Stream, "candle@"):
		var evt candleEvent
		if err := json.Unmarshal(envelope.Data, &evt); err != nil {
			f.logger.Error("unmarshal candle event", "error", err)
			return
		}
		select {
		case f.candleCh <- evt:
		default:
			f.reportLag(envelope.Stream)
		}

	default:
		f.logger.Debug("unknown ws stream", "stream", envelope.Stream)
	}
}

// reportLag emits an explicit lag notification when a consumer channel is
// full, instead of silently dropping the event.
func (f *WSFeed) reportLag(stream string) {
	select {
	case f.lagCh <- LagSignal{Stream: stream, Count: 1}:
	default:
	}
	f.logger.Warn("consumer lagging, event dropped", "stream", stream)
}

func (f *WSFeed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeMessage(websocket.PingMessage, nil); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *WSFeed) writeJSON(v any) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

func (f *WSFeed) writeMessage(msgType int, data []byte) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteMessage(msgType, data)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
