// Package polymarket implements the order-book venue WebSocket feed: market
// channel subscription, book and trade decoding, and an application-level
// keep-alive.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vantagegraph/vantage/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// handshakeTimeout bounds the WebSocket dial.
	handshakeTimeout = 15 * time.Second

	// pingPeriod is the application-level keep-alive interval.
	pingPeriod = 20 * time.Second

	// readWait is the max silence tolerated before the read loop gives up.
	readWait = 60 * time.Second
)

// TradeHandler is called for every trade and last_trade_price message.
type TradeHandler func(TradeMessage)

// PriceChangeHandler is called for every top-of-book move.
type PriceChangeHandler func(PriceChangeMessage)

// BookHandler is called for every full book snapshot.
type BookHandler func(BookMessage)

// WSClient is a WebSocket client for the order-book venue's market data feed.
// It manages a single connection lifetime: dial, subscribe, decode, dispatch.
// Reconnection is owned by the session supervisor, which calls Connect and
// Run again after a failure.
type WSClient struct {
	wsURL    string
	apiKey   string
	assetIDs []string
	logger   *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	handlerMu     sync.RWMutex
	tradeHandlers []TradeHandler
	priceHandlers []PriceChangeHandler
	bookHandlers  []BookHandler
}

// NewWSClient creates a client for the given market WebSocket endpoint.
// apiKey may be empty; the venue serves public market data without one.
func NewWSClient(wsURL, apiKey string, assetIDs []string, logger *slog.Logger) *WSClient {
	return &WSClient{
		wsURL:    wsURL,
		apiKey:   apiKey,
		assetIDs: assetIDs,
		logger:   logger.With(slog.String("component", "polymarket_ws")),
	}
}

// OnTrade registers a handler for trade and last_trade_price messages.
func (w *WSClient) OnTrade(h TradeHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.tradeHandlers = append(w.tradeHandlers, h)
}

// OnPriceChange registers a handler for top-of-book moves.
func (w *WSClient) OnPriceChange(h PriceChangeHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.priceHandlers = append(w.priceHandlers, h)
}

// OnBook registers a handler for full book snapshots.
func (w *WSClient) OnBook(h BookHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.bookHandlers = append(w.bookHandlers, h)
}

// Connect dials the WebSocket and sends the market-channel subscription frame
// for the configured asset ids.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("polymarket/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}
	w.conn = conn

	cmd := SubscribeCommand{
		Type:     "subscribe",
		Channel:  "market",
		AssetIDs: w.assetIDs,
	}
	if w.apiKey != "" {
		cmd.Auth = &Auth{ApiKey: w.apiKey}
	}
	if err := w.writeJSON(conn, cmd); err != nil {
		conn.Close()
		w.conn = nil
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}

	return nil
}

// Run reads and dispatches messages until the connection fails or ctx is
// cancelled. It owns the application-level ping loop for the connection's
// lifetime. The returned error wraps domain.ErrWSDisconnect on transport
// failure; the caller decides whether to reconnect.
func (w *WSClient) Run(ctx context.Context) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("polymarket/ws: not connected")
	}

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go w.pingLoop(pingCtx, conn)

	// Close the socket when ctx ends so the blocking read returns.
	go func() {
		<-pingCtx.Done()
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readWait))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("polymarket/ws: read: %w: %v", domain.ErrWSDisconnect, err)
		}
		w.handleMessage(message)
	}
}

// Close shuts down the connection permanently. A closed client will refuse
// further Connect calls.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}
	return nil
}

func (w *WSClient) writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// pingLoop sends the venue's application-level ping every 20 seconds. Native
// control-frame pings are not honoured by this feed.
func (w *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, pingFrame); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw frame and routes it by message type. Malformed
// frames are logged and dropped, never fatal to the session.
func (w *WSClient) handleMessage(raw []byte) {
	var envelope struct {
		Type      string `json:"type"`
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		w.logger.Debug("dropping unparseable frame", slog.String("error", err.Error()))
		return
	}

	msgType := envelope.EventType
	if msgType == "" {
		msgType = envelope.Type
	}

	switch msgType {
	case "trade":
		var m TradeMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			w.logger.Debug("malformed trade frame", slog.String("error", err.Error()))
			return
		}
		w.handlerMu.RLock()
		handlers := w.tradeHandlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(m)
		}

	case "last_trade_price":
		var m LastTradeMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			w.logger.Debug("malformed last_trade_price frame", slog.String("error", err.Error()))
			return
		}
		trade := TradeMessage{
			AssetID:   m.AssetID,
			Price:     m.Price,
			Size:      m.Size,
			Timestamp: m.Timestamp,
		}
		w.handlerMu.RLock()
		handlers := w.tradeHandlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(trade)
		}

	case "price_change":
		var m PriceChangeMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			w.logger.Debug("malformed price_change frame", slog.String("error", err.Error()))
			return
		}
		w.handlerMu.RLock()
		handlers := w.priceHandlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(m)
		}

	case "book", "book_snapshot":
		var m BookMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			w.logger.Debug("malformed book frame", slog.String("error", err.Error()))
			return
		}
		w.handlerMu.RLock()
		handlers := w.bookHandlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(m)
		}
	}
}
