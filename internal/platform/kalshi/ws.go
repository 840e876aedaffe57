// Package kalshi implements the ticker venue WebSocket feed: signed
// handshake, trade and ticker channel subscription, and native control-frame
// keep-alive.
package kalshi

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

	// pongWait is the time allowed to read the next pong.
	pongWait = 30 * time.Second

	// pingPeriod sends native ping control frames at this interval. The venue
	// rejects application-level ping payloads, so only control frames are
	// used. Must be less than pongWait.
	pingPeriod = 20 * time.Second
)

// TradeHandler is called for every trade message.
type TradeHandler func(TradeMessage)

// TickerHandler is called for every ticker update.
type TickerHandler func(TickerMessage)

// WSClient is a WebSocket client for the ticker venue's market data feed. It
// manages a single connection lifetime; reconnection is owned by the session
// supervisor.
type WSClient struct {
	wsURL   string
	signer  *Signer
	tickers []string
	logger  *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	cmdID  int64

	handlerMu      sync.RWMutex
	tradeHandlers  []TradeHandler
	tickerHandlers []TickerHandler
}

// NewWSClient creates a client for the given WebSocket endpoint,
// e.g. "wss://api.elections.kalshi.com/trade-api/ws/v2".
func NewWSClient(wsURL string, signer *Signer, tickers []string, logger *slog.Logger) *WSClient {
	return &WSClient{
		wsURL:   wsURL,
		signer:  signer,
		tickers: tickers,
		logger:  logger.With(slog.String("component", "kalshi_ws")),
	}
}

// OnTrade registers a handler for trade messages.
func (w *WSClient) OnTrade(h TradeHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.tradeHandlers = append(w.tradeHandlers, h)
}

// OnTicker registers a handler for ticker updates.
func (w *WSClient) OnTicker(h TickerHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.tickerHandlers = append(w.tickerHandlers, h)
}

// Connect performs the signed handshake and sends the two subscription
// commands, one per channel.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("kalshi/ws: %w", domain.ErrWSDisconnect)
	}

	headers, err := w.signer.WSHeaders()
	if err != nil {
		return fmt.Errorf("kalshi/ws: auth headers: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, headers)
	if err != nil {
		return fmt.Errorf("kalshi/ws: connect: %w", err)
	}
	w.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for _, channel := range []string{"trade", "ticker"} {
		w.cmdID++
		cmd := SubscribeCmd{
			ID:  w.cmdID,
			Cmd: "subscribe",
			Params: SubscribeParams{
				Channels: []string{channel},
				Tickers:  w.tickers,
			},
		}
		if err := w.writeJSON(conn, cmd); err != nil {
			conn.Close()
			w.conn = nil
			return fmt.Errorf("kalshi/ws: subscribe %s: %w", channel, err)
		}
	}

	return nil
}

// Run reads and dispatches messages until the connection fails or ctx is
// cancelled. The returned error wraps domain.ErrWSDisconnect on transport
// failure; the caller decides whether to reconnect.
func (w *WSClient) Run(ctx context.Context) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("kalshi/ws: not connected")
	}

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go w.pingLoop(pingCtx, conn)

	go func() {
		<-pingCtx.Done()
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("kalshi/ws: read: %w: %v", domain.ErrWSDisconnect, err)
		}
		w.handleMessage(message)
	}
}

// Close shuts down the connection permanently.
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

// pingLoop sends native ping control frames to keep the connection alive.
func (w *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw frame and routes it by envelope type. Malformed
// frames are logged and dropped, never fatal to the session.
func (w *WSClient) handleMessage(raw []byte) {
	var envelope WSMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		w.logger.Debug("dropping unparseable frame", slog.String("error", err.Error()))
		return
	}

	switch envelope.Type {
	case "trade":
		var m TradeMessage
		if err := json.Unmarshal(envelope.Msg, &m); err != nil {
			w.logger.Debug("malformed trade frame", slog.String("error", err.Error()))
			return
		}
		w.handlerMu.RLock()
		handlers := w.tradeHandlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(m)
		}

	case "ticker":
		var m TickerMessage
		if err := json.Unmarshal(envelope.Msg, &m); err != nil {
			w.logger.Debug("malformed ticker frame", slog.String("error", err.Error()))
			return
		}
		w.handlerMu.RLock()
		handlers := w.tickerHandlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(m)
		}

	case "subscribed":
		w.logger.Debug("subscription confirmed", slog.Int64("sid", envelope.SID))

	case "error":
		var m ErrorMessage
		if err := json.Unmarshal(envelope.Msg, &m); err != nil {
			w.logger.Warn("venue error frame", slog.String("raw", string(raw)))
			return
		}
		w.logger.Warn("venue error",
			slog.Int("code", m.Code),
			slog.String("msg", m.Msg),
		)
	}
}
