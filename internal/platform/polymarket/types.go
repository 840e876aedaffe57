package polymarket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// flexFloat unmarshals from a JSON number or a numeric string, which the CLOB
// feed uses interchangeably for prices and sizes.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("polymarket: parsing number %q: %w", s, err)
	}
	*f = flexFloat(n)
	return nil
}

// PriceLevel is one ladder entry. The feed delivers levels either as objects
// {"price":..,"size":..} or as two-element tuples [price, size]; both decode
// into the same struct.
type PriceLevel struct {
	Price float64
	Size  float64
}

func (l *PriceLevel) UnmarshalJSON(data []byte) error {
	var obj struct {
		Price flexFloat `json:"price"`
		Size  flexFloat `json:"size"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		l.Price = float64(obj.Price)
		l.Size = float64(obj.Size)
		return nil
	}

	var tuple []flexFloat
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("polymarket: price level is neither object nor tuple: %w", err)
	}
	if len(tuple) < 2 {
		return fmt.Errorf("polymarket: price level tuple has %d elements", len(tuple))
	}
	l.Price = float64(tuple[0])
	l.Size = float64(tuple[1])
	return nil
}

// wsTime parses the feed's timestamp field, which arrives as a Unix
// millisecond string, a Unix second string, or RFC3339.
type wsTime struct {
	time.Time
}

func (t *wsTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		t.Time = fromUnixFlexible(n)
		return nil
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		t.Time = fromUnixFlexible(n)
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fmt.Errorf("polymarket: parsing timestamp %q: %w", raw, err)
	}
	t.Time = parsed
	return nil
}

// fromUnixFlexible treats values past the year-33658 second boundary as
// milliseconds.
func fromUnixFlexible(n int64) time.Time {
	if n > 1_000_000_000_000 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}

// TradeMessage is one executed trade on an asset.
type TradeMessage struct {
	AssetID   string    `json:"asset_id"`
	Price     flexFloat `json:"price"`
	Size      flexFloat `json:"size"`
	Side      string    `json:"side"` // "BUY" or "SELL"
	Timestamp wsTime    `json:"timestamp"`
}

// LastTradeMessage reports the most recent trade price for an asset.
type LastTradeMessage struct {
	AssetID   string    `json:"asset_id"`
	Price     flexFloat `json:"price"`
	Size      flexFloat `json:"size"`
	Timestamp wsTime    `json:"timestamp"`
}

// PriceChangeMessage carries a top-of-book move for an asset.
type PriceChangeMessage struct {
	AssetID   string    `json:"asset_id"`
	BestBid   flexFloat `json:"best_bid"`
	BestAsk   flexFloat `json:"best_ask"`
	Timestamp wsTime    `json:"timestamp"`
}

// BookMessage is a full order-book snapshot for an asset.
type BookMessage struct {
	AssetID   string       `json:"asset_id"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp wsTime       `json:"timestamp"`
}

// SubscribeCommand is the frame sent on open to subscribe to the market
// channel for a set of asset ids.
type SubscribeCommand struct {
	Type     string   `json:"type"`
	Channel  string   `json:"channel"`
	AssetIDs []string `json:"assets_ids"`
	Auth     *Auth    `json:"auth,omitempty"`
}

// Auth is the optional credential attached to the subscription frame.
type Auth struct {
	ApiKey string `json:"apiKey"`
}

// pingFrame is the application-level keep-alive the venue expects.
var pingFrame = []byte(`{"type":"ping"}`)
