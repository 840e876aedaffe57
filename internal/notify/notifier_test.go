package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vantagegraph/vantage/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSender struct {
	name string
	sent []Message
	err  error
}

func (f *fakeSender) Send(ctx context.Context, msg Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func TestNotifyFiltersUnsubscribedEvents(t *testing.T) {
	s := &fakeSender{name: "chan-a"}
	n := NewNotifier([]Sender{s}, []string{EventArbDetected}, discardLogger())

	if err := n.Notify(context.Background(), Message{Event: EventScenarioComplete, Title: "dropped"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := n.Notify(context.Background(), Message{Event: EventArbDetected, Title: "kept"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if len(s.sent) != 1 || s.sent[0].Title != "kept" {
		t.Errorf("sent = %+v, want only the subscribed event", s.sent)
	}
}

func TestNotifyEmptyFilterAllowsEverything(t *testing.T) {
	s := &fakeSender{name: "chan-a"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())

	if err := n.Notify(context.Background(), Message{Event: "anything"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.sent) != 1 {
		t.Errorf("sent = %d messages, want 1", len(s.sent))
	}
}

func TestNotifyDeliversPastFailingSender(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("webhook revoked")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), Message{Event: EventArbDetected, Title: "t"})
	if err == nil {
		t.Fatal("expected error from failing sender")
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Errorf("error = %v, want it to name the failing channel", err)
	}
	if len(good.sent) != 1 {
		t.Errorf("good sender got %d messages, want 1", len(good.sent))
	}
}

func TestArbitrageMessage(t *testing.T) {
	msg := ArbitrageMessage(domain.ArbitrageAlert{
		MarketPair:   "Fed cuts in December ↔ FOMC cuts rates",
		MarketKeyA:   "fed-cut-december",
		MarketKeyB:   "fomc-cut",
		ProbabilityA: 0.64,
		ProbabilityB: 0.52,
		SpreadPct:    12,
		Status:       domain.AlertStatusAlert,
	})
	if msg.Event != EventArbDetected || msg.Title != "Arbitrage detected" {
		t.Errorf("event/title = %q / %q", msg.Event, msg.Title)
	}
	if msg.Body != "Fed cuts in December ↔ FOMC cuts rates" {
		t.Errorf("body = %q", msg.Body)
	}
	if len(msg.Fields) != 3 {
		t.Fatalf("fields = %+v", msg.Fields)
	}
	if msg.Fields[0].Name != "fed-cut-december" || msg.Fields[0].Value != "64.0%" {
		t.Errorf("field A = %+v", msg.Fields[0])
	}
	if msg.Fields[2].Name != "Spread" || msg.Fields[2].Value != "12.00 pp" {
		t.Errorf("spread field = %+v", msg.Fields[2])
	}

	sim := ArbitrageMessage(domain.ArbitrageAlert{Status: domain.AlertStatusSimulated})
	if sim.Title != "Arbitrage detected (simulated pricing)" {
		t.Errorf("simulated title = %q", sim.Title)
	}
}

func TestScenarioMessage(t *testing.T) {
	msg := ScenarioMessage("what if the fed cuts", "fed-cut-december", "UP",
		[]string{"recession-2026", "sp500-down-10"})
	if msg.Event != EventScenarioComplete || msg.Body != "what if the fed cuts" {
		t.Errorf("event/body = %q / %q", msg.Event, msg.Body)
	}
	want := map[string]string{
		"Trigger":          "fed-cut-december UP",
		"Affected markets": "2",
		"Top impact":       "recession-2026",
	}
	if len(msg.Fields) != len(want) {
		t.Fatalf("fields = %+v", msg.Fields)
	}
	for _, f := range msg.Fields {
		if want[f.Name] != f.Value {
			t.Errorf("field %s = %q, want %q", f.Name, f.Value, want[f.Name])
		}
	}
}

func TestDiscordSenderPostsEmbed(t *testing.T) {
	var got struct {
		Embeds []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Color       int    `json:"color"`
			Fields      []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"fields"`
		} `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode webhook payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	err := d.Send(context.Background(), Message{
		Event:  EventArbDetected,
		Title:  "Arbitrage detected",
		Body:   "pair",
		Fields: []Field{{Name: "Spread", Value: "12.00 pp"}},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(got.Embeds) != 1 {
		t.Fatalf("embeds = %+v", got.Embeds)
	}
	e := got.Embeds[0]
	if e.Title != "Arbitrage detected" || e.Description != "pair" || e.Color != colorArbitrage {
		t.Errorf("embed = %+v", e)
	}
	if len(e.Fields) != 1 || e.Fields[0].Name != "Spread" || e.Fields[0].Value != "12.00 pp" {
		t.Errorf("embed fields = %+v", e.Fields)
	}
}

func TestDiscordSenderSurfacesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid webhook token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	err := d.Send(context.Background(), Message{Event: EventArbDetected, Title: "t"})
	if err == nil {
		t.Fatal("expected error on 401")
	}
	if !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "invalid webhook token") {
		t.Errorf("error = %v", err)
	}
}
