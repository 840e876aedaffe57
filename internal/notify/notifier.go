// Package notify delivers operator notifications for arbitrage alerts and
// completed scenario reports. A message is fanned out to every configured
// channel (Telegram, Discord) and can be filtered by event type so operators
// only receive the alerts they subscribed to.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Field is one labelled detail line of a message. Channels render fields
// natively: Discord as embed fields, Telegram as "Name: Value" lines.
type Field struct {
	Name  string
	Value string
}

// Message is one operator notification.
type Message struct {
	// Event keys the notifier's subscription filter.
	Event  string
	Title  string
	Body   string
	Fields []Field
}

// Sender delivers a message over one channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	// Name identifies the channel, e.g. "telegram".
	Name() string
}

// Notifier fans messages out to the configured senders, dropping events the
// operator did not subscribe to.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only events
// listed in events pass the filter; an empty list subscribes to everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers msg to every sender. A failing channel does not stop
// delivery to the remaining ones; all channel errors are joined into the
// returned error.
func (n *Notifier) Notify(ctx context.Context, msg Message) error {
	if len(n.events) > 0 && !n.events[msg.Event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", msg.Event))
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", msg.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", msg.Event),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify %s: %w", msg.Event, errors.Join(errs...))
	}
	return nil
}
