// Package notify fans operator alerts out to chat webhooks. Alerts are keyed
// by event so operators can subscribe to the ones they care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Events raised by the bot.
const (
	EventBotStarted    = "bot_started"
	EventBotResumed    = "bot_resumed"
	EventBotPaused     = "bot_paused"
	EventBotStopped    = "bot_stopped"
	EventEmergencyStop = "emergency_stop"
	EventTradeExecuted = "trade_executed"
)

// Message is a single alert.
type Message struct {
	Event string
	Title string
	Body  string
}

// Sender delivers a Message over one channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Notifier forwards alerts to every sender when the event is allowed. An
// empty allow list lets every event through.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Allowed reports whether event passes the filter.
func (n *Notifier) Allowed(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// Notify delivers the alert to every sender. A failing sender does not stop
// delivery to the rest; all failures are joined into the returned error.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Allowed(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	msg := Message{Event: event, Title: title, Body: message}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", event),
		)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
