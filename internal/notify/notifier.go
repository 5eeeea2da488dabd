// Package notify delivers engine events to operator channels. Every alert is
// a typed Notification derived from a domain event; each sender renders it
// for its channel (Telegram markdown, Discord embeds). Delivery can be
// filtered by event kind so operators receive only the alerts they care
// about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cadencefi/treasuryd/internal/domain"
)

// Severity classifies how urgently an operator should look at an alert.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityCritical
)

// Notification is one operator alert derived from an engine event.
type Notification struct {
	Kind     domain.EventKind
	Severity Severity
	Title    string
	Body     string
}

// Sender is one delivery channel for notifications.
type Sender interface {
	// Send delivers the alert, rendered for the channel.
	Send(ctx context.Context, n Notification) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier fans an alert out to all registered senders. It maintains a set of
// allowed event kinds; Notify drops alerts whose kind is not in the set.
type Notifier struct {
	senders []Sender
	kinds   map[domain.EventKind]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// alerts whose kind appears in the kinds slice will be forwarded by Notify.
// If kinds is empty, all event kinds are allowed.
func NewNotifier(senders []Sender, kinds []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventKind]bool, len(kinds))
	for _, k := range kinds {
		allowed[domain.EventKind(strings.TrimSpace(k))] = true
	}
	return &Notifier{
		senders: senders,
		kinds:   allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the alert to every sender when its kind passes the filter.
// Errors from individual senders are collected and returned as a combined
// error; a single sender failure does not prevent delivery to the remaining
// senders.
func (n *Notifier) Notify(ctx context.Context, alert Notification) error {
	if len(n.kinds) > 0 && !n.kinds[alert.Kind] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("kind", string(alert.Kind)),
		)
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, alert); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("kind", string(alert.Kind)),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
