package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/cadencefi/treasuryd/internal/domain"
)

// Bridge adapts the engine event stream to operator notifications. It
// implements domain.EventSink; Emit never blocks the calling engine, events
// are buffered and dispatched by Run.
type Bridge struct {
	notifier *Notifier
	events   chan domain.Event
	logger   *slog.Logger
}

// NewBridge creates a Bridge with the given buffer size. Events emitted while
// the buffer is full are dropped and counted in the log.
func NewBridge(notifier *Notifier, buffer int, logger *slog.Logger) *Bridge {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bridge{
		notifier: notifier,
		events:   make(chan domain.Event, buffer),
		logger:   logger.With(slog.String("component", "notify_bridge")),
	}
}

// Emit queues an event for delivery. Implements domain.EventSink.
func (b *Bridge) Emit(ev domain.Event) {
	select {
	case b.events <- ev:
	default:
		b.logger.Warn("notification buffer full, dropping event",
			slog.String("kind", string(ev.Kind)),
			slog.String("id", ev.ID),
		)
	}
}

// Run dispatches buffered events until the context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-b.events:
			if err := b.notifier.Notify(ctx, buildNotification(ev)); err != nil {
				b.logger.ErrorContext(ctx, "notification dispatch failed",
					slog.String("kind", string(ev.Kind)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// eventTitles maps event kinds to operator-facing headlines. Kinds without an
// entry fall back to the raw kind string.
var eventTitles = map[domain.EventKind]string{
	domain.EventDeposit:         "Deposit tracked",
	domain.EventWithdraw:        "Withdrawal processed",
	domain.EventWithdrawRaw:     "Raw balance withdrawn",
	domain.EventRouteCreated:    "Liquidation route created",
	domain.EventRouteDeleted:    "Liquidation route deleted",
	domain.EventCallerActivated: "Caller activated",
	domain.EventCallerDisabled:  "Caller deactivated",
	domain.EventLiquidation:     "Liquidation executed",
	domain.EventStakeProcessed:  "Stake-asset cycle completed",
	domain.EventRewardProcessed: "Reward cycle completed",
	domain.EventRatiosUpdated:   "Split ratios updated",
	domain.EventTreasuryExit:    "Treasury exit executed",
}

// eventSeverity flags the kinds an operator should act on. The raw-balance
// escape hatch and caller shutoffs warrant a look; a treasury exit is the
// emergency drain. Everything else is informational.
var eventSeverity = map[domain.EventKind]Severity{
	domain.EventWithdrawRaw:    SeverityWarn,
	domain.EventCallerDisabled: SeverityWarn,
	domain.EventTreasuryExit:   SeverityCritical,
}

// buildNotification renders an event as an operator alert. Fields are listed
// one per line in key order.
func buildNotification(ev domain.Event) Notification {
	title, ok := eventTitles[ev.Kind]
	if !ok {
		title = string(ev.Kind)
	}

	keys := make([]string, 0, len(ev.Fields))
	for k := range ev.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	fmt.Fprintf(&sb, "at: %s", ev.At.UTC().Format("2006-01-02 15:04:05 MST"))
	for _, k := range keys {
		fmt.Fprintf(&sb, "\n%s: %s", k, ev.Fields[k])
	}

	return Notification{
		Kind:     ev.Kind,
		Severity: eventSeverity[ev.Kind],
		Title:    title,
		Body:     sb.String(),
	}
}

var _ domain.EventSink = (*Bridge)(nil)
