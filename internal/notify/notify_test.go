package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cadencefi/treasuryd/internal/domain"
)

type fakeSender struct {
	name string
	sent []Notification
	fail error
}

func (s *fakeSender) Send(_ context.Context, n Notification) error {
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *fakeSender) Name() string { return s.name }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildNotification(t *testing.T) {
	ev := domain.Event{
		Kind: domain.EventTreasuryExit,
		At:   time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		Fields: map[string]string{
			"treasury":    "0xabc",
			"stake_asset": "1000",
		},
	}

	n := buildNotification(ev)
	require.Equal(t, domain.EventTreasuryExit, n.Kind)
	require.Equal(t, SeverityCritical, n.Severity)
	require.Equal(t, "Treasury exit executed", n.Title)
	require.Equal(t, "at: 2026-08-30 12:00:00 UTC\nstake_asset: 1000\ntreasury: 0xabc", n.Body)
}

func TestBuildNotificationDefaults(t *testing.T) {
	n := buildNotification(domain.Event{Kind: domain.EventDeposit})
	require.Equal(t, SeverityInfo, n.Severity)
	require.Equal(t, "Deposit tracked", n.Title)

	n = buildNotification(domain.Event{Kind: domain.EventKind("unknown_kind")})
	require.Equal(t, "unknown_kind", n.Title)
}

func TestNotifierFiltersByKind(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, []string{"liquidation", " treasury_exit "}, discard())

	require.NoError(t, n.Notify(ctx, buildNotification(domain.Event{Kind: domain.EventLiquidation})))
	require.NoError(t, n.Notify(ctx, buildNotification(domain.Event{Kind: domain.EventTreasuryExit})))
	require.NoError(t, n.Notify(ctx, buildNotification(domain.Event{Kind: domain.EventDeposit})))

	require.Len(t, sender.sent, 2)
	require.Equal(t, domain.EventLiquidation, sender.sent[0].Kind)
	require.Equal(t, domain.EventTreasuryExit, sender.sent[1].Kind)
}

func TestNotifierCollectsSenderFailures(t *testing.T) {
	ctx := context.Background()
	ok := &fakeSender{name: "ok"}
	bad := &fakeSender{name: "bad", fail: errors.New("webhook down")}
	n := NewNotifier([]Sender{bad, ok}, nil, discard())

	err := n.Notify(ctx, buildNotification(domain.Event{Kind: domain.EventDeposit}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad: webhook down")
	require.Len(t, ok.sent, 1)
}

func TestBridgeDropsWhenFull(t *testing.T) {
	b := NewBridge(NewNotifier(nil, nil, discard()), 2, discard())

	// Without a running dispatcher the buffer fills; extra events must not
	// block the emitting engine.
	for i := 0; i < 5; i++ {
		b.Emit(domain.Event{Kind: domain.EventDeposit})
	}
	require.Len(t, b.events, 2)
}
