package domain

import (
	"encoding/json"
	"time"
)

// EventKind enumerates the engine events published on the signal bus, pushed
// to websocket subscribers, and fed to the notifier.
type EventKind string

const (
	EventDeposit         EventKind = "deposit"
	EventWithdraw        EventKind = "withdraw"
	EventWithdrawRaw     EventKind = "withdraw_raw"
	EventRouteCreated    EventKind = "route_created"
	EventRouteDeleted    EventKind = "route_deleted"
	EventCallerActivated EventKind = "caller_activated"
	EventCallerDisabled  EventKind = "caller_deactivated"
	EventLiquidation     EventKind = "liquidation"
	EventStakeProcessed  EventKind = "stake_processed"
	EventRewardProcessed EventKind = "reward_processed"
	EventRatiosUpdated   EventKind = "ratios_updated"
	EventTreasuryExit    EventKind = "treasury_exit"
)

// Event is a single engine event. Fields carry kind-specific values as decimal
// strings so the payload survives JSON without precision loss.
type Event struct {
	ID     string            `json:"id"`
	Kind   EventKind         `json:"kind"`
	At     time.Time         `json:"at"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Marshal encodes the event as JSON for the bus and the websocket hub.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// EventSink receives engine events. Implementations must not block the
// calling engine; slow delivery belongs behind a buffer.
type EventSink interface {
	Emit(event Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(Event)

// Emit calls the wrapped function.
func (f EventSinkFunc) Emit(event Event) { f(event) }

// NopSink discards events. Engines fall back to it when wired without a bus.
var NopSink EventSink = EventSinkFunc(func(Event) {})
