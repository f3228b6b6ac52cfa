package session

import "time"

// EventKind names a session transition.
type EventKind string

const (
	EventStatusChanged   EventKind = "status_changed"
	EventIdentityChanged EventKind = "identity_changed"
	EventConnectFailed   EventKind = "connect_failed"
	EventBalanceLoading  EventKind = "balance_loading"
	EventBalanceUpdated  EventKind = "balance_updated"
	EventBalanceFailed   EventKind = "balance_failed"
	EventBalanceStale    EventKind = "balance_stale"
)

// Event is emitted after every transition. Generation is the identity
// generation the event belongs to; events from concurrent fetches may reach
// listeners out of order, so consumers should compare generations.
type Event struct {
	Kind             EventKind       `json:"kind"`
	Session          Session         `json:"session"`
	Balance          BalanceSnapshot `json:"balance"`
	PreviousIdentity string          `json:"previous_identity,omitempty"`
	Generation       uint64          `json:"generation"`
	At               time.Time       `json:"at"`
}

// Listener receives session events. Listeners run on the goroutine that
// caused the transition, outside the controller lock, and must not block.
type Listener func(Event)

type listenerEntry struct {
	id uint64
	fn Listener
}

// Subscribe registers l and returns a function that removes it.
func (c *Controller) Subscribe(l Listener) func() {
	c.listenersMu.Lock()
	c.nextListener++
	id := c.nextListener
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: l})
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		for i, e := range c.listeners {
			if e.id == id {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// emit delivers events to listeners, then lets the controller consume its
// own identity changes.
func (c *Controller) emit(events ...Event) {
	for _, ev := range events {
		if ev.At.IsZero() {
			ev.At = c.now()
		}

		c.listenersMu.RLock()
		listeners := append([]listenerEntry(nil), c.listeners...)
		c.listenersMu.RUnlock()
		for _, l := range listeners {
			l.fn(ev)
		}

		if ev.Kind == EventIdentityChanged {
			c.onIdentityChanged(ev)
		}
	}
}

func (c *Controller) onIdentityChanged(ev Event) {
	if ev.Session.Identity == "" {
		return
	}
	c.startFetch(ev.Generation, ev.Session.Identity)
}
