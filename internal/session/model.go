package session

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/solwave/solwave/internal/ledger"
)

// Status is the connection state of the wallet session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	// StatusError is only observable through the connect_failed event; the
	// controller normalizes back to StatusDisconnected in the same transition.
	StatusError Status = "error"
)

// BalanceState tracks the lifecycle of the current balance snapshot.
type BalanceState string

const (
	BalanceIdle    BalanceState = "idle"
	BalanceLoading BalanceState = "loading"
	BalanceReady   BalanceState = "ready"
	BalanceFailed  BalanceState = "failed"
)

// ErrorKind classifies errors surfaced to the presentation layer.
type ErrorKind string

const (
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	KindConnectRejected     ErrorKind = "connect_rejected"
	KindInvalidIdentity     ErrorKind = "invalid_identity"
	KindBalanceFetchFailed  ErrorKind = "balance_fetch_failed"
)

// ErrorDescriptor is the presentation-safe form of a session error.
type ErrorDescriptor struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

func (d *ErrorDescriptor) clone() *ErrorDescriptor {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}

// Session is an immutable snapshot of the wallet session. Identity is set if
// and only if Status is StatusConnected.
type Session struct {
	Status      Status           `json:"status"`
	Identity    string           `json:"identity,omitempty"`
	Provider    string           `json:"provider,omitempty"`
	Network     string           `json:"network,omitempty"`
	ConnectedAt *time.Time       `json:"connected_at,omitempty"`
	LastError   *ErrorDescriptor `json:"last_error,omitempty"`
}

// Connected reports whether the session holds an identity.
func (s Session) Connected() bool {
	return s.Status == StatusConnected && s.Identity != ""
}

// BalanceSnapshot is an immutable read of the balance for one identity.
// FetchedAt is the sequence number of the fetch that produced Lamports.
type BalanceSnapshot struct {
	Identity  string           `json:"identity,omitempty"`
	Lamports  uint64           `json:"lamports"`
	HasAmount bool             `json:"has_amount"`
	FetchedAt uint64           `json:"fetched_at"`
	UpdatedAt *time.Time       `json:"updated_at,omitempty"`
	State     BalanceState     `json:"state"`
	Err       *ErrorDescriptor `json:"error,omitempty"`
}

// clone returns a copy that shares no pointers with b.
func (b BalanceSnapshot) clone() BalanceSnapshot {
	b.Err = b.Err.clone()
	if b.UpdatedAt != nil {
		at := *b.UpdatedAt
		b.UpdatedAt = &at
	}
	return b
}

// SOL returns the human-scaled amount and whether an amount is known.
// A failed snapshot still reports the last known good amount of its identity.
func (b BalanceSnapshot) SOL() (decimal.Decimal, bool) {
	if !b.HasAmount {
		return decimal.Zero, false
	}
	return ledger.ToSOL(b.Lamports), true
}

// View is a consistent combined read for the presentation layer.
type View struct {
	Session           Session         `json:"session"`
	Balance           BalanceSnapshot `json:"balance"`
	ProviderAvailable bool            `json:"provider_available"`
}
