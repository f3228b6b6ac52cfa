package wallet

import (
	"context"
	"errors"
)

// ErrRejected wraps every reason a provider declined the connect handshake.
var ErrRejected = errors.New("wallet rejected connection")

// Provider is the capability exposed by a wallet: a connect handshake that
// yields the account identity and a disconnect call. Adapters must be safe
// for concurrent use.
type Provider interface {
	// Name identifies the adapter (e.g. "keypair-file").
	Name() string
	// Available reports whether the wallet is present in this environment.
	Available() bool
	// Connect performs the handshake and returns the base58 account identity.
	Connect(ctx context.Context) (string, error)
	// Disconnect ends the provider side of the session.
	Disconnect(ctx context.Context) error
}

// Detector finds the wallet provider present in the execution environment.
type Detector interface {
	Detect() (Provider, bool)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func() (Provider, bool)

// Detect calls f.
func (f DetectorFunc) Detect() (Provider, bool) {
	return f()
}
