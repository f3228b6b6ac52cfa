package session

import (
	"errors"

	"github.com/solwave/solwave/internal/address"
)

var (
	// ErrProviderUnavailable means no wallet provider was detected. It is a
	// representable state rather than a failure of the connect operation.
	ErrProviderUnavailable = errors.New("wallet provider unavailable")

	// ErrConnectRejected wraps any failed connect handshake.
	ErrConnectRejected = errors.New("wallet connect rejected")

	// ErrNotConnected is returned by balance refreshes without a connected wallet.
	ErrNotConnected = errors.New("wallet not connected")

	errDisconnectPending = errors.New("wallet disconnect in progress")
)

func kindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrProviderUnavailable):
		return KindProviderUnavailable
	case errors.Is(err, address.ErrInvalidIdentity):
		return KindInvalidIdentity
	case errors.Is(err, ErrConnectRejected):
		return KindConnectRejected
	default:
		return KindBalanceFetchFailed
	}
}
