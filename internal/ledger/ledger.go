package ledger

import (
	"context"
	"errors"
)

// ErrBalanceFetchFailed wraps transport and service failures of a balance query.
// Identity validation failures are reported as address.ErrInvalidIdentity instead.
var ErrBalanceFetchFailed = errors.New("balance fetch failed")

// Ledger defines the read contract implemented by ledger backends (e.g. Solana JSON-RPC).
// Implementations must be safe for concurrent use and must not retry internally.
type Ledger interface {
	// Balance returns the balance of identity in base units (lamports).
	Balance(ctx context.Context, identity string) (uint64, error)
}
