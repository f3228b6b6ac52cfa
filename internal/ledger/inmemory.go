package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/solwave/solwave/internal/address"
)

type inMemoryLedger struct {
	mu       sync.RWMutex
	balances map[string]uint64
	failures map[string]error
	calls    map[string]int
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests
// and offline development. Unknown accounts report a zero balance, like an
// unfunded account on chain.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		balances: make(map[string]uint64),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (l *inMemoryLedger) Balance(ctx context.Context, identity string) (uint64, error) {
	if err := address.Validate(identity); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBalanceFetchFailed, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[identity]++
	if err, ok := l.failures[identity]; ok {
		return 0, fmt.Errorf("%w: %w", ErrBalanceFetchFailed, err)
	}
	return l.balances[identity], nil
}
