package ledger

// SeedBalance is a test helper that seeds the balance for an identity when using the in-memory ledger.
func SeedBalance(l Ledger, identity string, lamports uint64) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[identity] = lamports
		delete(mem.failures, identity)
	}
}

// SeedFailure makes subsequent balance queries for identity fail with err.
func SeedFailure(l Ledger, identity string, err error) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.failures[identity] = err
	}
}

// Calls reports how many balance queries reached the in-memory ledger for identity.
func Calls(l Ledger, identity string) int {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.RLock()
		defer mem.mu.RUnlock()
		return mem.calls[identity]
	}
	return 0
}
