package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/solwave/solwave/internal/address"
)

// RPCLedger queries account balances from a Solana JSON-RPC endpoint.
type RPCLedger struct {
	client     *rpc.Client
	endpoint   string
	commitment rpc.CommitmentType
}

// NewRPCLedger builds a ledger adapter for endpoint. An empty commitment
// defaults to "confirmed".
func NewRPCLedger(endpoint, commitment string) (*RPCLedger, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("rpc endpoint is required")
	}
	c, err := parseCommitment(commitment)
	if err != nil {
		return nil, err
	}
	return &RPCLedger{client: rpc.New(endpoint), endpoint: endpoint, commitment: c}, nil
}

// Endpoint returns the configured RPC URL.
func (l *RPCLedger) Endpoint() string {
	return l.endpoint
}

// Balance validates identity locally, then performs a single getBalance call.
func (l *RPCLedger) Balance(ctx context.Context, identity string) (uint64, error) {
	if err := address.Validate(identity); err != nil {
		return 0, err
	}
	pubkey, err := solana.PublicKeyFromBase58(identity)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", address.ErrInvalidIdentity, err)
	}

	out, err := l.client.GetBalance(ctx, pubkey, l.commitment)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBalanceFetchFailed, err)
	}
	if out == nil {
		return 0, fmt.Errorf("%w: empty response", ErrBalanceFetchFailed)
	}
	return out.Value, nil
}

// Close releases idle connections held by the RPC client.
func (l *RPCLedger) Close() error {
	return l.client.Close()
}

func parseCommitment(s string) (rpc.CommitmentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "confirmed":
		return rpc.CommitmentConfirmed, nil
	case "finalized":
		return rpc.CommitmentFinalized, nil
	case "processed":
		return rpc.CommitmentProcessed, nil
	default:
		return "", fmt.Errorf("invalid commitment %q (allowed: processed, confirmed, finalized)", s)
	}
}
