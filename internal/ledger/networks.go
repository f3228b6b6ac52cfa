package ledger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go/rpc"
)

const (
	NetworkMainnet  = "mainnet-beta"
	NetworkDevnet   = "devnet"
	NetworkTestnet  = "testnet"
	NetworkLocalnet = "localnet"
)

var networkEndpoints = map[string]string{
	NetworkMainnet:  rpc.MainNetBeta_RPC,
	NetworkDevnet:   rpc.DevNet_RPC,
	NetworkTestnet:  rpc.TestNet_RPC,
	NetworkLocalnet: rpc.LocalNet_RPC,
}

// ResolveNetwork normalizes a network name and returns its public RPC endpoint.
// "mainnet" is accepted as an alias of "mainnet-beta".
func ResolveNetwork(name string) (string, string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "mainnet" {
		n = NetworkMainnet
	}
	endpoint, ok := networkEndpoints[n]
	if !ok {
		return "", "", fmt.Errorf("unknown network %q (allowed: %s)", name, strings.Join(Networks(), ", "))
	}
	return n, endpoint, nil
}

// Networks lists the supported network names.
func Networks() []string {
	out := make([]string, 0, len(networkEndpoints))
	for n := range networkEndpoints {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
