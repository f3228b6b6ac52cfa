package wallet

import (
	"crypto/ed25519"
	"fmt"

	"github.com/anyproto/go-slip10"
)

const solanaCoinType = 501

// DerivationPath returns the path browser wallets use for account index n.
func DerivationPath(account uint32) string {
	return fmt.Sprintf("m/44'/%d'/%d'/0'", solanaCoinType, account)
}

// deriveKey derives the ed25519 key at a fully hardened SLIP-0010 path from
// a BIP-39 seed.
func deriveKey(seed []byte, path string) (ed25519.PrivateKey, error) {
	node, err := slip10.DeriveForPath(path, seed)
	if err != nil {
		return nil, fmt.Errorf("derive %s: %w", path, err)
	}
	raw := node.RawSeed()
	defer clear(raw[:])
	return ed25519.NewKeyFromSeed(raw[:]), nil
}
