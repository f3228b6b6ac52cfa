package wallet

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"strings"
	"sync"

	"github.com/tyler-smith/go-bip39"

	"github.com/solwave/solwave/internal/address"
)

const mnemonicName = "mnemonic"

// Mnemonic is a wallet derived from a BIP-39 recovery phrase.
type Mnemonic struct {
	phrase     string
	passphrase string
	path       string

	mu  sync.Mutex
	key ed25519.PrivateKey
}

// NewMnemonic builds a wallet for phrase at the browser-wallet path of account.
func NewMnemonic(phrase, passphrase string, account uint32) *Mnemonic {
	return &Mnemonic{
		phrase:     strings.Join(strings.Fields(phrase), " "),
		passphrase: passphrase,
		path:       DerivationPath(account),
	}
}

func (m *Mnemonic) Name() string { return mnemonicName }

// Path returns the derivation path in use.
func (m *Mnemonic) Path() string { return m.path }

// Available reports whether the configured phrase is a valid BIP-39 mnemonic.
func (m *Mnemonic) Available() bool {
	return m.phrase != "" && bip39.IsMnemonicValid(m.phrase)
}

// Connect derives the account key and returns its public key.
func (m *Mnemonic) Connect(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRejected, err)
	}
	seed, err := bip39.NewSeedWithErrorChecking(m.phrase, m.passphrase)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRejected, err)
	}
	defer clear(seed)

	key, err := deriveKey(seed, m.path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRejected, err)
	}

	identity, err := address.Encode(key.Public().(ed25519.PublicKey))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRejected, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.key)
	m.key = key
	return identity, nil
}

// Disconnect drops the derived key material.
func (m *Mnemonic) Disconnect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.key)
	m.key = nil
	return nil
}
