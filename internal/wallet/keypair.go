package wallet

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
)

const keypairFileName = "keypair-file"

// KeypairFile is a wallet backed by a Solana CLI keypair file: a JSON array
// of 64 bytes holding the ed25519 seed followed by the public key.
type KeypairFile struct {
	path string

	mu  sync.Mutex
	key solana.PrivateKey
}

// NewKeypairFile builds a keypair-file wallet for path.
func NewKeypairFile(path string) *KeypairFile {
	return &KeypairFile{path: strings.TrimSpace(path)}
}

func (k *KeypairFile) Name() string { return keypairFileName }

// Available reports whether the keypair file exists.
func (k *KeypairFile) Available() bool {
	if k.path == "" {
		return false
	}
	info, err := os.Stat(k.path)
	return err == nil && !info.IsDir()
}

// Connect loads and verifies the keypair and returns its public key.
func (k *KeypairFile) Connect(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRejected, err)
	}
	key, err := readKeypair(k.path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRejected, err)
	}
	identity := key.PublicKey().String()

	k.mu.Lock()
	defer k.mu.Unlock()
	clear(k.key)
	k.key = key
	return identity, nil
}

// Disconnect drops the loaded key material.
func (k *KeypairFile) Disconnect(_ context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	clear(k.key)
	k.key = nil
	return nil
}

// readKeypair loads a keygen file and checks that its public half matches
// the seed, which the loader itself does not verify.
func readKeypair(path string) (solana.PrivateKey, error) {
	if path == "" {
		return nil, fmt.Errorf("keypair path is empty")
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, err
	}
	if len(key) != ed25519.PrivateKeySize {
		clear(key)
		return nil, fmt.Errorf("keypair has %d bytes, want %d", len(key), ed25519.PrivateKeySize)
	}

	derived := ed25519.NewKeyFromSeed(key[:ed25519.SeedSize])
	defer clear(derived)
	if !bytes.Equal(derived[ed25519.SeedSize:], key[ed25519.SeedSize:]) {
		clear(key)
		return nil, fmt.Errorf("keypair public key does not match seed")
	}
	return key, nil
}
