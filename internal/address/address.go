package address

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/mr-tron/base58"
)

const (
	// DefaultVisibleChars is the number of leading and trailing characters kept by Short.
	DefaultVisibleChars = 4

	// PublicKeyLength is the decoded size of an ed25519 account identity.
	PublicKeyLength = 32

	minEncodedLength = 32
	maxEncodedLength = 44

	explorerBaseURL = "https://explorer.solana.com"
	mainnetCluster  = "mainnet-beta"
)

// ErrInvalidIdentity is returned for identities that fail structural validation.
var ErrInvalidIdentity = errors.New("invalid account identity")

// Format shortens an identity to "<first n>...<last n>". Identities shorter
// than 2n+1 characters are returned unmodified.
func Format(identity string, visibleChars int) string {
	if visibleChars <= 0 || len(identity) < 2*visibleChars+1 {
		return identity
	}
	return identity[:visibleChars] + "..." + identity[len(identity)-visibleChars:]
}

// Short formats an identity with DefaultVisibleChars.
func Short(identity string) string {
	return Format(identity, DefaultVisibleChars)
}

// Validate checks that identity is a base58 string decoding to a 32-byte public key.
func Validate(identity string) error {
	if identity == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentity)
	}
	if n := len(identity); n < minEncodedLength || n > maxEncodedLength {
		return fmt.Errorf("%w: length %d", ErrInvalidIdentity, n)
	}
	raw, err := base58.Decode(identity)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if len(raw) != PublicKeyLength {
		return fmt.Errorf("%w: decodes to %d bytes", ErrInvalidIdentity, len(raw))
	}
	return nil
}

// IsValid reports whether identity passes Validate. It never touches the network.
func IsValid(identity string) bool {
	return Validate(identity) == nil
}

// Encode renders a raw public key as an identity string.
func Encode(publicKey []byte) (string, error) {
	if len(publicKey) != PublicKeyLength {
		return "", fmt.Errorf("%w: public key is %d bytes", ErrInvalidIdentity, len(publicKey))
	}
	return base58.Encode(publicKey), nil
}

// ExplorerURL links to the account page on the public explorer for cluster.
func ExplorerURL(identity, cluster string) string {
	u := explorerBaseURL + "/address/" + url.PathEscape(identity)
	if cluster == "" || cluster == mainnetCluster {
		return u
	}
	return u + "?cluster=" + url.QueryEscape(cluster)
}
