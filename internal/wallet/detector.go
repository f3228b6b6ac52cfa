package wallet

import (
	"log/slog"
	"strings"
)

// EnvDetector picks a provider from configured wallet sources. A keypair file
// takes precedence over a recovery phrase.
type EnvDetector struct {
	KeypairPath string
	Mnemonic    string
	Passphrase  string
	Account     uint32
	Logger      *slog.Logger
}

// Detect returns the first available provider, or false when none is present.
func (d EnvDetector) Detect() (Provider, bool) {
	candidates := make([]Provider, 0, 2)
	if strings.TrimSpace(d.KeypairPath) != "" {
		candidates = append(candidates, NewKeypairFile(d.KeypairPath))
	}
	if strings.TrimSpace(d.Mnemonic) != "" {
		candidates = append(candidates, NewMnemonic(d.Mnemonic, d.Passphrase, d.Account))
	}

	for _, p := range candidates {
		if p.Available() {
			d.log().Info("wallet provider detected", "provider", p.Name())
			return p, true
		}
		d.log().Warn("wallet provider configured but unavailable", "provider", p.Name())
	}
	return nil, false
}

func (d EnvDetector) log() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
