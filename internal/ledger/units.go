package ledger

import (
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

const (
	// LamportsPerSOL is the base-unit factor of the native asset.
	LamportsPerSOL = solana.LAMPORTS_PER_SOL

	// Decimals is the number of fractional digits of one SOL.
	Decimals = 9

	displayPlaces = 4
)

// ToSOL converts lamports to a human-scaled SOL amount without float rounding.
func ToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -Decimals)
}

// FormatSOL renders lamports as SOL with four fractional digits.
func FormatSOL(lamports uint64) string {
	return ToSOL(lamports).StringFixed(displayPlaces)
}
