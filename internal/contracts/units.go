package contracts

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const etherDecimals = 18

// FormatEther renders a wei amount as a decimal ether string, e.g. "0.123".
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -etherDecimals).String()
}

// ParseEther converts a decimal ether string into wei. Fractions below one
// wei are truncated.
func ParseEther(value string) (*big.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, err
	}
	return d.Shift(etherDecimals).BigInt(), nil
}
