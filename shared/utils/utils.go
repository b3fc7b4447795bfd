package utils

import (
	"math/big"
	"strings"
)

// ShortAddress renders an address as 0x1234abcd...9f12 for messages.
func ShortAddress(address string) string {
	if len(address) <= 14 {
		return address
	}
	return address[:8] + "..." + address[len(address)-6:]
}

// FormatUnits converts a raw integer amount string into a decimal string
// using the given number of decimals, trimming trailing zeros. Returns
// "0" for unparseable input rather than failing a whole scan over one
// malformed amount field.
func FormatUnits(raw string, decimals int) string {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return "0"
	}
	if decimals <= 0 {
		return amount.String()
	}

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(amount, divisor, new(big.Int))

	fracStr := strings.TrimRight(leftPad(frac.Abs(frac).String(), decimals), "0")
	if fracStr == "" {
		return whole.String()
	}
	return whole.String() + "." + fracStr
}

func leftPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
