package gasstation

import (
	"fmt"
	"math/big"
	"strings"
)

// parseUnits converts a human-readable decimal amount into the token's atomic
// units. Parsing is exact; amounts with more fractional digits than the token
// supports are rejected rather than rounded.
func parseUnits(amount string, decimals int) (*big.Int, error) {
	whole, frac, hasFrac := strings.Cut(amount, ".")
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (hasFrac && (frac == "" || !isDigits(frac))) {
		return nil, fmt.Errorf("invalid decimal amount: %q", amount)
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("amount %q exceeds %d decimal places", amount, decimals)
	}

	padded := whole + frac + strings.Repeat("0", decimals-len(frac))
	value, ok := new(big.Int).SetString(padded, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount: %q", amount)
	}
	return value, nil
}

// formatUnits renders atomic units as a decimal string, trimming trailing
// fractional zeros.
func formatUnits(value *big.Int, decimals int) string {
	str := value.String()
	if decimals == 0 {
		return str
	}
	if len(str) <= decimals {
		str = strings.Repeat("0", decimals-len(str)+1) + str
	}

	split := len(str) - decimals
	whole, frac := str[:split], str[split:]
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
