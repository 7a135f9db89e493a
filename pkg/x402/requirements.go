package x402

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pitstop/gas-station/pkg/networks"
	"github.com/pitstop/gas-station/pkg/types"
)

// DefaultMaxTimeoutSeconds is how long a payment authorization stays
// acceptable. Enforcement is the facilitator's job.
const DefaultMaxTimeoutSeconds = 60

// BuildRequirement converts a human price and target network into a canonical,
// signable payment requirement for the "exact" scheme. The price is either a
// currency-prefixed decimal ("$0.05") or an already-atomic integer string
// ("50000"). Pure, aside from the static network registry lookup.
func BuildRequirement(price, network, resource, payTo, description string) (*types.PaymentRequirements, error) {
	net, err := networks.Get(network)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownNetwork, err)
	}

	amount, err := ParsePrice(price, net.USDCDecimals)
	if err != nil {
		return nil, err
	}

	if !common.IsHexAddress(payTo) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, payTo)
	}

	return &types.PaymentRequirements{
		Scheme:            types.SchemeExact,
		Network:           net.Name,
		MaxAmountRequired: amount,
		Resource:          resource,
		Description:       description,
		MimeType:          "application/json",
		PayTo:             payTo,
		MaxTimeoutSeconds: DefaultMaxTimeoutSeconds,
		Asset:             net.USDCAddress,
		Extra: &types.PaymentExtra{
			Name:    net.USDCName,
			Version: net.USDCVersion,
		},
	}, nil
}

// ParsePrice resolves a price string to an integer amount in the asset's
// smallest unit. "$1.50" with 6 decimals yields "1500000"; a bare integer
// string is taken as already atomic. Parsing is exact: no floats, and more
// fractional digits than the asset carries is an error rather than a rounding.
func ParsePrice(price string, decimals int) (string, error) {
	if price == "" {
		return "", fmt.Errorf("%w: empty price", ErrInvalidPrice)
	}

	if !strings.HasPrefix(price, "$") {
		return parseAtomic(price)
	}

	decimal := strings.TrimPrefix(price, "$")
	whole, frac, _ := strings.Cut(decimal, ".")
	if whole == "" && frac == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPrice, price)
	}
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPrice, price)
	}
	if len(frac) > decimals {
		return "", fmt.Errorf("%w: %q has more than %d fractional digits", ErrInvalidPrice, price, decimals)
	}

	// Pad the fraction out to the asset's decimals and join: exact integer
	// arithmetic, no floating point.
	frac += strings.Repeat("0", decimals-len(frac))
	amount, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidPrice, price)
	}
	if amount.Sign() <= 0 {
		return "", fmt.Errorf("%w: amount must be positive", ErrInvalidPrice)
	}

	return amount.String(), nil
}

func parseAtomic(price string) (string, error) {
	if !isDigits(price) {
		return "", fmt.Errorf("%w: %q is neither a $-prefixed decimal nor an atomic integer", ErrInvalidPrice, price)
	}
	amount, ok := new(big.Int).SetString(price, 10)
	if !ok || amount.Sign() <= 0 {
		return "", fmt.Errorf("%w: amount must be positive", ErrInvalidPrice)
	}
	return amount.String(), nil
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
