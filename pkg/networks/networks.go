// Package networks holds the static network → asset registry the gas station
// serves. Everything here is read-mostly and safe for concurrent use.
package networks

import "fmt"

// Network describes one supported chain and its USDC deployment.
type Network struct {
	Name    string
	ChainID int64

	// USDC settlement asset on this chain.
	USDCAddress  string
	USDCDecimals int

	// EIP-712 signing domain of the USDC contract. The facilitator validates
	// the payer's authorization signature against this domain, so these values
	// must match the deployed contract exactly.
	USDCName    string
	USDCVersion string

	// DefaultRPCURL is used when no RPC override is configured.
	DefaultRPCURL string

	// BridgeChain is the CCTP chain label used when refilling treasury ETH.
	BridgeChain string
}

var registry = map[string]Network{
	"base-sepolia": {
		Name:          "base-sepolia",
		ChainID:       84532,
		USDCAddress:   "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		USDCDecimals:  6,
		USDCName:      "USDC",
		USDCVersion:   "2",
		DefaultRPCURL: "https://sepolia.base.org",
		BridgeChain:   "Base_Sepolia",
	},
	"sepolia": {
		Name:          "sepolia",
		ChainID:       11155111,
		USDCAddress:   "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
		USDCDecimals:  6,
		USDCName:      "USDC",
		USDCVersion:   "2",
		DefaultRPCURL: "https://ethereum-sepolia-rpc.publicnode.com",
		BridgeChain:   "Ethereum_Sepolia",
	},
	"polygon-amoy": {
		Name:          "polygon-amoy",
		ChainID:       80002,
		USDCAddress:   "0x41e94eb019c0762f9bfcf9fb1e58725bfb0e7582",
		USDCDecimals:  6,
		USDCName:      "USDC",
		USDCVersion:   "2",
		DefaultRPCURL: "https://rpc-amoy.polygon.technology",
		BridgeChain:   "Polygon_Amoy_Testnet",
	},
}

// supportedOrder keeps Supported() deterministic.
var supportedOrder = []string{"base-sepolia", "sepolia", "polygon-amoy"}

// Get returns the registry entry for a network name.
func Get(name string) (Network, error) {
	network, ok := registry[name]
	if !ok {
		return Network{}, fmt.Errorf("unsupported network: %q", name)
	}
	return network, nil
}

// IsSupported reports whether the network is in the registry.
func IsSupported(name string) bool {
	_, ok := registry[name]
	return ok
}

// Supported returns all registry entries in a stable order.
func Supported() []Network {
	out := make([]Network, 0, len(supportedOrder))
	for _, name := range supportedOrder {
		out = append(out, registry[name])
	}
	return out
}
