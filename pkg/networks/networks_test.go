package networks

import (
	"strings"
	"testing"
)

// The signing-domain metadata is consumed downstream by the facilitator when
// validating EIP-3009 signatures, so every supported pair is pinned here.
func TestRegistrySigningDomains(t *testing.T) {
	t.Parallel()

	tests := []struct {
		network     string
		chainID     int64
		usdcAddress string
		name        string
		version     string
	}{
		{"base-sepolia", 84532, "0x036CbD53842c5426634e7929541eC2318f3dCF7e", "USDC", "2"},
		{"sepolia", 11155111, "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238", "USDC", "2"},
		{"polygon-amoy", 80002, "0x41e94eb019c0762f9bfcf9fb1e58725bfb0e7582", "USDC", "2"},
	}

	for _, tc := range tests {
		t.Run(tc.network, func(t *testing.T) {
			t.Parallel()

			network, err := Get(tc.network)
			if err != nil {
				t.Fatalf("expected network %q in registry: %v", tc.network, err)
			}
			if network.ChainID != tc.chainID {
				t.Errorf("chain id: want %d, got %d", tc.chainID, network.ChainID)
			}
			if network.USDCAddress != tc.usdcAddress {
				t.Errorf("usdc address: want %s, got %s", tc.usdcAddress, network.USDCAddress)
			}
			if network.USDCName != tc.name || network.USDCVersion != tc.version {
				t.Errorf("eip-712 domain: want %s/%s, got %s/%s",
					tc.name, tc.version, network.USDCName, network.USDCVersion)
			}
			if network.USDCDecimals != 6 {
				t.Errorf("usdc decimals: want 6, got %d", network.USDCDecimals)
			}
			if network.DefaultRPCURL == "" || !strings.HasPrefix(network.DefaultRPCURL, "https://") {
				t.Errorf("default rpc url missing or not https: %q", network.DefaultRPCURL)
			}
		})
	}
}

func TestGetUnknownNetwork(t *testing.T) {
	t.Parallel()

	if _, err := Get("base"); err == nil {
		t.Fatal("expected error for unregistered network")
	}
	if IsSupported("base") {
		t.Fatal("mainnet must not be in the testnet registry")
	}
}

func TestSupportedOrderStable(t *testing.T) {
	t.Parallel()

	supported := Supported()
	if len(supported) != 3 {
		t.Fatalf("expected 3 supported networks, got %d", len(supported))
	}
	want := []string{"base-sepolia", "sepolia", "polygon-amoy"}
	for i, network := range supported {
		if network.Name != want[i] {
			t.Errorf("position %d: want %s, got %s", i, want[i], network.Name)
		}
	}
}
