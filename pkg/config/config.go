// Package config loads the gas station's runtime configuration from the
// environment. main loads .env via godotenv before calling Load, so both real
// environments and local dotfiles end up here.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pitstop/gas-station/pkg/facilitatorclient"
	"github.com/pitstop/gas-station/pkg/networks"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	// Port serves the HTTP API; MCPPort serves the MCP SSE transport.
	Port    int
	MCPPort int

	FacilitatorURL string
	// FacilitatorAuthToken, when set, is sent as a bearer token on verify and
	// settle calls.
	FacilitatorAuthToken string

	// X402Network is the network payments are collected on.
	X402Network string

	// TreasuryPrivateKey is the hex-encoded treasury signing key.
	TreasuryPrivateKey string

	// RPCURLs maps network name to an RPC endpoint override.
	RPCURLs map[string]string

	RefillInterval time.Duration
}

// Load reads configuration from the environment, applying defaults for
// everything except the treasury key.
func Load() (*Config, error) {
	port, err := intEnv("PORT", 4021)
	if err != nil {
		return nil, err
	}
	mcpPort, err := intEnv("MCP_PORT", 4022)
	if err != nil {
		return nil, err
	}
	refillInterval, err := durationEnv("REFILL_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	x402Network := getenv("X402_NETWORK", "base-sepolia")
	if !networks.IsSupported(x402Network) {
		return nil, fmt.Errorf("config: unsupported X402_NETWORK %q", x402Network)
	}

	treasuryKey := os.Getenv("TREASURY_PRIVATE_KEY")
	if treasuryKey == "" {
		return nil, fmt.Errorf("config: TREASURY_PRIVATE_KEY is required")
	}

	return &Config{
		Port:                 port,
		MCPPort:              mcpPort,
		FacilitatorURL:       getenv("FACILITATOR_URL", facilitatorclient.DefaultFacilitatorURL),
		FacilitatorAuthToken: os.Getenv("FACILITATOR_AUTH_TOKEN"),
		X402Network:          x402Network,
		TreasuryPrivateKey:   treasuryKey,
		RPCURLs: map[string]string{
			"base-sepolia": os.Getenv("BASE_SEPOLIA_RPC"),
			"sepolia":      os.Getenv("ETHEREUM_SEPOLIA_RPC"),
			"polygon-amoy": os.Getenv("POLYGON_AMOY_RPC"),
		},
		RefillInterval: refillInterval,
	}, nil
}

// RPCURL resolves the RPC endpoint for a network, falling back to the
// registry default when no override is configured.
func (c *Config) RPCURL(network networks.Network) string {
	if url := c.RPCURLs[network.Name]; url != "" {
		return url
	}
	return network.DefaultRPCURL
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return parsed, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return parsed, nil
}
