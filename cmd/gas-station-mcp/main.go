// The gas-station-mcp server exposes the gas station as MCP tools over SSE:
// a paid pump tool and a free quote tool.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/pitstop/gas-station/pkg/config"
	"github.com/pitstop/gas-station/pkg/facilitatorclient"
	"github.com/pitstop/gas-station/pkg/gasstation"
	"github.com/pitstop/gas-station/pkg/mcp"
	"github.com/pitstop/gas-station/pkg/networks"
	"github.com/pitstop/gas-station/pkg/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clients := make(map[string]gasstation.ChainClient)
	callers := make(map[string]gasstation.ContractCaller)
	for _, network := range networks.Supported() {
		client, err := ethclient.DialContext(ctx, cfg.RPCURL(network))
		if err != nil {
			return fmt.Errorf("dial %s rpc: %w", network.Name, err)
		}
		defer client.Close()
		clients[network.Name] = client
		callers[network.Name] = client
	}

	treasury, err := gasstation.NewTreasury(cfg.TreasuryPrivateKey, clients, logger)
	if err != nil {
		return err
	}
	quoter, err := gasstation.NewQuoter(callers, logger)
	if err != nil {
		return err
	}
	service, err := gasstation.NewService(treasury, quoter, cfg.X402Network, logger, nil)
	if err != nil {
		return err
	}

	facilitator := facilitatorclient.NewFacilitatorClient(
		facilitatorclient.NewFacilitatorConfig(cfg.FacilitatorURL, cfg.FacilitatorAuthToken))
	wrapper := mcp.NewWrapper(facilitator, logger)

	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "Gas Station",
		Version: "1.0.0",
	}, nil)

	server.AddTool(&mcpsdk.Tool{
		Name:        "pump",
		Description: "Pump gas to any chain - one-click gas refills across chains (requires USDC payment)",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"amount", "network", "targetAddress"},
			"properties": map[string]any{
				"amount":        map[string]any{"type": "string", "description": "USDC amount to pump (e.g. '5.00')"},
				"network":       map[string]any{"type": "string", "description": "Target network for the gas refill"},
				"targetAddress": map[string]any{"type": "string", "description": "Target wallet address to receive gas (0x...)"},
				"amountEth":     map[string]any{"type": "string", "description": "Expected ETH output, checked against the live quote"},
			},
		},
	}, wrapper.Paid(
		func(args json.RawMessage) ([]*types.PaymentRequirements, error) {
			req, err := service.ValidatePumpRequest(args)
			if err != nil {
				return nil, err
			}
			return service.RequirementsFor(req, "mcp://tool/pump")
		},
		func(ctx context.Context, args json.RawMessage) (string, error) {
			req, err := service.ValidatePumpRequest(args)
			if err != nil {
				return "", err
			}
			operation, err := service.Execute(ctx, req)
			if err != nil {
				return "", err
			}
			encoded, err := json.MarshalIndent(operation, "", "  ")
			if err != nil {
				return "", err
			}
			return string(encoded), nil
		},
	))

	server.AddTool(&mcpsdk.Tool{
		Name:        "quote",
		Description: "Get swap quote for ETH/USDC conversion (free, no payment required)",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"network", "amountIn", "tokenIn", "tokenOut"},
			"properties": map[string]any{
				"network":  map[string]any{"type": "string", "description": "Network for the swap quote"},
				"amountIn": map[string]any{"type": "string", "description": "Amount of input token (e.g. '1.0')"},
				"tokenIn":  map[string]any{"type": "string", "enum": []string{"ETH", "USDC"}},
				"tokenOut": map[string]any{"type": "string", "enum": []string{"ETH", "USDC"}},
			},
		},
	}, mcp.Free(func(ctx context.Context, args json.RawMessage) (string, error) {
		var req gasstation.QuoteRequest
		if err := json.Unmarshal(args, &req); err != nil {
			return "", fmt.Errorf("decode quote request: %w", err)
		}
		quote, err := quoter.Quote(ctx, req)
		if err != nil {
			return "", err
		}
		encoded, err := json.MarshalIndent(quote, "", "  ")
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	}))

	sseHandler := mcpsdk.NewSSEHandler(func(r *http.Request) *mcpsdk.Server {
		return server
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/sse", sseHandler)
	mux.Handle("/messages", sseHandler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MCPPort),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mcp server listening", zap.Int("port", cfg.MCPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
