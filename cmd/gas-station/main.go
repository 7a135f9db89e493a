// The gas-station server sells gas refills over x402: a POST /pump paid in
// USDC delivers ETH to the requested wallet on the requested testnet.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pitstop/gas-station/pkg/config"
	"github.com/pitstop/gas-station/pkg/facilitatorclient"
	"github.com/pitstop/gas-station/pkg/gasstation"
	ginx402 "github.com/pitstop/gas-station/pkg/gin"
	"github.com/pitstop/gas-station/pkg/metrics"
	"github.com/pitstop/gas-station/pkg/networks"
	"github.com/pitstop/gas-station/pkg/types"
	"github.com/pitstop/gas-station/pkg/x402"
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

	// One RPC client per supported network, shared by the treasury and the
	// quoter.
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
	logger.Info("treasury loaded", zap.String("address", treasury.Address().Hex()))

	quoter, err := gasstation.NewQuoter(callers, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	recorder := metrics.NewRecorder(registry)

	service, err := gasstation.NewService(treasury, quoter, cfg.X402Network, logger, recorder)
	if err != nil {
		return err
	}

	facilitator := facilitatorclient.NewFacilitatorClient(
		facilitatorclient.NewFacilitatorConfig(cfg.FacilitatorURL, cfg.FacilitatorAuthToken))
	gate := x402.NewGate(facilitator, logger, recorder)

	router := newRouter(logger, gate, service, quoter, registry)

	// Treasury refill sweep, outside the request path.
	station := gasstation.NewStation(treasury, gasstation.NewQueueBridger(logger), logger)
	go station.Run(ctx, cfg.RefillInterval)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.Int("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	return server.Shutdown(shutdownCtx)
}

func newRouter(logger *zap.Logger, gate *x402.Gate, service *gasstation.Service, quoter *gasstation.Quoter, registry *prometheus.Registry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware())

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	router.GET("/quote", func(c *gin.Context) {
		quote, err := quoter.Quote(c.Request.Context(), gasstation.QuoteRequest{
			Network:  c.Query("network"),
			AmountIn: c.Query("amountIn"),
			TokenIn:  c.Query("tokenIn"),
			TokenOut: c.Query("tokenOut"),
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, quote)
	})

	router.GET("/discovery/resources", discoveryHandler(service))

	router.POST("/pump", ginx402.PaymentGate(gate, x402.GateConfig{
		Requirements: service.PaymentRequirements,
		Hooks:        service.Hooks(),
	}), func(c *gin.Context) {
		// The after-settle hook writes the response; reaching the route
		// handler means it chose to pass through.
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	})

	return router
}

// discoveryHandler advertises the pump endpoint to x402 discovery crawlers
// with a representative requirement set.
func discoveryHandler(service *gasstation.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		resource := fmt.Sprintf("http://%s/pump", c.Request.Host)
		accepts, err := service.RequirementsFor(&gasstation.PumpRequest{
			Amount:        "1",
			Network:       "base-sepolia",
			TargetAddress: "0x0000000000000000000000000000000000000000",
		}, resource)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		item := types.DiscoveryResource{
			Resource:    resource,
			Type:        "http",
			X402Version: types.ProtocolVersion,
			Accepts:     accepts,
			LastUpdated: time.Now().UTC().Format(time.RFC3339),
			Metadata: &types.DiscoveryMetadata{
				Name:        "Gas Station",
				Description: "One-click gas refills across chains, paid in USDC",
				Category:    "infrastructure",
				Tags:        []string{"gas", "bridge", "usdc"},
				Provider:    "pitstop",
			},
		}
		c.JSON(http.StatusOK, types.DiscoveryListResponse{
			X402Version: types.ProtocolVersion,
			Items:       []types.DiscoveryResource{item},
			Pagination:  types.DiscoveryPagination{Limit: 10, Offset: 0, Total: 1},
		})
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, X-PAYMENT")
		c.Header("Access-Control-Expose-Headers", "X-PAYMENT-RESPONSE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
