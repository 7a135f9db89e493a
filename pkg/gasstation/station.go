package gasstation

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Refill policy. The treasury holds its USDC reserve on Polygon Amoy and
// bridges to destination chains whose ETH balance runs low.
var (
	// ethRefillThreshold is 0.01 ETH in wei.
	ethRefillThreshold = big.NewInt(10_000_000_000_000_000)

	// minReserveUSDC is 50 USDC in atomic units. Below this the sweep stops
	// bridging rather than drain the reserve.
	minReserveUSDC = big.NewInt(50_000_000)
)

// bridgeRefillAmount is the USDC amount bridged per refill.
const bridgeRefillAmount = "20"

const reserveNetwork = "polygon-amoy"

// BalanceReader reports the treasury's balances per network.
type BalanceReader interface {
	ETHBalance(ctx context.Context, network string) (*big.Int, error)
	USDCBalance(ctx context.Context, network string) (*big.Int, error)
}

// Bridger moves USDC between chains.
type Bridger interface {
	Bridge(ctx context.Context, from, to, amount string) error
}

// BridgeRequest is one recorded bridge intent.
type BridgeRequest struct {
	From        string
	To          string
	Amount      string
	RequestedAt time.Time
}

// QueueBridger records bridge requests for out-of-band execution. CCTP
// transfers are executed by an operator from the pending queue.
type QueueBridger struct {
	mu      sync.Mutex
	logger  *zap.Logger
	pending []BridgeRequest
}

// NewQueueBridger creates an empty bridge queue.
func NewQueueBridger(logger *zap.Logger) *QueueBridger {
	return &QueueBridger{logger: logger}
}

// Bridge enqueues a transfer request.
func (b *QueueBridger) Bridge(ctx context.Context, from, to, amount string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, BridgeRequest{
		From:        from,
		To:          to,
		Amount:      amount,
		RequestedAt: time.Now(),
	})
	b.logger.Info("bridge request queued",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("amount", amount))
	return nil
}

// Pending returns a copy of the queued requests.
func (b *QueueBridger) Pending() []BridgeRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]BridgeRequest, len(b.pending))
	copy(out, b.pending)
	return out
}

// Station runs the periodic treasury refill sweep. It never runs inside the
// request path.
type Station struct {
	balances     BalanceReader
	bridger      Bridger
	logger       *zap.Logger
	destinations []string
}

// NewStation creates a refill station sweeping the standard destination
// chains.
func NewStation(balances BalanceReader, bridger Bridger, logger *zap.Logger) *Station {
	return &Station{
		balances:     balances,
		bridger:      bridger,
		logger:       logger,
		destinations: []string{"sepolia", "base-sepolia"},
	}
}

// Run performs a sweep immediately and then on every tick until ctx is
// cancelled.
func (s *Station) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.CheckOnce(ctx); err != nil {
			s.logger.Error("refill sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// CheckOnce runs one refill sweep: verify the USDC reserve, check destination
// ETH balances in parallel, and bridge to every chain below the threshold.
func (s *Station) CheckOnce(ctx context.Context) error {
	reserve, err := s.balances.USDCBalance(ctx, reserveNetwork)
	if err != nil {
		return fmt.Errorf("check usdc reserve: %w", err)
	}
	if reserve.Cmp(minReserveUSDC) < 0 {
		s.logger.Warn("usdc reserve too low, skipping refill",
			zap.String("reserve", reserve.String()),
			zap.String("minimum", minReserveUSDC.String()))
		return nil
	}

	type balanceCheck struct {
		network     string
		balance     *big.Int
		needsRefill bool
	}
	checks := make([]balanceCheck, len(s.destinations))

	var wg sync.WaitGroup
	for i, network := range s.destinations {
		wg.Add(1)
		go func(i int, network string) {
			defer wg.Done()
			balance, err := s.balances.ETHBalance(ctx, network)
			if err != nil {
				// An unreadable balance never triggers a refill.
				s.logger.Warn("failed to check eth balance",
					zap.String("network", network), zap.Error(err))
				checks[i] = balanceCheck{network: network}
				return
			}
			checks[i] = balanceCheck{
				network:     network,
				balance:     balance,
				needsRefill: balance.Cmp(ethRefillThreshold) < 0,
			}
		}(i, network)
	}
	wg.Wait()

	for _, check := range checks {
		if !check.needsRefill {
			continue
		}
		s.logger.Info("bridging for refill",
			zap.String("network", check.network),
			zap.String("balance", check.balance.String()),
			zap.String("amount", bridgeRefillAmount))

		if err := s.bridger.Bridge(ctx, reserveNetwork, check.network, bridgeRefillAmount); err != nil {
			// One failed bridge must not block the other chains.
			s.logger.Error("bridge failed",
				zap.String("network", check.network), zap.Error(err))
		}
	}
	return nil
}
