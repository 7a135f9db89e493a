// Package gasstation implements the paid operation behind the payment gate:
// swap quoting, treasury transfers, pump execution and the treasury refill
// sweep.
package gasstation

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// ContractCaller is the read-only RPC surface the quoter needs. Satisfied by
// *ethclient.Client.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// QuoteRequest asks for a conversion rate between ETH and USDC. AmountIn is
// human-readable ("1.5", not wei).
type QuoteRequest struct {
	Network  string `json:"network"`
	AmountIn string `json:"amountIn"`
	TokenIn  string `json:"tokenIn"`
	TokenOut string `json:"tokenOut"`
}

// Quote is the best available conversion across the probed pools.
type Quote struct {
	AmountIn    string `json:"amountIn"`
	AmountOut   string `json:"amountOut"`
	TokenIn     string `json:"tokenIn"`
	TokenOut    string `json:"tokenOut"`
	Rate        string `json:"rate"`
	Fee         int64  `json:"fee"`
	TickSpacing int64  `json:"tickSpacing"`
}

const quoterABIJSON = `[{"type":"function","name":"quoteExactInputSingle","stateMutability":"nonpayable","inputs":[{"name":"params","type":"tuple","components":[{"name":"poolKey","type":"tuple","components":[{"name":"currency0","type":"address"},{"name":"currency1","type":"address"},{"name":"fee","type":"uint24"},{"name":"tickSpacing","type":"int24"},{"name":"hooks","type":"address"}]},{"name":"zeroForOne","type":"bool"},{"name":"exactAmount","type":"uint128"},{"name":"hookData","type":"bytes"}]}],"outputs":[{"name":"amountOut","type":"uint256"},{"name":"gasEstimate","type":"uint256"}]}]`

type poolConfig struct {
	Fee         int64
	TickSpacing int64
}

// Standard Uniswap V4 fee tiers, cheapest first.
var poolConfigs = []poolConfig{
	{Fee: 100, TickSpacing: 1},
	{Fee: 500, TickSpacing: 10},
	{Fee: 3000, TickSpacing: 60},
	{Fee: 10000, TickSpacing: 200},
}

// uniswapContext holds the V4 quoter deployment for networks that have one.
type uniswapContext struct {
	Quoter common.Address
	USDC   common.Address
}

var uniswapContexts = map[string]uniswapContext{
	"sepolia": {
		Quoter: common.HexToAddress("0x61b3f2011a92d183c7dbadbda940a7555ccf9227"),
		USDC:   common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"),
	},
	"base-sepolia": {
		Quoter: common.HexToAddress("0x4a6513c898fe1b2d0e78d3b0e0a4a151589b1cba"),
		USDC:   common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"),
	},
}

// Mock rates used when no pool can answer. Kept until the testnet pools carry
// real liquidity.
const (
	mockRateETHToUSDC = 3333.33
	mockRateUSDCToETH = 0.0003
)

const (
	ethDecimals  = 18
	usdcDecimals = 6
)

type v4PoolKey struct {
	Currency0   common.Address
	Currency1   common.Address
	Fee         *big.Int
	TickSpacing *big.Int
	Hooks       common.Address
}

type v4QuoteParams struct {
	PoolKey     v4PoolKey
	ZeroForOne  bool
	ExactAmount *big.Int
	HookData    []byte
}

// Quoter probes Uniswap V4 pools for ETH/USDC conversion rates. Networks
// without a quoter deployment, and networks where no pool answers, fall back
// to a fixed mock rate.
type Quoter struct {
	callers map[string]ContractCaller
	logger  *zap.Logger
	abi     abi.ABI
}

// NewQuoter creates a quoter over the given per-network RPC callers. Networks
// absent from callers always get the mock rate.
func NewQuoter(callers map[string]ContractCaller, logger *zap.Logger) (*Quoter, error) {
	parsed, err := abi.JSON(strings.NewReader(quoterABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse quoter abi: %w", err)
	}
	return &Quoter{callers: callers, logger: logger, abi: parsed}, nil
}

// Quote returns the best conversion across the standard fee tiers. All pool
// probes run concurrently and are joined before the best is selected.
func (q *Quoter) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if req.TokenIn == req.TokenOut {
		return nil, fmt.Errorf("tokenIn and tokenOut must be different")
	}
	if !isQuoteToken(req.TokenIn) || !isQuoteToken(req.TokenOut) {
		return nil, fmt.Errorf("only ETH and USDC tokens are supported")
	}

	uniswap, ok := uniswapContexts[req.Network]
	caller := q.callers[req.Network]
	if !ok || caller == nil {
		return mockQuote(req.TokenIn, req.TokenOut, req.AmountIn)
	}

	inDecimals, outDecimals := ethDecimals, usdcDecimals
	if req.TokenIn == "USDC" {
		inDecimals, outDecimals = usdcDecimals, ethDecimals
	}
	amountIn, err := parseUnits(req.AmountIn, inDecimals)
	if err != nil {
		return nil, err
	}

	// Currency0 is always ETH (the zero address sorts first); zeroForOne
	// therefore means ETH in, USDC out.
	zeroForOne := req.TokenIn == "ETH"

	type poolResult struct {
		amountOut *big.Int
		pool      poolConfig
	}
	results := make([]*poolResult, len(poolConfigs))

	var wg sync.WaitGroup
	for i, pool := range poolConfigs {
		wg.Add(1)
		go func(i int, pool poolConfig) {
			defer wg.Done()
			amountOut, err := q.probePool(ctx, caller, uniswap, pool, zeroForOne, amountIn)
			if err != nil {
				// Pool missing or illiquid at this tier, skip it.
				q.logger.Debug("pool probe failed",
					zap.String("network", req.Network),
					zap.Int64("fee", pool.Fee),
					zap.Error(err))
				return
			}
			results[i] = &poolResult{amountOut: amountOut, pool: pool}
		}(i, pool)
	}
	wg.Wait()

	var best *poolResult
	for _, result := range results {
		if result == nil {
			continue
		}
		if best == nil || result.amountOut.Cmp(best.amountOut) > 0 {
			best = result
		}
	}
	if best == nil {
		return mockQuote(req.TokenIn, req.TokenOut, req.AmountIn)
	}

	amountOut := formatUnits(best.amountOut, outDecimals)
	q.logger.Info("best pool quote",
		zap.String("network", req.Network),
		zap.Int64("fee", best.pool.Fee),
		zap.String("amountOut", amountOut))

	return &Quote{
		AmountIn:    req.AmountIn,
		AmountOut:   amountOut,
		TokenIn:     req.TokenIn,
		TokenOut:    req.TokenOut,
		Rate:        quoteRate(req.AmountIn, amountOut),
		Fee:         best.pool.Fee,
		TickSpacing: best.pool.TickSpacing,
	}, nil
}

func (q *Quoter) probePool(ctx context.Context, caller ContractCaller, uniswap uniswapContext, pool poolConfig, zeroForOne bool, amountIn *big.Int) (*big.Int, error) {
	data, err := q.abi.Pack("quoteExactInputSingle", v4QuoteParams{
		PoolKey: v4PoolKey{
			Currency0:   common.Address{},
			Currency1:   uniswap.USDC,
			Fee:         big.NewInt(pool.Fee),
			TickSpacing: big.NewInt(pool.TickSpacing),
			Hooks:       common.Address{},
		},
		ZeroForOne:  zeroForOne,
		ExactAmount: amountIn,
		HookData:    []byte{0},
	})
	if err != nil {
		return nil, fmt.Errorf("pack quote call: %w", err)
	}

	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &uniswap.Quoter, Data: data}, nil)
	if err != nil {
		return nil, err
	}

	unpacked, err := q.abi.Unpack("quoteExactInputSingle", out)
	if err != nil {
		return nil, fmt.Errorf("unpack quote result: %w", err)
	}
	amountOut, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected quote result type %T", unpacked[0])
	}
	return amountOut, nil
}

func mockQuote(tokenIn, tokenOut, amountIn string) (*Quote, error) {
	rate := mockRateUSDCToETH
	if tokenIn == "ETH" {
		rate = mockRateETHToUSDC
	}

	in, err := strconv.ParseFloat(amountIn, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid amountIn: %q", amountIn)
	}

	return &Quote{
		AmountIn:    amountIn,
		AmountOut:   strconv.FormatFloat(in*rate, 'f', -1, 64),
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		Rate:        strconv.FormatFloat(rate, 'f', -1, 64),
		Fee:         500,
		TickSpacing: 10,
	}, nil
}

func quoteRate(amountIn, amountOut string) string {
	in, errIn := strconv.ParseFloat(amountIn, 64)
	out, errOut := strconv.ParseFloat(amountOut, 64)
	if errIn != nil || errOut != nil || in == 0 {
		return "0"
	}
	return strconv.FormatFloat(out/in, 'f', -1, 64)
}

func isQuoteToken(token string) bool {
	return token == "ETH" || token == "USDC"
}
