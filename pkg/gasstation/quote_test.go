package gasstation

import (
	"context"
	"errors"
	"math/big"
	"strconv"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// poolCaller fakes the V4 quoter contract: amountOut is a function of the fee
// tier extracted from the calldata.
type poolCaller struct {
	outputs abi.Arguments
	quote   func(fee int64) (*big.Int, error)
}

func newPoolCaller(t *testing.T, quote func(fee int64) (*big.Int, error)) *poolCaller {
	t.Helper()

	parsed, err := abi.JSON(strings.NewReader(quoterABIJSON))
	require.NoError(t, err)
	return &poolCaller{outputs: parsed.Methods["quoteExactInputSingle"].Outputs, quote: quote}
}

func (c *poolCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	// Calldata layout: selector, tuple offset, currency0, currency1, fee.
	fee := new(big.Int).SetBytes(msg.Data[100:132]).Int64()

	amountOut, err := c.quote(fee)
	if err != nil {
		return nil, err
	}
	return c.outputs.Pack(amountOut, big.NewInt(0))
}

func newTestQuoter(t *testing.T, callers map[string]ContractCaller) *Quoter {
	t.Helper()

	quoter, err := NewQuoter(callers, zap.NewNop())
	require.NoError(t, err)
	return quoter
}

func TestQuoteMockForNetworkWithoutQuoter(t *testing.T) {
	t.Parallel()

	quoter := newTestQuoter(t, nil)

	quote, err := quoter.Quote(context.Background(), QuoteRequest{
		Network: "polygon-amoy", AmountIn: "5", TokenIn: "USDC", TokenOut: "ETH",
	})
	require.NoError(t, err)

	assert.Equal(t, "0.0003", quote.Rate)
	assert.Equal(t, int64(500), quote.Fee)
	assert.Equal(t, int64(10), quote.TickSpacing)

	out, err := strconv.ParseFloat(quote.AmountOut, 64)
	require.NoError(t, err)
	assert.InDelta(t, 0.0015, out, 1e-12)
}

func TestQuoteMockRateETHToUSDC(t *testing.T) {
	t.Parallel()

	quoter := newTestQuoter(t, nil)

	quote, err := quoter.Quote(context.Background(), QuoteRequest{
		Network: "polygon-amoy", AmountIn: "1", TokenIn: "ETH", TokenOut: "USDC",
	})
	require.NoError(t, err)
	assert.Equal(t, "3333.33", quote.AmountOut)
	assert.Equal(t, "3333.33", quote.Rate)
}

func TestQuoteMockWhenNoPoolAnswers(t *testing.T) {
	t.Parallel()

	caller := newPoolCaller(t, func(fee int64) (*big.Int, error) {
		return nil, errors.New("execution reverted")
	})
	quoter := newTestQuoter(t, map[string]ContractCaller{"sepolia": caller})

	quote, err := quoter.Quote(context.Background(), QuoteRequest{
		Network: "sepolia", AmountIn: "5", TokenIn: "USDC", TokenOut: "ETH",
	})
	require.NoError(t, err)
	assert.Equal(t, "0.0003", quote.Rate)
	assert.Equal(t, int64(500), quote.Fee)
}

func TestQuotePicksBestPool(t *testing.T) {
	t.Parallel()

	// The 0.3% pool quotes double the others and the 1% pool has no
	// liquidity at all.
	caller := newPoolCaller(t, func(fee int64) (*big.Int, error) {
		switch fee {
		case 3000:
			return big.NewInt(2_000_000_000_000_000), nil
		case 10000:
			return nil, errors.New("execution reverted")
		default:
			return big.NewInt(1_000_000_000_000_000), nil
		}
	})
	quoter := newTestQuoter(t, map[string]ContractCaller{"base-sepolia": caller})

	quote, err := quoter.Quote(context.Background(), QuoteRequest{
		Network: "base-sepolia", AmountIn: "5", TokenIn: "USDC", TokenOut: "ETH",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3000), quote.Fee)
	assert.Equal(t, int64(60), quote.TickSpacing)
	assert.Equal(t, "0.002", quote.AmountOut)
	assert.Equal(t, "0.0004", quote.Rate)
}

func TestQuoteRejectsBadTokenPairs(t *testing.T) {
	t.Parallel()

	quoter := newTestQuoter(t, nil)

	_, err := quoter.Quote(context.Background(), QuoteRequest{
		Network: "sepolia", AmountIn: "1", TokenIn: "ETH", TokenOut: "ETH",
	})
	assert.ErrorContains(t, err, "must be different")

	_, err = quoter.Quote(context.Background(), QuoteRequest{
		Network: "sepolia", AmountIn: "1", TokenIn: "DAI", TokenOut: "ETH",
	})
	assert.ErrorContains(t, err, "only ETH and USDC")
}

func TestParseUnits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		amount   string
		decimals int
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"0.0015", 18, "1500000000000000"},
		{"5", 6, "5000000"},
		{"0.000001", 6, "1"},
		{".5", 6, "500000"},
	}
	for _, tt := range tests {
		got, err := parseUnits(tt.amount, tt.decimals)
		require.NoError(t, err, tt.amount)
		assert.Equal(t, tt.want, got.String(), tt.amount)
	}

	for _, bad := range []string{"", "1.2.3", "-5", "1,5", "0.1234567"} {
		_, err := parseUnits(bad, 6)
		assert.Error(t, err, bad)
	}
}

func TestFormatUnits(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0.0015", formatUnits(big.NewInt(1_500_000_000_000_000), 18))
	assert.Equal(t, "5", formatUnits(big.NewInt(5_000_000), 6))
	assert.Equal(t, "0.000001", formatUnits(big.NewInt(1), 6))
	assert.Equal(t, "1.5", formatUnits(big.NewInt(1_500_000), 6))
}
