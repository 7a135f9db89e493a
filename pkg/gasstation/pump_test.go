package gasstation

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pitstop/gas-station/pkg/types"
	"github.com/pitstop/gas-station/pkg/x402"
)

const (
	testTreasuryAddr = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
	testTargetAddr   = "0x857b06519E91e3A54538791bDbb0E22373e36b66"
)

type stubQuoter struct {
	quote   *Quote
	err     error
	lastReq QuoteRequest
}

func (s *stubQuoter) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	s.lastReq = req
	return s.quote, s.err
}

type stubSender struct {
	receipt     *TransferReceipt
	err         error
	calls       int
	lastNetwork string
	lastTo      common.Address
	lastAmount  *big.Int
}

func (s *stubSender) SendETH(ctx context.Context, network string, to common.Address, amountWei *big.Int) (*TransferReceipt, error) {
	s.calls++
	s.lastNetwork = network
	s.lastTo = to
	s.lastAmount = amountWei
	return s.receipt, s.err
}

func (s *stubSender) Address() common.Address {
	return common.HexToAddress(testTreasuryAddr)
}

func usdcToEthQuote(amountIn, amountOut string) *Quote {
	return &Quote{
		AmountIn: amountIn, AmountOut: amountOut,
		TokenIn: "USDC", TokenOut: "ETH",
		Rate: "0.0003", Fee: 500, TickSpacing: 10,
	}
}

func newTestService(t *testing.T, sender *stubSender, quoter *stubQuoter) *Service {
	t.Helper()

	service, err := NewService(sender, quoter, "base-sepolia", zap.NewNop(), nil)
	require.NoError(t, err)
	return service
}

func pumpBody(t *testing.T, body string) *http.Request {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "http://example.com/pump", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestExecuteBuildsOperationRecord(t *testing.T) {
	t.Parallel()

	sender := &stubSender{receipt: &TransferReceipt{Hash: "0xtransfer", Status: "success"}}
	quoter := &stubQuoter{quote: usdcToEthQuote("5", "0.0015")}
	service := newTestService(t, sender, quoter)

	operation, err := service.Execute(context.Background(), &PumpRequest{
		Amount: "5", Network: "sepolia", TargetAddress: testTargetAddr,
	})
	require.NoError(t, err)

	assert.Equal(t, QuoteRequest{Network: "sepolia", AmountIn: "5", TokenIn: "USDC", TokenOut: "ETH"}, quoter.lastReq)
	assert.Equal(t, "sepolia", sender.lastNetwork)
	assert.Equal(t, common.HexToAddress(testTargetAddr), sender.lastTo)
	assert.Equal(t, "1500000000000000", sender.lastAmount.String())

	assert.Equal(t, "base-sepolia", operation.SourceNetwork)
	assert.Equal(t, "5", operation.USDCAmount)
	assert.Equal(t, "0.0015", operation.ETHAmount)
	assert.Equal(t, "sepolia", operation.TargetNetwork)
	assert.Equal(t, TxRecord{Network: "base-sepolia", Hash: "0xMOCKED_SWAP_TX", Status: "mocked"}, operation.Transactions.Swap)
	assert.Equal(t, TxRecord{Network: "base-sepolia", Hash: "0xMOCKED_BRIDGE_TX", Status: "mocked"}, operation.Transactions.Bridge)
	assert.Equal(t, TxRecord{Network: "sepolia", Hash: "0xtransfer", Status: "success"}, operation.Transactions.Transfer)
}

func TestExecuteSlippageGuard(t *testing.T) {
	t.Parallel()

	sender := &stubSender{receipt: &TransferReceipt{Hash: "0x1", Status: "success"}}
	quoter := &stubQuoter{quote: usdcToEthQuote("5", "0.0015")}
	service := newTestService(t, sender, quoter)

	// Below quote minus 1% tolerance.
	_, err := service.Execute(context.Background(), &PumpRequest{
		Amount: "5", Network: "sepolia", TargetAddress: testTargetAddr, AmountETH: "0.001",
	})
	assert.ErrorContains(t, err, "below the minimum quote output")
	assert.Zero(t, sender.calls, "no transfer may happen when the slippage guard trips")

	// Within tolerance: 0.00149 >= 0.0015 * 0.99.
	operation, err := service.Execute(context.Background(), &PumpRequest{
		Amount: "5", Network: "sepolia", TargetAddress: testTargetAddr, AmountETH: "0.00149",
	})
	require.NoError(t, err)
	assert.Equal(t, "0.00149", operation.ETHAmount)
	assert.Equal(t, "1490000000000000", sender.lastAmount.String())
}

func TestParsePumpRequestValidation(t *testing.T) {
	t.Parallel()

	service := newTestService(t, &stubSender{}, &stubQuoter{})

	tests := []struct {
		name string
		body string
	}{
		{"missing amount", `{"network":"sepolia","targetAddress":"` + testTargetAddr + `"}`},
		{"missing target", `{"amount":"5","network":"sepolia"}`},
		{"bad address", `{"amount":"5","network":"sepolia","targetAddress":"not-an-address"}`},
		{"bad amount", `{"amount":"five","network":"sepolia","targetAddress":"` + testTargetAddr + `"}`},
		{"unknown network", `{"amount":"5","network":"mainnet","targetAddress":"` + testTargetAddr + `"}`},
		{"not json", `pump it`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.ParsePumpRequest(pumpBody(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestParsePumpRequestRestoresBody(t *testing.T) {
	t.Parallel()

	service := newTestService(t, &stubSender{}, &stubQuoter{})
	req := pumpBody(t, `{"amount":"5","network":"sepolia","targetAddress":"`+testTargetAddr+`"}`)

	first, err := service.ParsePumpRequest(req)
	require.NoError(t, err)
	second, err := service.ParsePumpRequest(req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPaymentRequirementsFromBody(t *testing.T) {
	t.Parallel()

	service := newTestService(t, &stubSender{}, &stubQuoter{})
	req := pumpBody(t, `{"amount":"5","network":"sepolia","targetAddress":"`+testTargetAddr+`"}`)

	requirements, err := service.PaymentRequirements(req)
	require.NoError(t, err)
	require.Len(t, requirements, 1)

	requirement := requirements[0]
	assert.Equal(t, "exact", requirement.Scheme)
	assert.Equal(t, "base-sepolia", requirement.Network)
	assert.Equal(t, "5000000", requirement.MaxAmountRequired)
	assert.Equal(t, testTreasuryAddr, requirement.PayTo)
	assert.Equal(t, "http://example.com/pump", requirement.Resource)
	assert.Equal(t, "Bridge 5 USDC to "+testTargetAddr+" on sepolia", requirement.Description)
}

type scriptedFacilitator struct {
	verifyResp *types.VerifyResponse
	settleResp *types.SettleResponse
}

func (f *scriptedFacilitator) Verify(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.VerifyResponse, error) {
	return f.verifyResp, nil
}

func (f *scriptedFacilitator) Settle(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.SettleResponse, error) {
	return f.settleResp, nil
}

// End-to-end through the payment gate: a paid pump request produces the merged
// response body carrying both the operation legs and the settlement receipt.
func TestPumpThroughPaymentGate(t *testing.T) {
	t.Parallel()

	sender := &stubSender{receipt: &TransferReceipt{Hash: "0xtransfer", Status: "success"}}
	quoter := &stubQuoter{quote: usdcToEthQuote("5", "0.0015")}
	service := newTestService(t, sender, quoter)

	payer := testTargetAddr
	facilitator := &scriptedFacilitator{
		verifyResp: &types.VerifyResponse{IsValid: true, Payer: &payer},
		settleResp: &types.SettleResponse{Success: true, Transaction: "0xdeadbeef", Network: "base-sepolia", Payer: &payer},
	}
	gate := x402.NewGate(facilitator, zap.NewNop(), nil)

	header, err := types.EncodePaymentPayloadToBase64(&types.PaymentPayload{
		X402Version: types.ProtocolVersion,
		Scheme:      types.SchemeExact,
		Network:     "base-sepolia",
		Payload: &types.ExactEvmPayload{
			Signature: "0xsignature",
			Authorization: &types.ExactEvmPayloadAuthorization{
				From: testTargetAddr, To: testTreasuryAddr, Value: "5000000",
				ValidAfter: "1745323800", ValidBefore: "1745323985", Nonce: "0xnonce",
			},
		},
	})
	require.NoError(t, err)

	req := pumpBody(t, `{"amount":"5","network":"sepolia","targetAddress":"`+testTargetAddr+`"}`)
	req.Header.Set(x402.PaymentHeader, header)

	result := gate.Process(context.Background(), req, x402.GateConfig{
		Requirements: service.PaymentRequirements,
		Hooks:        service.Hooks(),
	})

	assert.Equal(t, http.StatusOK, result.Status)
	require.NotEmpty(t, result.SettlementHeader)

	body, ok := result.Body.(PumpResponse)
	require.True(t, ok)
	assert.Equal(t, "Bridge operation completed", body.Message)
	assert.Equal(t, "5", body.Amount)
	assert.Equal(t, testTargetAddr, body.TargetAddress)
	assert.Equal(t, "sepolia", body.TargetNetwork)
	assert.Equal(t, "0xdeadbeef", body.SettlementTx)
	assert.Equal(t, payer, body.Payer)
	assert.Equal(t, "success", body.Status)
	require.NotNil(t, body.Transactions)
	assert.Equal(t, "0xtransfer", body.Transactions.Transfer.Hash)
	assert.Equal(t, 1, sender.calls)
}
