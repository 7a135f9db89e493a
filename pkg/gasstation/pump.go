package gasstation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/pitstop/gas-station/pkg/metrics"
	"github.com/pitstop/gas-station/pkg/networks"
	"github.com/pitstop/gas-station/pkg/types"
	"github.com/pitstop/gas-station/pkg/x402"
)

// slippageTolerance bounds how far below the quoted output a caller-requested
// ETH amount may fall.
const slippageTolerance = 0.01

// Placeholder transactions for the swap and bridge legs, which are simulated
// until real pool liquidity and CCTP execution land.
const (
	mockedSwapTxHash   = "0xMOCKED_SWAP_TX"
	mockedBridgeTxHash = "0xMOCKED_BRIDGE_TX"
)

const operationStoreKey = "gasstation.pump"

const pumpRequestSchemaJSON = `{
	"type": "object",
	"required": ["amount", "network", "targetAddress"],
	"properties": {
		"amount": {"type": "string", "pattern": "^[0-9]+(\\.[0-9]+)?$"},
		"network": {"type": "string", "minLength": 1},
		"targetAddress": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
		"amountEth": {"type": "string", "pattern": "^[0-9]+(\\.[0-9]+)?$"}
	},
	"additionalProperties": false
}`

// PumpRequest asks the station to deliver gas to a wallet. Amount is the USDC
// amount the caller pays; AmountETH optionally pins the expected ETH output
// and is checked against the live quote.
type PumpRequest struct {
	Amount        string `json:"amount"`
	Network       string `json:"network"`
	TargetAddress string `json:"targetAddress"`
	AmountETH     string `json:"amountEth,omitempty"`
}

// TxRecord is one leg of a pump operation.
type TxRecord struct {
	Network string `json:"network"`
	Hash    string `json:"hash"`
	Status  string `json:"status"`
}

// PumpTransactions groups the three legs of a pump: the USDC swap, the bridge
// to the target chain, and the final ETH transfer.
type PumpTransactions struct {
	Swap     TxRecord `json:"swap"`
	Bridge   TxRecord `json:"bridge"`
	Transfer TxRecord `json:"transfer"`
}

// PumpOperation is the full record of an executed pump.
type PumpOperation struct {
	SourceNetwork string           `json:"sourceNetwork"`
	USDCAmount    string           `json:"usdcAmount"`
	ETHAmount     string           `json:"ethAmount"`
	TargetAddress string           `json:"targetAddress"`
	TargetNetwork string           `json:"targetNetwork"`
	Transactions  PumpTransactions `json:"transactions"`
}

// PumpResponse is the body returned to the payer after settlement.
type PumpResponse struct {
	Message       string            `json:"message"`
	Amount        string            `json:"amount"`
	TargetAddress string            `json:"targetAddress"`
	TargetNetwork string            `json:"targetNetwork"`
	SettlementTx  string            `json:"settlementTx"`
	Payer         string            `json:"payer"`
	Status        string            `json:"status"`
	Transactions  *PumpTransactions `json:"transactions,omitempty"`
}

// QuoteProvider supplies USDC/ETH conversion quotes.
type QuoteProvider interface {
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
}

// GasSender delivers ETH from the treasury and exposes the payee address.
type GasSender interface {
	SendETH(ctx context.Context, network string, to common.Address, amountWei *big.Int) (*TransferReceipt, error)
	Address() common.Address
}

// Service executes pump operations and supplies the payment gate with
// requirements and hooks for the /pump route.
type Service struct {
	treasury    GasSender
	quoter      QuoteProvider
	x402Network string
	logger      *zap.Logger
	metrics     *metrics.Recorder
	schema      *gojsonschema.Schema
}

// NewService creates the pump service. x402Network is the network payments are
// collected on, independent of where gas is delivered.
func NewService(treasury GasSender, quoter QuoteProvider, x402Network string, logger *zap.Logger, recorder *metrics.Recorder) (*Service, error) {
	if !networks.IsSupported(x402Network) {
		return nil, fmt.Errorf("unsupported x402 network: %q", x402Network)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(pumpRequestSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile pump request schema: %w", err)
	}

	return &Service{
		treasury:    treasury,
		quoter:      quoter,
		x402Network: x402Network,
		logger:      logger,
		metrics:     recorder,
		schema:      schema,
	}, nil
}

// ParsePumpRequest validates and decodes a pump request body, leaving the body
// readable for later consumers.
func (s *Service) ParsePumpRequest(r *http.Request) (*PumpRequest, error) {
	body, err := x402.RequestBody(r)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return s.ValidatePumpRequest(body)
}

// ValidatePumpRequest validates and decodes a raw pump request document.
func (s *Service) ValidatePumpRequest(body []byte) (*PumpRequest, error) {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, fmt.Errorf("invalid pump request: %w", err)
	}
	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			descriptions = append(descriptions, resultError.String())
		}
		return nil, fmt.Errorf("invalid pump request: %s", strings.Join(descriptions, "; "))
	}

	var req PumpRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("decode pump request: %w", err)
	}
	if !networks.IsSupported(req.Network) {
		return nil, fmt.Errorf("unsupported network: %q", req.Network)
	}
	return &req, nil
}

// PaymentRequirements builds the accepted requirement set for a pump request:
// the requested USDC amount, payable to the treasury on the x402 network.
func (s *Service) PaymentRequirements(r *http.Request) ([]*types.PaymentRequirements, error) {
	req, err := s.ParsePumpRequest(r)
	if err != nil {
		return nil, err
	}
	return s.RequirementsFor(req, requestURL(r))
}

// RequirementsFor builds the requirement set for an already-parsed pump
// request against an explicit resource URL.
func (s *Service) RequirementsFor(req *PumpRequest, resource string) ([]*types.PaymentRequirements, error) {
	requirement, err := x402.BuildRequirement(
		"$"+req.Amount,
		s.x402Network,
		resource,
		s.treasury.Address().Hex(),
		fmt.Sprintf("Bridge %s USDC to %s on %s", req.Amount, req.TargetAddress, req.Network),
	)
	if err != nil {
		return nil, err
	}
	return []*types.PaymentRequirements{requirement}, nil
}

// Execute performs the pump: quote the USDC for ETH, guard against slippage,
// and deliver the ETH from the treasury. The swap and bridge legs are
// simulated; the transfer is real.
func (s *Service) Execute(ctx context.Context, req *PumpRequest) (*PumpOperation, error) {
	quote, err := s.quoter.Quote(ctx, QuoteRequest{
		Network:  req.Network,
		AmountIn: req.Amount,
		TokenIn:  "USDC",
		TokenOut: "ETH",
	})
	if err != nil {
		return nil, fmt.Errorf("fetch swap quote: %w", err)
	}

	ethAmount := quote.AmountOut
	if req.AmountETH != "" {
		requested, err := strconv.ParseFloat(req.AmountETH, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid amountEth: %q", req.AmountETH)
		}
		quoted, err := strconv.ParseFloat(quote.AmountOut, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid quote output: %q", quote.AmountOut)
		}
		if requested < quoted*(1-slippageTolerance) {
			return nil, fmt.Errorf("requested eth amount %s is below the minimum quote output", req.AmountETH)
		}
		ethAmount = req.AmountETH
	}

	amountWei, err := parseUnits(ethAmount, ethDecimals)
	if err != nil {
		return nil, fmt.Errorf("convert eth amount: %w", err)
	}

	s.logger.Info("transferring eth",
		zap.String("amount", ethAmount),
		zap.String("target", req.TargetAddress),
		zap.String("network", req.Network))

	receipt, err := s.treasury.SendETH(ctx, req.Network, common.HexToAddress(req.TargetAddress), amountWei)
	if err != nil {
		s.metrics.PumpOperation(req.Network, "error")
		return nil, fmt.Errorf("transfer eth: %w", err)
	}
	s.metrics.PumpOperation(req.Network, "success")

	return &PumpOperation{
		SourceNetwork: s.x402Network,
		USDCAmount:    req.Amount,
		ETHAmount:     ethAmount,
		TargetAddress: req.TargetAddress,
		TargetNetwork: req.Network,
		Transactions: PumpTransactions{
			Swap:     TxRecord{Network: s.x402Network, Hash: mockedSwapTxHash, Status: "mocked"},
			Bridge:   TxRecord{Network: s.x402Network, Hash: mockedBridgeTxHash, Status: "mocked"},
			Transfer: TxRecord{Network: req.Network, Hash: receipt.Hash, Status: receipt.Status},
		},
	}, nil
}

// Hooks wires the pump into the payment gate: execute after verification,
// respond with the merged operation and settlement record after settlement.
func (s *Service) Hooks() x402.Hooks {
	return x402.Hooks{
		AfterVerify: s.afterVerify,
		AfterSettle: s.afterSettle,
	}
}

func (s *Service) afterVerify(ctx context.Context, r *http.Request, store *x402.Store, payment *types.PaymentPayload, requirement *types.PaymentRequirements) error {
	req, err := s.ParsePumpRequest(r)
	if err != nil {
		return err
	}

	operation, err := s.Execute(ctx, req)
	if err != nil {
		return err
	}
	store.Set(operationStoreKey, operation)
	return nil
}

func (s *Service) afterSettle(ctx context.Context, r *http.Request, store *x402.Store, payment *types.PaymentPayload, requirement *types.PaymentRequirements, settlement x402.Settlement) (x402.SettleAction, error) {
	operation, ok := store.Get(operationStoreKey).(*PumpOperation)
	if !ok {
		return x402.Continue(), errors.New("pump operation missing from request store")
	}

	s.logger.Info("pump settled",
		zap.String("settlementTx", settlement.TransactionHash),
		zap.String("payer", settlement.Payer),
		zap.String("target", operation.TargetAddress))

	return x402.RespondWith(http.StatusOK, PumpResponse{
		Message:       "Bridge operation completed",
		Amount:        operation.USDCAmount,
		TargetAddress: operation.TargetAddress,
		TargetNetwork: operation.TargetNetwork,
		SettlementTx:  settlement.TransactionHash,
		Payer:         settlement.Payer,
		Status:        "success",
		Transactions:  &operation.Transactions,
	}), nil
}

func requestURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
