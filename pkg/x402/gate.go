// Package x402 implements the server side of the x402 micropayment handshake:
// building payment requirements, decoding payment proofs, and the payment gate
// that orders verify, execute and settle around a protected operation.
package x402

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/pitstop/gas-station/pkg/metrics"
	"github.com/pitstop/gas-station/pkg/types"
)

// PaymentHeader is the request header carrying the encoded payment proof.
const PaymentHeader = "X-PAYMENT"

// PaymentResponseHeader is the response header carrying the encoded
// settlement receipt.
const PaymentResponseHeader = "X-PAYMENT-RESPONSE"

// RequirementsFunc produces the accepted requirement set for one request.
// It may read the request body; adapters make the body re-readable first.
type RequirementsFunc func(r *http.Request) ([]*types.PaymentRequirements, error)

// Settlement is the receipt handed to the after-settle hook.
type Settlement struct {
	TransactionHash string
	Payer           string
}

// AfterVerifyFunc runs the protected operation between verify and settle. It
// must not verify or settle payment itself; it reports results through the
// request-scoped store. An error here means the operation failed and the
// payment is never captured.
type AfterVerifyFunc func(ctx context.Context, r *http.Request, store *Store, payment *types.PaymentPayload, requirement *types.PaymentRequirements) error

// AfterSettleFunc runs after a successful settlement and may synthesize the
// final response from the store plus the settlement receipt.
type AfterSettleFunc func(ctx context.Context, r *http.Request, store *Store, payment *types.PaymentPayload, requirement *types.PaymentRequirements, settlement Settlement) (SettleAction, error)

// Hooks configures the optional operation callbacks.
type Hooks struct {
	AfterVerify AfterVerifyFunc
	AfterSettle AfterSettleFunc
}

// SettleAction tells the gate what to do after the after-settle hook ran:
// continue to the route handler, or respond with a synthesized body.
type SettleAction struct {
	respond bool
	status  int
	body    any
}

// Continue passes control onward to the route handler.
func Continue() SettleAction {
	return SettleAction{}
}

// RespondWith short-circuits the chain with the given status and JSON body.
func RespondWith(status int, body any) SettleAction {
	return SettleAction{respond: true, status: status, body: body}
}

// GateConfig configures one protected route.
type GateConfig struct {
	Requirements RequirementsFunc
	Hooks        Hooks
}

// Result is the gate's verdict on one request. Adapters translate it onto
// their framework: write Body with Status when Body is non-nil, otherwise
// pass through to the route handler. SettlementHeader, when set, goes out as
// X-PAYMENT-RESPONSE.
type Result struct {
	Status           int
	Body             any
	SettlementHeader string
	Proceed          bool
	Store            *Store
}

// PaymentRequiredBody is the JSON body of every 402 (and operation-failure
// 500) response.
type PaymentRequiredBody struct {
	Error       string                       `json:"error"`
	Accepts     []*types.PaymentRequirements `json:"accepts"`
	Payer       string                       `json:"payer,omitempty"`
	X402Version int                          `json:"x402Version"`
}

// Gate orders the payment lifecycle around a protected operation. Verification
// happens strictly before the operation executes and settlement strictly
// after, so a client can never trigger the paid side effect without a
// confirmed payment, and a failed operation never captures funds.
type Gate struct {
	facilitator Facilitator
	logger      *zap.Logger
	metrics     *metrics.Recorder
}

// NewGate creates a payment gate. logger must be non-nil; recorder may be nil.
func NewGate(facilitator Facilitator, logger *zap.Logger, recorder *metrics.Recorder) *Gate {
	return &Gate{
		facilitator: facilitator,
		logger:      logger,
		metrics:     recorder,
	}
}

// gateState enumerates the pipeline stages. The processing loop below is a
// deliberate state machine rather than straight-line code: the
// verify-before-execute-before-settle ordering is a financial invariant, and
// the explicit transitions keep a refactor from silently reordering it.
type gateState int

const (
	stateAwaitingPayment gateState = iota
	stateDecoding
	stateVerifying
	stateExecuting
	stateSettling
	stateResponding
)

// Process runs one request through the payment gate. It performs exactly one
// verify call, at most one operation execution, at most one settle call and
// one settlement-header write. No retries; a client retries by resubmitting
// the whole request.
func (g *Gate) Process(ctx context.Context, r *http.Request, cfg GateConfig) Result {
	store := NewStore()

	requirements, err := cfg.Requirements(r)
	if err != nil {
		g.logger.Warn("failed to build payment requirements", zap.Error(err))
		return Result{
			Status: http.StatusInternalServerError,
			Body:   map[string]any{"error": err.Error(), "x402Version": types.ProtocolVersion},
		}
	}
	if len(requirements) == 0 {
		g.logger.Error("route configured with empty requirement set")
		return Result{
			Status: http.StatusInternalServerError,
			Body:   map[string]any{"error": ErrNoRequirements.Error(), "x402Version": types.ProtocolVersion},
		}
	}

	header := r.Header.Get(PaymentHeader)

	var (
		state       = stateAwaitingPayment
		payload     *types.PaymentPayload
		requirement *types.PaymentRequirements
		settle      SettleOutcome
		settleResp  *types.SettleResponse
	)

	for {
		switch state {
		case stateAwaitingPayment:
			if header == "" {
				g.metrics.PaymentRequired()
				return g.reject(requirements, "X-PAYMENT header is required", "")
			}
			state = stateDecoding

		case stateDecoding:
			decoded, err := types.DecodePaymentPayloadFromBase64(header)
			if err != nil {
				g.logger.Info("malformed payment header", zap.Error(err))
				return g.reject(requirements, err.Error(), "")
			}
			payload = decoded
			requirement = g.selectRequirement(requirements, payload)
			state = stateVerifying

		case stateVerifying:
			outcome := verifyPayment(ctx, g.facilitator, payload, requirement)
			switch outcome.Kind {
			case OutcomeOK:
				g.metrics.Verification("ok")
				state = stateExecuting
			case OutcomeRejected:
				g.metrics.Verification("rejected")
				g.logger.Info("payment rejected by facilitator", zap.String("reason", outcome.Reason))
				return g.reject(requirements, outcome.Reason, outcome.Payer)
			case OutcomeTransportError:
				g.metrics.Verification("transport_error")
				g.logger.Warn("facilitator verification unreachable", zap.String("reason", outcome.Reason))
				return g.reject(requirements, outcome.Reason, "")
			}

		case stateExecuting:
			if cfg.Hooks.AfterVerify != nil {
				if err := g.runAfterVerify(ctx, r, store, payload, requirement, cfg.Hooks.AfterVerify); err != nil {
					g.logger.Error("protected operation failed", zap.Error(err))
					return Result{
						Status: http.StatusInternalServerError,
						Body: PaymentRequiredBody{
							Error:       err.Error(),
							Accepts:     requirements,
							X402Version: types.ProtocolVersion,
						},
					}
				}
			}
			state = stateSettling

		case stateSettling:
			settle, settleResp = settlePayment(ctx, g.facilitator, payload, requirement)
			switch settle.Kind {
			case OutcomeOK:
				g.metrics.Settlement("ok")
				state = stateResponding
			case OutcomeRejected:
				g.metrics.Settlement("rejected")
				g.logger.Warn("settlement unsuccessful", zap.String("reason", settle.Reason))
				return g.reject(requirements, settle.Reason, "")
			case OutcomeTransportError:
				g.metrics.Settlement("transport_error")
				g.logger.Error("facilitator settlement unreachable", zap.String("reason", settle.Reason))
				return g.reject(requirements, settle.Reason, "")
			}

		case stateResponding:
			settlementHeader, err := settleResp.EncodeToBase64String()
			if err != nil {
				g.logger.Error("failed to encode settlement receipt", zap.Error(err))
				return Result{
					Status: http.StatusInternalServerError,
					Body:   map[string]any{"error": err.Error(), "x402Version": types.ProtocolVersion},
				}
			}

			payer := settle.Payer
			if payer == "" {
				payer = "unknown"
			}
			settlement := Settlement{TransactionHash: settle.Transaction, Payer: payer}

			if cfg.Hooks.AfterSettle != nil {
				action, err := g.runAfterSettle(ctx, r, store, payload, requirement, settlement, cfg.Hooks.AfterSettle)
				if err != nil {
					// Funds are already captured at this point; the response
					// still carries the receipt header so the client can prove
					// payment.
					g.logger.Error("after-settle hook failed", zap.Error(err),
						zap.String("transaction", settlement.TransactionHash))
					return Result{
						Status:           http.StatusInternalServerError,
						Body:             map[string]any{"error": err.Error(), "x402Version": types.ProtocolVersion},
						SettlementHeader: settlementHeader,
					}
				}
				if action.respond {
					return Result{
						Status:           action.status,
						Body:             action.body,
						SettlementHeader: settlementHeader,
						Store:            store,
					}
				}
			}

			return Result{Proceed: true, SettlementHeader: settlementHeader, Store: store}
		}
	}
}

// selectRequirement picks the offered requirement matching the payload's
// scheme and network. When nothing matches it falls back to the first offered
// requirement; the mismatch is logged so operators can spot wrong-network
// submissions.
func (g *Gate) selectRequirement(requirements []*types.PaymentRequirements, payload *types.PaymentPayload) *types.PaymentRequirements {
	for _, requirement := range requirements {
		if requirement.Scheme == payload.Scheme && requirement.Network == payload.Network {
			return requirement
		}
	}

	g.logger.Warn("no requirement matches payment, falling back to first offered",
		zap.String("scheme", payload.Scheme),
		zap.String("network", payload.Network))
	return requirements[0]
}

func (g *Gate) reject(requirements []*types.PaymentRequirements, reason, payer string) Result {
	return Result{
		Status: http.StatusPaymentRequired,
		Body: PaymentRequiredBody{
			Error:       reason,
			Accepts:     requirements,
			Payer:       payer,
			X402Version: types.ProtocolVersion,
		},
	}
}

// runAfterVerify executes the operation hook with panic containment: nothing
// may escape the gate as an unhandled panic, and a panicking operation must
// not reach settlement.
func (g *Gate) runAfterVerify(ctx context.Context, r *http.Request, store *Store, payload *types.PaymentPayload, requirement *types.PaymentRequirements, hook AfterVerifyFunc) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("operation panicked: %v", rec)
		}
	}()
	return hook(ctx, r, store, payload, requirement)
}

func (g *Gate) runAfterSettle(ctx context.Context, r *http.Request, store *Store, payload *types.PaymentPayload, requirement *types.PaymentRequirements, settlement Settlement, hook AfterSettleFunc) (action SettleAction, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("after-settle hook panicked: %v", rec)
		}
	}()
	return hook(ctx, r, store, payload, requirement, settlement)
}
