package x402

import (
	"context"

	"github.com/pitstop/gas-station/pkg/types"
)

// Facilitator is the collaborator boundary the gate verifies and settles
// against. Implemented by facilitatorclient.FacilitatorClient; tests supply
// mocks.
type Facilitator interface {
	Verify(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.VerifyResponse, error)
	Settle(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.SettleResponse, error)
}

// VerifyOutcome is the closed result of the verify step. Exactly one of the
// three kinds applies; the gate matches on Kind exhaustively.
type VerifyOutcome struct {
	Kind   OutcomeKind
	Payer  string // recovered payer address, when the facilitator reports one
	Reason string // invalid or transport reason, empty for OutcomeOK
}

// SettleOutcome is the closed result of the settle step.
type SettleOutcome struct {
	Kind        OutcomeKind
	Transaction string
	Payer       string
	Reason      string
}

// OutcomeKind tags a facilitator call result.
type OutcomeKind int

const (
	// OutcomeOK: the facilitator accepted the call.
	OutcomeOK OutcomeKind = iota
	// OutcomeRejected: the facilitator answered, and said no.
	OutcomeRejected
	// OutcomeTransportError: the facilitator could not be reached or answered
	// outside the protocol. Never swallowed; always surfaces as a 402.
	OutcomeTransportError
)

// verify runs the facilitator verify call and folds every failure mode into a
// VerifyOutcome. A transport failure becomes a rejection with the transport
// error as the reason: the pipeline always gets a result object, never a
// panic path.
func verifyPayment(ctx context.Context, facilitator Facilitator, payload *types.PaymentPayload, requirement *types.PaymentRequirements) VerifyOutcome {
	resp, err := facilitator.Verify(ctx, payload, requirement)
	if err != nil {
		return VerifyOutcome{Kind: OutcomeTransportError, Reason: err.Error()}
	}

	if !resp.IsValid {
		reason := "could not determine invalid reason"
		if resp.InvalidReason != nil {
			reason = *resp.InvalidReason
		}
		outcome := VerifyOutcome{Kind: OutcomeRejected, Reason: reason}
		if resp.Payer != nil {
			outcome.Payer = *resp.Payer
		}
		return outcome
	}

	outcome := VerifyOutcome{Kind: OutcomeOK}
	if resp.Payer != nil {
		outcome.Payer = *resp.Payer
	}
	return outcome
}

func settlePayment(ctx context.Context, facilitator Facilitator, payload *types.PaymentPayload, requirement *types.PaymentRequirements) (SettleOutcome, *types.SettleResponse) {
	resp, err := facilitator.Settle(ctx, payload, requirement)
	if err != nil {
		return SettleOutcome{Kind: OutcomeTransportError, Reason: err.Error()}, nil
	}

	if !resp.Success {
		reason := "settlement failed"
		if resp.ErrorReason != nil {
			reason = *resp.ErrorReason
		}
		return SettleOutcome{Kind: OutcomeRejected, Reason: reason}, resp
	}

	outcome := SettleOutcome{Kind: OutcomeOK, Transaction: resp.Transaction}
	if resp.Payer != nil {
		outcome.Payer = *resp.Payer
	}
	return outcome, resp
}
