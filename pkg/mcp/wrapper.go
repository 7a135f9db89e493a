// Package mcp wraps MCP tool handlers with the x402 payment handshake. The
// payment travels in the request _meta and the settlement receipt is returned
// in the result _meta, so the tool body itself stays payment-agnostic.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/pitstop/gas-station/pkg/types"
	"github.com/pitstop/gas-station/pkg/x402"
)

// _meta keys used by x402-aware MCP clients.
const (
	PaymentMetaKey         = "x402/payment"
	PaymentResponseMetaKey = "x402/payment-response"
)

// RequirementsFunc builds the accepted requirement set from the raw tool
// arguments.
type RequirementsFunc func(args json.RawMessage) ([]*types.PaymentRequirements, error)

// ToolFunc is the paid operation: it receives the raw tool arguments and
// returns the result text.
type ToolFunc func(ctx context.Context, args json.RawMessage) (string, error)

// Wrapper gates MCP tools behind x402 payments, in the same
// verify-execute-settle order as the HTTP payment gate.
type Wrapper struct {
	facilitator x402.Facilitator
	logger      *zap.Logger
}

// NewWrapper creates a tool payment wrapper.
func NewWrapper(facilitator x402.Facilitator, logger *zap.Logger) *Wrapper {
	return &Wrapper{facilitator: facilitator, logger: logger}
}

// Paid wraps a tool handler with the payment handshake. A request without a
// payment in _meta gets back the requirement set as an error result; a failed
// tool never settles.
func (w *Wrapper) Paid(requirements RequirementsFunc, tool ToolFunc) func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args := json.RawMessage(req.Params.Arguments)

		accepts, err := requirements(args)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		if len(accepts) == 0 {
			return errorResult(x402.ErrNoRequirements.Error()), nil
		}

		payment, err := extractPayment(req)
		if err != nil {
			return paymentRequiredResult(accepts, err.Error()), nil
		}
		if payment == nil {
			return paymentRequiredResult(accepts, "Payment required to access this tool"), nil
		}

		requirement := selectRequirement(accepts, payment)

		verification, err := w.facilitator.Verify(ctx, payment, requirement)
		if err != nil {
			w.logger.Warn("facilitator verification unreachable", zap.Error(err))
			return paymentRequiredResult(accepts, err.Error()), nil
		}
		if !verification.IsValid {
			reason := "could not determine invalid reason"
			if verification.InvalidReason != nil {
				reason = *verification.InvalidReason
			}
			w.logger.Info("payment rejected by facilitator", zap.String("reason", reason))
			return paymentRequiredResult(accepts, reason), nil
		}

		text, err := tool(ctx, args)
		if err != nil {
			// The operation failed, so the payment is never captured.
			w.logger.Error("paid tool failed", zap.Error(err))
			return errorResult(err.Error()), nil
		}

		settlement, err := w.facilitator.Settle(ctx, payment, requirement)
		if err != nil {
			w.logger.Error("facilitator settlement unreachable", zap.Error(err))
			return paymentRequiredResult(accepts, err.Error()), nil
		}
		if !settlement.Success {
			reason := "settlement failed"
			if settlement.ErrorReason != nil {
				reason = *settlement.ErrorReason
			}
			w.logger.Warn("settlement unsuccessful", zap.String("reason", reason))
			return paymentRequiredResult(accepts, reason), nil
		}

		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
			Meta:    mcpsdk.Meta{PaymentResponseMetaKey: settlement},
		}, nil
	}
}

// Free adapts a plain tool handler onto the MCP SDK signature without any
// payment handling.
func Free(tool ToolFunc) func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		text, err := tool(ctx, json.RawMessage(req.Params.Arguments))
		if err != nil {
			return errorResult(err.Error()), nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
		}, nil
	}
}

// extractPayment pulls and decodes the payment payload from the request _meta.
// A missing payment is (nil, nil).
func extractPayment(req *mcpsdk.CallToolRequest) (*types.PaymentPayload, error) {
	if req.Params.Meta == nil {
		return nil, nil
	}
	raw, ok := req.Params.Meta[PaymentMetaKey]
	if !ok || raw == nil {
		return nil, nil
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid payment in _meta: %w", err)
	}
	var payment types.PaymentPayload
	if err := json.Unmarshal(encoded, &payment); err != nil {
		return nil, fmt.Errorf("invalid payment in _meta: %w", err)
	}
	if payment.Scheme != types.SchemeExact || payment.Payload == nil || payment.Payload.Authorization == nil {
		return nil, fmt.Errorf("invalid payment in _meta: unsupported scheme or missing authorization")
	}

	payment.X402Version = types.ProtocolVersion
	return &payment, nil
}

func selectRequirement(accepts []*types.PaymentRequirements, payment *types.PaymentPayload) *types.PaymentRequirements {
	for _, requirement := range accepts {
		if requirement.Scheme == payment.Scheme && requirement.Network == payment.Network {
			return requirement
		}
	}
	return accepts[0]
}

func paymentRequiredResult(accepts []*types.PaymentRequirements, reason string) *mcpsdk.CallToolResult {
	body, err := json.Marshal(x402.PaymentRequiredBody{
		Error:       reason,
		Accepts:     accepts,
		X402Version: types.ProtocolVersion,
	})
	if err != nil {
		return errorResult(reason)
	}
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(body)}},
	}
}

func errorResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}
}
