package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// ProtocolVersion is the single x402 protocol version this server speaks.
// Decoded payloads are always normalized to it; the client-supplied value is
// not trusted.
const ProtocolVersion = 1

// SchemeExact is the only payment scheme the gas station accepts: an exact
// amount authorized off-chain via an EIP-3009 signature.
const SchemeExact = "exact"

// PaymentRequirements describes what the server demands to grant access to
// one protected call. Amounts are always integer strings in the asset's
// smallest unit.
type PaymentRequirements struct {
	Scheme            string           `json:"scheme"`
	Network           string           `json:"network"`
	MaxAmountRequired string           `json:"maxAmountRequired"`
	Resource          string           `json:"resource"`
	Description       string           `json:"description,omitempty"`
	MimeType          string           `json:"mimeType,omitempty"`
	PayTo             string           `json:"payTo"`
	MaxTimeoutSeconds int              `json:"maxTimeoutSeconds,omitempty"`
	Asset             string           `json:"asset"`
	OutputSchema      *json.RawMessage `json:"outputSchema,omitempty"`

	// Extra carries the asset's EIP-712 signing-domain metadata. The
	// facilitator needs it to validate the payer's signature; a wrong value
	// silently breaks verification.
	Extra *PaymentExtra `json:"extra,omitempty"`
}

// PaymentExtra is the EIP-712 domain of the settlement asset.
type PaymentExtra struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// PaymentPayload is the decoded proof-of-payment submitted by the client in
// the X-PAYMENT header. Never persisted; the facilitator owns the durable
// ledger of spent authorizations.
type PaymentPayload struct {
	X402Version int              `json:"x402Version"`
	Scheme      string           `json:"scheme"`
	Network     string           `json:"network"`
	Payload     *ExactEvmPayload `json:"payload"`
}

// ExactEvmPayload is the scheme-specific proof for the "exact" scheme: a
// signed EIP-3009 transfer authorization.
type ExactEvmPayload struct {
	Signature     string                        `json:"signature"`
	Authorization *ExactEvmPayloadAuthorization `json:"authorization"`
}

// ExactEvmPayloadAuthorization is the EIP-3009 typed-data message referencing
// payer, payee, amount and the nonce/deadline window.
type ExactEvmPayloadAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// VerifyResponse is the facilitator's answer to whether a payload satisfies a
// requirement.
type VerifyResponse struct {
	IsValid       bool    `json:"isValid"`
	InvalidReason *string `json:"invalidReason,omitempty"`
	Payer         *string `json:"payer,omitempty"`
}

// SettleResponse is the facilitator's answer to a settlement request. The
// transaction hash becomes part of the receipt returned to the caller.
type SettleResponse struct {
	Success     bool    `json:"success"`
	ErrorReason *string `json:"errorReason,omitempty"`
	Transaction string  `json:"transaction"`
	Network     string  `json:"network"`
	Payer       *string `json:"payer,omitempty"`
}

// EncodeToBase64String encodes the settle response for the
// X-PAYMENT-RESPONSE header.
func (s *SettleResponse) EncodeToBase64String() (string, error) {
	jsonBytes, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode settle response: %w", err)
	}

	return base64.StdEncoding.EncodeToString(jsonBytes), nil
}

// DecodeSettleResponseFromBase64 decodes an X-PAYMENT-RESPONSE header back
// into a settle response.
func DecodeSettleResponseFromBase64(encoded string) (*SettleResponse, error) {
	decodedBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 string: %w", err)
	}

	var settle SettleResponse
	if err := json.Unmarshal(decodedBytes, &settle); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settle response: %w", err)
	}

	return &settle, nil
}

// EncodePaymentPayloadToBase64 encodes a payment payload the way a client
// would for the X-PAYMENT header.
func EncodePaymentPayloadToBase64(payload *PaymentPayload) (string, error) {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payment payload: %w", err)
	}

	return base64.StdEncoding.EncodeToString(jsonBytes), nil
}

// DecodePaymentPayloadFromBase64 decodes an X-PAYMENT header value into a
// PaymentPayload. Decoding is pure; any parse failure or unsupported scheme
// is an error. The x402Version field is overwritten with ProtocolVersion
// regardless of what the client sent.
func DecodePaymentPayloadFromBase64(encoded string) (*PaymentPayload, error) {
	decodedBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 string: %w", err)
	}

	var payload PaymentPayload
	if err := json.Unmarshal(decodedBytes, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment payload: %w", err)
	}

	if payload.Scheme != SchemeExact {
		return nil, fmt.Errorf("unsupported payment scheme: %q", payload.Scheme)
	}
	if payload.Payload == nil || payload.Payload.Authorization == nil {
		return nil, fmt.Errorf("payment payload is missing the signed authorization")
	}

	payload.X402Version = ProtocolVersion

	return &payload, nil
}

// VerifyRequest is the body POSTed to the facilitator's /verify endpoint.
type VerifyRequest struct {
	X402Version         int                  `json:"x402Version"`
	PaymentPayload      *PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements *PaymentRequirements `json:"paymentRequirements"`
}

// SettleRequest is the body POSTed to the facilitator's /settle endpoint.
type SettleRequest struct {
	X402Version         int                  `json:"x402Version"`
	PaymentPayload      *PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements *PaymentRequirements `json:"paymentRequirements"`
}

// FacilitatorConfig configures the facilitator client.
type FacilitatorConfig struct {
	URL               string
	Timeout           func() time.Duration
	CreateAuthHeaders func() (map[string]map[string]string, error)
}
