// Package facilitatorclient is a thin RPC client for the external x402
// facilitator service: two calls, verify and settle. The facilitator owns the
// durable ledger of spent authorizations; this client keeps no state beyond
// its connection pool.
package facilitatorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pitstop/gas-station/pkg/types"
)

const (
	// DefaultFacilitatorURL is the default URL for the x402 facilitator service.
	DefaultFacilitatorURL = "https://x402.org/facilitator"

	headerContentType   = "Content-Type"
	mimeApplicationJSON = "application/json"

	authHeaderVerify = "verify"
	authHeaderSettle = "settle"
)

// FacilitatorClient verifies and settles payments against a remote
// facilitator.
type FacilitatorClient struct {
	URL               string
	HTTPClient        *http.Client
	CreateAuthHeaders func() (map[string]map[string]string, error)
}

// NewFacilitatorClient creates a new facilitator client.
func NewFacilitatorClient(config *types.FacilitatorConfig) *FacilitatorClient {
	if config == nil {
		config = &types.FacilitatorConfig{
			URL: DefaultFacilitatorURL,
		}
	}

	httpCli := &http.Client{}
	if config.Timeout != nil {
		httpCli.Timeout = config.Timeout()
	}

	return &FacilitatorClient{
		URL:               config.URL,
		HTTPClient:        httpCli,
		CreateAuthHeaders: config.CreateAuthHeaders,
	}
}

// Verify asks the facilitator whether the payload satisfies the requirement.
// A rejected payment is not an error: it comes back as IsValid=false. Errors
// returned here are transport or protocol failures; callers are expected to
// fold them into a rejection rather than crash the request.
func (c *FacilitatorClient) Verify(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.VerifyResponse, error) {
	reqBody := &types.VerifyRequest{
		X402Version:         types.ProtocolVersion,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	}

	var verifyResp types.VerifyResponse
	if err := c.post(ctx, "verify", authHeaderVerify, reqBody, &verifyResp); err != nil {
		return nil, err
	}

	return &verifyResp, nil
}

// Settle asks the facilitator to execute the payment on-chain. Financial
// failures (insufficient funds, expired authorization) come back as
// Success=false; only transport failures surface as errors.
func (c *FacilitatorClient) Settle(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.SettleResponse, error) {
	reqBody := &types.SettleRequest{
		X402Version:         types.ProtocolVersion,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	}

	var settleResp types.SettleResponse
	if err := c.post(ctx, "settle", authHeaderSettle, reqBody, &settleResp); err != nil {
		return nil, err
	}

	return &settleResp, nil
}

func (c *FacilitatorClient) post(ctx context.Context, endpoint, authKey string, body any, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request body: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/%s", c.URL, endpoint), bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", endpoint, err)
	}
	req.Header.Set(headerContentType, mimeApplicationJSON)

	if err := c.addAuthHeader(req, authKey); err != nil {
		return fmt.Errorf("failed to apply %s auth headers: %w", endpoint, err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("facilitator %s returned %s", endpoint, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}

	return nil
}

func (c *FacilitatorClient) addAuthHeader(req *http.Request, key string) error {
	if c.CreateAuthHeaders == nil {
		return nil
	}

	headers, err := c.CreateAuthHeaders()
	if err != nil {
		return fmt.Errorf("create auth headers: %w", err)
	}

	actionHeaders, ok := headers[key]
	if !ok {
		return nil
	}

	for headerKey, value := range actionHeaders {
		req.Header.Set(headerKey, value)
	}

	return nil
}
