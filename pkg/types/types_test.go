package types

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func validPayload() *PaymentPayload {
	return &PaymentPayload{
		X402Version: ProtocolVersion,
		Scheme:      SchemeExact,
		Network:     "base-sepolia",
		Payload: &ExactEvmPayload{
			Signature: "0xsignature",
			Authorization: &ExactEvmPayloadAuthorization{
				From:        "0x857b06519E91e3A54538791bDbb0E22373e36b66",
				To:          "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
				Value:       "50000",
				ValidAfter:  "1745323800",
				ValidBefore: "1745323985",
				Nonce:       "0xf3746613c2d920b5fdabc0856f2aeb2d4f88ee6037b8cc5d04a71a4462f13480",
			},
		},
	}
}

func TestDecodePaymentPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	original := validPayload()
	encoded, err := EncodePaymentPayloadToBase64(original)
	if err != nil {
		t.Fatalf("failed to encode payload: %v", err)
	}

	decoded, err := DecodePaymentPayloadFromBase64(encoded)
	if err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}

	if diff := cmp.Diff(original, decoded); diff != "" {
		t.Fatalf("payload mismatch (-want +got)\n%s", diff)
	}
}

func TestDecodePaymentPayloadNormalizesVersion(t *testing.T) {
	t.Parallel()

	payload := validPayload()
	payload.X402Version = 99
	encoded, err := EncodePaymentPayloadToBase64(payload)
	if err != nil {
		t.Fatalf("failed to encode payload: %v", err)
	}

	decoded, err := DecodePaymentPayloadFromBase64(encoded)
	if err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}

	if decoded.X402Version != ProtocolVersion {
		t.Fatalf("expected version %d, got %d", ProtocolVersion, decoded.X402Version)
	}
}

func TestDecodePaymentPayloadMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		encoded string
		wantErr string
	}{
		{
			name:    "not base64",
			encoded: "!!!not-base64!!!",
			wantErr: "failed to decode base64",
		},
		{
			name:    "not json",
			encoded: base64.StdEncoding.EncodeToString([]byte("plain text")),
			wantErr: "failed to unmarshal",
		},
		{
			name:    "unsupported scheme",
			encoded: base64.StdEncoding.EncodeToString([]byte(`{"x402Version":1,"scheme":"upto","network":"base-sepolia","payload":{"signature":"0x1","authorization":{}}}`)),
			wantErr: "unsupported payment scheme",
		},
		{
			name:    "missing authorization",
			encoded: base64.StdEncoding.EncodeToString([]byte(`{"x402Version":1,"scheme":"exact","network":"base-sepolia","payload":{"signature":"0x1"}}`)),
			wantErr: "missing the signed authorization",
		},
		{
			name:    "empty header",
			encoded: "",
			wantErr: "failed to unmarshal",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := DecodePaymentPayloadFromBase64(tc.encoded)
			if err == nil {
				t.Fatalf("expected error, got none")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %q", tc.wantErr, err.Error())
			}
		})
	}
}

func TestSettleResponseHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	payer := "0x857b06519E91e3A54538791bDbb0E22373e36b66"
	settle := &SettleResponse{
		Success:     true,
		Transaction: "0xdeadbeef",
		Network:     "base-sepolia",
		Payer:       &payer,
	}

	header, err := settle.EncodeToBase64String()
	if err != nil {
		t.Fatalf("failed to encode settle response: %v", err)
	}

	decoded, err := DecodeSettleResponseFromBase64(header)
	if err != nil {
		t.Fatalf("failed to decode settle response: %v", err)
	}

	if diff := cmp.Diff(settle, decoded); diff != "" {
		t.Fatalf("settle response mismatch (-want +got)\n%s", diff)
	}
}
