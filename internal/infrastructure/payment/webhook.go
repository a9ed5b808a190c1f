package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// WebhookEvent is the decoded provider webhook payload.
type WebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		InvoiceID string `json:"invoice_id"`
	} `json:"data"`
}

// VerifyWebhookSignature checks the provider's HMAC-SHA256 signature over
// the raw payload. Comparison is constant-time.
func VerifyWebhookSignature(secret string, payload []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ParseWebhookEvent decodes a verified payload.
func ParseWebhookEvent(payload []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("webhook payload missing event type")
	}
	return &ev, nil
}
