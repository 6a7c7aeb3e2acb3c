package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/apperr"
)

var ErrBadSignature = apperr.New(apperr.KindSignatureInvalid, "invalid signature")

// Webhook events of interest. Everything else is deliberately ignored.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventRefundProcessed = "refund.processed"
)

// WebhookEvent is the decoded gateway notification.
type WebhookEvent struct {
	ID          string `json:"id"`
	Event       string `json:"event"`
	IntentID    string `json:"intent_id"`
	PaymentID   string `json:"payment_id"`
	RefundID    string `json:"refund_id,omitempty"`
	AmountMinor int64  `json:"amount_minor"`
}

// Verifier checks client-submitted payment proofs and webhook signatures.
// The two secrets are distinct on purpose.
type Verifier struct {
	KeySecret     string
	WebhookSecret string
}

// VerifyClientProof recomputes HMAC-SHA256 over "intentID|paymentID" and
// compares in constant time. A mismatch is a hard rejection, never a retry.
func (v Verifier) VerifyClientProof(intentID, paymentID, signature string) bool {
	if intentID == "" || paymentID == "" || signature == "" {
		return false
	}
	expected := signHex([]byte(v.KeySecret), []byte(intentID+"|"+paymentID))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookSignature checks the raw body against the signature header.
func (v Verifier) VerifyWebhookSignature(rawBody []byte, signatureHeader string) bool {
	if signatureHeader == "" {
		return false
	}
	expected := signHex([]byte(v.WebhookSecret), rawBody)
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

// ParseWebhook verifies then decodes; invalid signatures never reach decoding.
func (v Verifier) ParseWebhook(rawBody []byte, signatureHeader string) (WebhookEvent, error) {
	if !v.VerifyWebhookSignature(rawBody, signatureHeader) {
		return WebhookEvent{}, ErrBadSignature
	}
	var ev WebhookEvent
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode webhook: %w", err)
	}
	return ev, nil
}

func signHex(key, msg []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}
