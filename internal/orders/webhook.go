package orders

import (
	"context"
	"log/slog"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/apperr"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/payment"
)

// Deduper tells whether a gateway event id was already processed.
type Deduper interface {
	Seen(ctx context.Context, id string) bool
}

// WebhookProcessor applies gateway notifications to intent records. The
// client confirmation path owns order creation; webhooks only settle intent
// state, so every handler here is an idempotent upsert of facts.
type WebhookProcessor struct {
	Verifier payment.Verifier
	Store    Store
	Dedup    Deduper
}

// Process verifies, dedups and applies one webhook delivery. Only a bad
// signature is an error; unknown events and unknown intents are ignored so
// the gateway stops retrying them.
func (w *WebhookProcessor) Process(ctx context.Context, rawBody []byte, signature string) error {
	ev, err := w.Verifier.ParseWebhook(rawBody, signature)
	if err != nil {
		return err
	}

	if w.Dedup != nil && ev.ID != "" && w.Dedup.Seen(ctx, ev.ID) {
		slog.Debug("webhook already processed", "event_id", ev.ID, "event", ev.Event)
		return nil
	}

	switch ev.Event {
	case payment.EventPaymentCaptured:
		return w.paymentCaptured(ctx, ev)
	case payment.EventPaymentFailed:
		return w.paymentFailed(ctx, ev)
	case payment.EventRefundProcessed:
		// Refunds are recorded synchronously by the refund processor; the
		// webhook is just the gateway's echo.
		slog.Debug("refund webhook acknowledged", "intent_id", ev.IntentID, "refund_id", ev.RefundID)
		return nil
	default:
		slog.Debug("webhook event ignored", "event", ev.Event)
		return nil
	}
}

func (w *WebhookProcessor) paymentCaptured(ctx context.Context, ev payment.WebhookEvent) error {
	rec, err := w.Store.GetIntent(ctx, ev.IntentID)
	if apperr.Is(err, apperr.KindNotFound) {
		slog.Warn("capture webhook for unknown intent", "intent_id", ev.IntentID)
		return nil
	}
	if err != nil {
		return err
	}
	if rec.OrderID != nil || rec.Status == IntentCaptured {
		return nil
	}
	return w.Store.UpdateIntentStatus(ctx, ev.IntentID, IntentCaptured)
}

func (w *WebhookProcessor) paymentFailed(ctx context.Context, ev payment.WebhookEvent) error {
	rec, err := w.Store.GetIntent(ctx, ev.IntentID)
	if apperr.Is(err, apperr.KindNotFound) {
		slog.Warn("failure webhook for unknown intent", "intent_id", ev.IntentID)
		return nil
	}
	if err != nil {
		return err
	}
	if rec.OrderID != nil {
		// Order already created from a verified client proof; a late failure
		// notification cannot unwind it.
		slog.Warn("failure webhook after order creation, ignoring",
			"intent_id", ev.IntentID, "order_id", rec.OrderID)
		return nil
	}
	if rec.Status == IntentFailed {
		return nil
	}
	return w.Store.UpdateIntentStatus(ctx, ev.IntentID, IntentFailed)
}
