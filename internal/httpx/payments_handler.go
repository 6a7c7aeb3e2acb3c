package httpx

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/apperr"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/cart"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/metrics"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/orders"
)

const webhookSignatureHeader = "X-Webhook-Signature"

// Webhook bodies are tiny; anything larger is abuse.
const maxWebhookBody = 1 << 20

type PaymentsHandler struct {
	Assembler *orders.Assembler
	Webhooks  *orders.WebhookProcessor
	Refunds   *orders.RefundProcessor
	Metrics   *metrics.ServerMetrics
}

type beginCheckoutReq struct {
	ShippingAddress cart.Address `json:"shipping_address"`
}

type refundReq struct {
	OrderID     uuid.UUID `json:"order_id"`
	ItemID      uuid.UUID `json:"item_id"`
	AmountMinor int64     `json:"amount_minor"` // 0 = remaining refundable balance
	Reason      string    `json:"reason"`
}

func (h *PaymentsHandler) Register(r *chi.Mux) {
	wrap := func(name string, fn http.HandlerFunc) http.HandlerFunc {
		if h.Metrics == nil {
			return fn
		}
		return h.Metrics.Middleware(name, fn)
	}
	r.Post("/payments/create-order", wrap("payments_create_order", h.beginCheckout))
	r.Post("/payments/verify", wrap("payments_verify", h.confirmPayment))
	r.Post("/payments/webhook", wrap("payments_webhook", h.webhook))
	r.Post("/payments/refund", wrap("payments_refund", h.refund))
}

func (h *PaymentsHandler) beginCheckout(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req beginCheckoutReq
	if err := decode(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	sess, err := h.Assembler.BeginCheckout(ctx, owner, req.ShippingAddress)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, sess)
}

func (h *PaymentsHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req orders.ConfirmRequest
	if err := decode(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	if req.IntentID == "" || req.PaymentID == "" || req.Signature == "" {
		respondErr(w, r, apperr.New(apperr.KindValidation, "intent_id, payment_id and signature are required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Assembler.ConfirmPayment(ctx, owner, req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, o)
}

// webhook verifies over the raw body; decode-then-reserialize would break
// the signature.
func (h *PaymentsHandler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondErr(w, r, apperr.New(apperr.KindValidation, "unreadable body"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Webhooks.Process(ctx, body, r.Header.Get(webhookSignatureHeader)); err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *PaymentsHandler) refund(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req refundReq
	if err := decode(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	if req.OrderID == uuid.Nil || req.ItemID == uuid.Nil {
		respondErr(w, r, apperr.New(apperr.KindValidation, "order_id and item_id are required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	actor := orders.Actor{ID: caller, Role: callerRole(r)}
	o, err := h.Refunds.Refund(ctx, req.OrderID, req.ItemID, req.AmountMinor, req.Reason, actor)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, http.StatusOK, o)
}
