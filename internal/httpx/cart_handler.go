package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/apperr"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/cart"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/inventory"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/metrics"
)

type CartHandler struct {
	Svc     *cart.Service
	Metrics *metrics.ServerMetrics
}

type addItemReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
}

type updateQtyReq struct {
	Quantity int `json:"quantity"`
}

type couponReq struct {
	Code string `json:"code"`
}

func (h *CartHandler) Register(r *chi.Mux) {
	wrap := func(name string, fn http.HandlerFunc) http.HandlerFunc {
		if h.Metrics == nil {
			return fn
		}
		return h.Metrics.Middleware(name, fn)
	}
	r.Get("/cart", wrap("cart_get", h.getCart))
	r.Post("/cart/items", wrap("cart_add_item", h.addItem))
	r.Put("/cart/items/{itemID}", wrap("cart_update_item", h.updateQuantity))
	r.Delete("/cart/items/{itemID}", wrap("cart_remove_item", h.removeItem))
	r.Post("/cart/coupons", wrap("cart_apply_coupon", h.applyCoupon))
	r.Delete("/cart/coupons/{code}", wrap("cart_remove_coupon", h.removeCoupon))
	r.Post("/cart/check-availability", wrap("cart_check_availability", h.checkAvailability))
}

func (h *CartHandler) getCart(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Svc.GetCart(ctx, owner)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, http.StatusOK, c)
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req addItemReq
	if err := decode(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		respondErr(w, r, apperr.New(apperr.KindValidation, "invalid product_id"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.Svc.AddItem(ctx, owner, productID, req.Quantity,
		inventory.Variant{Size: req.Size, Color: req.Color})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, http.StatusOK, c)
}

func (h *CartHandler) updateQuantity(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireUser(w, r)
	if !ok {
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		respondErr(w, r, apperr.New(apperr.KindValidation, "invalid item id"))
		return
	}
	var req updateQtyReq
	if err := decode(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.Svc.UpdateQuantity(ctx, owner, itemID, req.Quantity)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, http.StatusOK, c)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireUser(w, r)
	if !ok {
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		respondErr(w, r, apperr.New(apperr.KindValidation, "invalid item id"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.Svc.RemoveItem(ctx, owner, itemID)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, http.StatusOK, c)
}

func (h *CartHandler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req couponReq
	if err := decode(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	if req.Code == "" {
		respondErr(w, r, apperr.New(apperr.KindValidation, "missing coupon code"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.Svc.ApplyCoupon(ctx, owner, req.Code)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, http.StatusOK, c)
}

func (h *CartHandler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireUser(w, r)
	if !ok {
		return
	}
	code := chi.URLParam(r, "code")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.Svc.RemoveCoupon(ctx, owner, code)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, http.StatusOK, c)
}

func (h *CartHandler) checkAvailability(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	c, err := h.Svc.CheckAvailability(ctx, owner)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, http.StatusOK, c)
}
