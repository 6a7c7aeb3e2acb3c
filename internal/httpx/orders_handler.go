package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/apperr"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/metrics"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/orders"
)

type OrdersHandler struct {
	Store   orders.Store
	Machine *orders.StateMachine
	Metrics *metrics.ServerMetrics
}

type transitionReq struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Note   string `json:"note,omitempty"`
}

type itemStatusReq struct {
	Status          string `json:"status"`
	TrackingNumber  string `json:"tracking_number,omitempty"`
	TrackingCarrier string `json:"tracking_carrier,omitempty"`
	Note            string `json:"note,omitempty"`
}

type cancelReq struct {
	Reason string `json:"reason,omitempty"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	wrap := func(name string, fn http.HandlerFunc) http.HandlerFunc {
		if h.Metrics == nil {
			return fn
		}
		return h.Metrics.Middleware(name, fn)
	}
	r.Get("/orders", wrap("orders_list", h.list))
	r.Get("/orders/{id}", wrap("orders_get", h.get))
	r.Post("/orders/{id}/cancel", wrap("orders_cancel", h.cancel))
	r.Put("/orders/{id}/status", wrap("orders_status", h.transition))
	r.Put("/orders/{id}/items/{itemID}/status", wrap("orders_item_status", h.itemStatus))
}

func actorFrom(r *http.Request, id string) orders.Actor {
	return orders.Actor{ID: id, Role: callerRole(r)}
}

func orderID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperr.New(apperr.KindValidation, "invalid order id")
	}
	return id, nil
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out, err := h.Store.ListOrders(ctx, caller)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, http.StatusOK, out)
}

// canView: the buyer, any vendor with a line in the order, and admins.
func canView(o *orders.Order, a orders.Actor) bool {
	switch a.Role {
	case orders.RoleAdmin:
		return true
	case orders.RoleVendor:
		return lo.SomeBy(o.Items, func(it orders.OrderItem) bool {
			return it.VendorID.String() == a.ID
		})
	default:
		return o.CustomerID == a.ID
	}
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := orderID(r)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Store.GetOrder(ctx, id)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if !canView(&o, actorFrom(r, caller)) {
		// Hide existence from strangers.
		respondErr(w, r, apperr.New(apperr.KindNotFound, "order not found"))
		return
	}
	respondData(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := orderID(r)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	var req cancelReq
	if r.ContentLength > 0 {
		if err := decode(r, &req); err != nil {
			respondErr(w, r, err)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	actor := actorFrom(r, caller)
	var o orders.Order
	if actor.Role == orders.RoleAdmin {
		o, err = h.Machine.Transition(ctx, id, orders.StatusCancelled, actor, req.Reason, "")
	} else {
		o, err = h.Machine.CancelByCustomer(ctx, id, caller, req.Reason)
	}
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, http.StatusOK, o)
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := orderID(r)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	var req transitionReq
	if err := decode(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Machine.Transition(ctx, id, orders.Status(req.Status), actorFrom(r, caller), req.Reason, req.Note)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, http.StatusOK, o)
}

func (h *OrdersHandler) itemStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := orderID(r)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		respondErr(w, r, apperr.New(apperr.KindValidation, "invalid item id"))
		return
	}
	var req itemStatusReq
	if err := decode(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Machine.UpdateItemStatus(ctx, id, itemID, orders.Status(req.Status),
		orders.TrackingInfo{Number: req.TrackingNumber, Carrier: req.TrackingCarrier},
		actorFrom(r, caller), req.Note)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, http.StatusOK, o)
}

