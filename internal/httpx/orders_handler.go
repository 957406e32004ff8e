package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-lifecycle/internal/checkout"
	"github.com/ariefcatur/go-order-lifecycle/internal/lifecycle"
	"github.com/ariefcatur/go-order-lifecycle/internal/logx"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/ariefcatur/go-order-lifecycle/internal/refunds"
)

type Checkouter interface {
	Checkout(ctx context.Context, req checkout.Request) (*orders.Order, error)
}

type Lifecycle interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	History(ctx context.Context, orderID string) ([]orders.AuditEntry, error)
	Payments(ctx context.Context, orderID string) ([]orders.PaymentEntry, error)
	NextStatuses(ctx context.Context, orderID string) ([]orders.Status, error)
	Transition(ctx context.Context, cmd lifecycle.TransitionCommand) (lifecycle.Outcome, error)
	VerifyPayment(ctx context.Context, cmd lifecycle.VerifyPaymentCommand) (*orders.Order, error)
	SetPaymentStatus(ctx context.Context, cmd lifecycle.PaymentStatusCommand) (*orders.Order, error)
}

type Refunder interface {
	Refund(ctx context.Context, cmd refunds.Command) (orders.RefundRecord, error)
	List(ctx context.Context, orderID string) ([]orders.RefundRecord, error)
}

// Idempotency maps a client Idempotency-Key to the order it created.
type Idempotency interface {
	CheckoutOrderID(ctx context.Context, key string) (string, bool, error)
	RememberCheckout(ctx context.Context, key, orderID string) error
}

// OrderCache holds order snapshots. gen is the invalidation counter observed on
// a miss; CacheOrder drops the fill when an invalidation happened since.
type OrderCache interface {
	CachedOrder(ctx context.Context, orderID string) (body []byte, gen int64, hit bool, err error)
	CacheOrder(ctx context.Context, orderID string, body []byte, gen int64) error
	InvalidateOrder(ctx context.Context, orderID string) error
}

type OrdersHandler struct {
	Checkout  Checkouter
	Lifecycle Lifecycle
	Refunds   Refunder
	Idem      Idempotency
	Cache     OrderCache
	Auth      *Authenticator
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.Auth.RequireActor)
		r.Post("/checkout", h.checkout)
		r.Get("/orders/{id}", h.getOrder)

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleAdmin))
			r.Get("/orders/{id}/next-statuses", h.nextStatuses)
			r.Get("/orders/{id}/history", h.history)
			r.Get("/orders/{id}/payments", h.payments)
			r.Get("/orders/{id}/refunds", h.listRefunds)
			r.Patch("/orders/{id}/status", h.transition)
			r.Post("/orders/{id}/verify-payment", h.verifyPayment)
			r.Patch("/orders/{id}/payment-status", h.setPaymentStatus)
			r.Post("/orders/{id}/refund", h.refund)
		})
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteError(r.Context(), w, NewError(orders.CodeValidation, "invalid json: "+err.Error(), http.StatusBadRequest))
		return false
	}
	return true
}

type CheckoutReq struct {
	Items        []checkout.Item      `json:"items"`
	Address      orders.Address       `json:"address"`
	DeliveryZone string               `json:"delivery_zone"`
	PaymentProof *orders.PaymentProof `json:"payment_proof,omitempty"`
}

type CheckoutResp struct {
	OrderID         string               `json:"order_id"`
	Status          orders.Status        `json:"status"`
	PaymentStatus   orders.PaymentStatus `json:"payment_status"`
	Total           int64                `json:"total"`
	DepositRequired int64                `json:"deposit_required"`
	AmountPaid      int64                `json:"amount_paid"`
	Idempotent      bool                 `json:"idempotent"`
}

func checkoutResp(o *orders.Order, replay bool) CheckoutResp {
	return CheckoutResp{
		OrderID:         o.ID,
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		Total:           o.Total,
		DepositRequired: o.DepositRequired,
		AmountPaid:      o.AmountPaid,
		Idempotent:      replay,
	}
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	var req CheckoutReq
	if !decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	logger := logx.FromContext(ctx)

	// Redis is a shortcut only; a cache miss or outage falls through to a normal checkout.
	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idemKey != "" && h.Idem != nil {
		if orderID, ok, err := h.Idem.CheckoutOrderID(ctx, actor.ID+":"+idemKey); err != nil {
			logger.Warn("idempotency lookup failed", zap.Error(err))
		} else if ok {
			o, err := h.Lifecycle.Get(ctx, orderID)
			if err == nil {
				writeJSON(w, http.StatusOK, checkoutResp(o, true))
				return
			}
			logger.Warn("idempotent replay points at missing order", zap.String("order_id", orderID), zap.Error(err))
		}
	}

	o, err := h.Checkout.Checkout(ctx, checkout.Request{
		Actor:   actor,
		Items:   req.Items,
		Address: req.Address,
		Zone:    req.DeliveryZone,
		Proof:   req.PaymentProof,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if idemKey != "" && h.Idem != nil {
		if err := h.Idem.RememberCheckout(ctx, actor.ID+":"+idemKey, o.ID); err != nil {
			logger.Warn("remember idempotency key", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, checkoutResp(o, false))
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	actor, _ := ActorFrom(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var gen int64
	cacheable := h.Cache != nil
	if h.Cache != nil {
		b, g, ok, err := h.Cache.CachedOrder(ctx, orderID)
		gen = g
		if err != nil {
			cacheable = false
		} else if ok {
			var o orders.Order
			if json.Unmarshal(b, &o) == nil {
				if !canView(actor, &o) {
					WriteError(ctx, w, NewError(CodeForbidden, "order belongs to another customer", http.StatusForbidden))
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(b)
				return
			}
		}
	}

	o, err := h.Lifecycle.Get(ctx, orderID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if !canView(actor, o) {
		WriteError(ctx, w, NewError(CodeForbidden, "order belongs to another customer", http.StatusForbidden))
		return
	}
	b, err := json.Marshal(o)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if cacheable {
		if err := h.Cache.CacheOrder(ctx, orderID, b, gen); err != nil {
			logx.FromContext(ctx).Warn("cache order", zap.String("order_id", orderID), zap.Error(err))
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(b, '\n'))
}

func canView(a orders.Actor, o *orders.Order) bool {
	return a.Role == RoleAdmin || a.ID == o.CustomerID
}

func (h *OrdersHandler) nextStatuses(w http.ResponseWriter, r *http.Request) {
	next, err := h.Lifecycle.NextStatuses(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"next": next})
}

func (h *OrdersHandler) history(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Lifecycle.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *OrdersHandler) payments(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Lifecycle.Payments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *OrdersHandler) listRefunds(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Refunds.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

type TransitionReq struct {
	Status  string `json:"status"`
	Note    string `json:"note,omitempty"`
	Restock *bool  `json:"restock,omitempty"`
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	var req TransitionReq
	if !decode(w, r, &req) {
		return
	}
	to, err := orders.ParseStatus(req.Status)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	orderID := chi.URLParam(r, "id")
	out, err := h.Lifecycle.Transition(r.Context(), lifecycle.TransitionCommand{
		OrderID: orderID,
		To:      to,
		Note:    req.Note,
		Actor:   actor,
		Restock: req.Restock,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if !out.NoOp {
		h.invalidate(r.Context(), orderID)
	}
	writeJSON(w, http.StatusOK, out)
}

type NoteReq struct {
	Note string `json:"note,omitempty"`
}

func (h *OrdersHandler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	var req NoteReq
	// body is optional here
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	orderID := chi.URLParam(r, "id")
	o, err := h.Lifecycle.VerifyPayment(r.Context(), lifecycle.VerifyPaymentCommand{OrderID: orderID, Note: req.Note, Actor: actor})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.invalidate(r.Context(), orderID)
	writeJSON(w, http.StatusOK, o)
}

type PaymentStatusReq struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

func (h *OrdersHandler) setPaymentStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	var req PaymentStatusReq
	if !decode(w, r, &req) {
		return
	}
	orderID := chi.URLParam(r, "id")
	o, err := h.Lifecycle.SetPaymentStatus(r.Context(), lifecycle.PaymentStatusCommand{
		OrderID: orderID,
		Status:  orders.PaymentStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		Note:    req.Note,
		Actor:   actor,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.invalidate(r.Context(), orderID)
	writeJSON(w, http.StatusOK, o)
}

type RefundReq struct {
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason"`
	Restock bool   `json:"restock"`
}

func (h *OrdersHandler) refund(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	var req RefundReq
	if !decode(w, r, &req) {
		return
	}
	orderID := chi.URLParam(r, "id")
	rec, err := h.Refunds.Refund(r.Context(), refunds.Command{
		OrderID: orderID,
		Amount:  req.Amount,
		Reason:  req.Reason,
		Restock: req.Restock,
		Actor:   actor,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.invalidate(r.Context(), orderID)
	writeJSON(w, http.StatusOK, rec)
}

func (h *OrdersHandler) invalidate(ctx context.Context, orderID string) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.InvalidateOrder(ctx, orderID); err != nil {
		logx.FromContext(ctx).Warn("invalidate order cache", zap.String("order_id", orderID), zap.Error(err))
	}
}
