package interfaces

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront/internal/pkg/apperr"
	"storefront/internal/pkg/auth"
	"storefront/internal/pkg/httpx"
	"storefront/internal/service/payment/application"
	"storefront/internal/service/payment/domain"
)

type PaymentHandler struct {
	service *application.PaymentService
}

func NewPaymentHandler(service *application.PaymentService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

func (h *PaymentHandler) RegisterRoutes(r chi.Router, mw *auth.Middleware) {
	r.Route("/api/payments", func(r chi.Router) {
		r.Use(mw.Required)
		r.Post("/", h.handleInitiate)
		r.Get("/", h.handleListMine)
		r.Get("/{id}", h.handleGet)
	})

	r.Route("/api/admin/payments", func(r chi.Router) {
		r.Use(mw.Required, auth.RequireAdmin)
		r.Get("/", h.handleListAll)
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/confirm", h.handleConfirm)
		r.Post("/{id}/refund", h.handleRefund)
		r.Post("/transfers", h.handleTransfer)
	})
}

func (h *PaymentHandler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var req application.InitiateRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, _ := auth.FromContext(r.Context())
	payment, err := h.service.Initiate(r.Context(), p.CustomerID, req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	status := http.StatusCreated
	if payment.Status == domain.StatusPending {
		status = http.StatusAccepted
	}
	httpx.WriteJSON(w, status, application.ToPaymentDTO(payment))
}

func (h *PaymentHandler) handleListMine(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	h.list(w, r, p.CustomerID)
}

func (h *PaymentHandler) handleListAll(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "")
}

func (h *PaymentHandler) list(w http.ResponseWriter, r *http.Request, customerID string) {
	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		httpx.WriteError(w, r, apperr.InvalidInput("order_id is required"))
		return
	}
	payments, err := h.service.ListForOrder(r.Context(), customerID, orderID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	out := make([]*application.PaymentDTO, 0, len(payments))
	for _, p := range payments {
		out = append(out, application.ToPaymentDTO(p))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *PaymentHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	payment, err := h.service.Get(r.Context(), p.CustomerID, p.IsAdmin(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToPaymentDTO(payment))
}

func (h *PaymentHandler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req application.ConfirmRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	payment, err := h.service.Confirm(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToPaymentDTO(payment))
}

func (h *PaymentHandler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var notice application.TransferNotice
	if err := httpx.Decode(r, &notice); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	payment, err := h.service.ConfirmTransfer(r.Context(), notice)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToPaymentDTO(payment))
}

func (h *PaymentHandler) handleRefund(w http.ResponseWriter, r *http.Request) {
	payment, err := h.service.Refund(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToPaymentDTO(payment))
}
