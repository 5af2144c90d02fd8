package interfaces

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront/internal/pkg/auth"
	"storefront/internal/pkg/httpx"
	"storefront/internal/service/order/application"
)

// OrderHandler 封装了结账与订单的 HTTP 处理器
type OrderHandler struct {
	service *application.OrderApplicationService
}

// NewOrderHandler 创建一个新的 HTTP 处理器实例
func NewOrderHandler(service *application.OrderApplicationService) *OrderHandler {
	return &OrderHandler{service: service}
}

// RegisterRoutes 注册客户和后台的订单路由
func (h *OrderHandler) RegisterRoutes(r chi.Router, mw *auth.Middleware) {
	r.With(mw.Required).Post("/api/checkout", h.handleCheckout)

	r.Route("/api/orders", func(r chi.Router) {
		r.Use(mw.Required)
		r.Get("/", h.handleListMine)
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/cancel", h.handleCancel)
	})

	r.Route("/api/admin/orders", func(r chi.Router) {
		r.Use(mw.Required, auth.RequireAdmin)
		r.Get("/", h.handleListAll)
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/cancel", h.handleCancel)
		r.Post("/{id}/fulfill", h.handleFulfill)
	})
}

func actorOf(r *http.Request) application.Actor {
	p, _ := auth.FromContext(r.Context())
	return application.Actor{CustomerID: p.CustomerID, Admin: p.IsAdmin()}
}

func listQuery(r *http.Request) application.ListOrdersQuery {
	q := r.URL.Query()
	return application.ListOrdersQuery{
		Status: q.Get("status"),
		Cursor: q.Get("cursor"),
		Limit:  httpx.QueryInt(r, "limit", 0),
	}
}

func (h *OrderHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req application.CheckoutRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	order, err := h.service.Checkout(r.Context(), actorOf(r).CustomerID, req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, application.ToOrderDTO(order))
}

func (h *OrderHandler) handleListMine(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListOrders(r.Context(), actorOf(r).CustomerID, listQuery(r))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

func (h *OrderHandler) handleListAll(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListOrders(r.Context(), r.URL.Query().Get("customer_id"), listQuery(r))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

func (h *OrderHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), actorOf(r), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToOrderDTO(order))
}

func (h *OrderHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.CancelOrder(r.Context(), actorOf(r), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToOrderDTO(order))
}

func (h *OrderHandler) handleFulfill(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.MarkFulfilled(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToOrderDTO(order))
}
