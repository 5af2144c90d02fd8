package interfaces

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront/internal/pkg/auth"
	"storefront/internal/pkg/httpx"
	"storefront/internal/service/cart/application"
)

// CartHandler 封装了 cart 服务的 HTTP 处理器
type CartHandler struct {
	service *application.CartService
}

func NewCartHandler(service *application.CartService) *CartHandler {
	return &CartHandler{service: service}
}

type itemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *CartHandler) RegisterRoutes(r chi.Router, mw *auth.Middleware) {
	r.Route("/api/cart", func(r chi.Router) {
		r.Use(mw.Required)
		r.Get("/", h.handleGet)
		r.Post("/items", h.handleAdd)
		r.Put("/items/{productID}", h.handleSetQuantity)
		r.Delete("/items/{productID}", h.handleRemove)
		r.Delete("/", h.handleClear)
	})
}

func (h *CartHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	cart, err := h.service.GetCart(r.Context(), p.CustomerID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, _ := auth.FromContext(r.Context())
	cart, err := h.service.AddItem(r.Context(), p.CustomerID, req.ProductID, req.Quantity)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, _ := auth.FromContext(r.Context())
	cart, err := h.service.SetQuantity(r.Context(), p.CustomerID, chi.URLParam(r, "productID"), req.Quantity)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) handleRemove(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	cart, err := h.service.RemoveItem(r.Context(), p.CustomerID, chi.URLParam(r, "productID"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	if err := h.service.Clear(r.Context(), p.CustomerID); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
