package interfaces

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront/internal/pkg/auth"
	"storefront/internal/pkg/httpx"
	"storefront/internal/service/wishlist/application"
)

type WishlistHandler struct {
	service *application.WishlistService
}

func NewWishlistHandler(service *application.WishlistService) *WishlistHandler {
	return &WishlistHandler{service: service}
}

func (h *WishlistHandler) RegisterRoutes(r chi.Router, mw *auth.Middleware) {
	r.Route("/api/wishlist", func(r chi.Router) {
		r.Use(mw.Required)
		r.Get("/", h.handleList)
		r.Post("/", h.handleAdd)
		r.Delete("/{productID}", h.handleRemove)
		r.Post("/{productID}/move-to-cart", h.handleMove)
	})
}

func (h *WishlistHandler) handleList(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	items, err := h.service.List(r.Context(), p.CustomerID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *WishlistHandler) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req application.AddRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, _ := auth.FromContext(r.Context())
	if err := h.service.Add(r.Context(), p.CustomerID, req.ProductID); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WishlistHandler) handleRemove(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	if err := h.service.Remove(r.Context(), p.CustomerID, chi.URLParam(r, "productID")); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMove 数量通过 ?quantity= 传入，默认 1
func (h *WishlistHandler) handleMove(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	cart, err := h.service.MoveToCart(r.Context(), p.CustomerID, chi.URLParam(r, "productID"), httpx.QueryInt(r, "quantity", 1))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cart)
}
