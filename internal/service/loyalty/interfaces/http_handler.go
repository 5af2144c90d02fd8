package interfaces

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront/internal/pkg/auth"
	"storefront/internal/pkg/httpx"
	"storefront/internal/service/loyalty/application"
	"storefront/internal/service/loyalty/domain"
)

// LoyaltyHandler 封装了 loyalty 服务的 HTTP 处理器
type LoyaltyHandler struct {
	service *application.LoyaltyService
}

func NewLoyaltyHandler(service *application.LoyaltyService) *LoyaltyHandler {
	return &LoyaltyHandler{service: service}
}

func (h *LoyaltyHandler) RegisterRoutes(r chi.Router, mw *auth.Middleware) {
	r.Route("/api/loyalty", func(r chi.Router) {
		r.Use(mw.Required)
		r.Get("/", h.handleAccount)
		r.Get("/transactions", h.handleTransactions)
		r.Post("/quote", h.handleQuote)
	})

	r.Route("/api/admin/loyalty/{customerID}", func(r chi.Router) {
		r.Use(mw.Required, auth.RequireAdmin)
		r.Get("/", h.handleAdminAccount)
		r.Get("/transactions", h.handleAdminTransactions)
		r.Post("/adjust", h.handleAdjust)
	})
}

func (h *LoyaltyHandler) writeAccount(w http.ResponseWriter, r *http.Request, customerID string) {
	a, err := h.service.GetOrCreateAccount(r.Context(), customerID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToAccountDTO(a))
}

func (h *LoyaltyHandler) writeTransactions(w http.ResponseWriter, r *http.Request, customerID string) {
	list, err := h.service.ListTransactions(r.Context(), customerID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toDTOs(list))
}

func toDTOs(list []*domain.PointsTransaction) []*application.TransactionDTO {
	out := make([]*application.TransactionDTO, 0, len(list))
	for _, t := range list {
		out = append(out, application.ToTransactionDTO(t))
	}
	return out
}

func (h *LoyaltyHandler) handleAccount(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	h.writeAccount(w, r, p.CustomerID)
}

func (h *LoyaltyHandler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	h.writeTransactions(w, r, p.CustomerID)
}

func (h *LoyaltyHandler) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points int64 `json:"points"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, _ := auth.FromContext(r.Context())
	q, err := h.service.QuoteRedemption(r.Context(), p.CustomerID, req.Points, -1)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, q)
}

func (h *LoyaltyHandler) handleAdminAccount(w http.ResponseWriter, r *http.Request) {
	h.writeAccount(w, r, chi.URLParam(r, "customerID"))
}

func (h *LoyaltyHandler) handleAdminTransactions(w http.ResponseWriter, r *http.Request) {
	h.writeTransactions(w, r, chi.URLParam(r, "customerID"))
}

func (h *LoyaltyHandler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req application.AdjustRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	t, err := h.service.Adjust(r.Context(), chi.URLParam(r, "customerID"), req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToTransactionDTO(t))
}
