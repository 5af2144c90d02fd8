package interfaces

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront/internal/pkg/auth"
	"storefront/internal/pkg/httpx"
	"storefront/internal/service/giftcard/application"
)

// GiftCardHandler 封装了 giftcard 服务的 HTTP 处理器
type GiftCardHandler struct {
	service *application.GiftCardService
	limiter *httpx.KeyedLimiter // 余额查询按 IP 限流，防止枚举卡号
}

func NewGiftCardHandler(service *application.GiftCardService, limiter *httpx.KeyedLimiter) *GiftCardHandler {
	return &GiftCardHandler{service: service, limiter: limiter}
}

func (h *GiftCardHandler) RegisterRoutes(r chi.Router, mw *auth.Middleware) {
	// 用 POST 避免卡号出现在访问日志的 URL 里
	r.Post("/api/giftcards/balance", h.handleBalance)

	r.Route("/api/admin/giftcards", func(r chi.Router) {
		r.Use(mw.Required, auth.RequireAdmin)
		r.Post("/", h.handleIssue)
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/disable", h.handleDisable)
		r.Post("/{id}/adjust", h.handleAdjust)
		r.Get("/{id}/transactions", h.handleTransactions)
	})
}

func (h *GiftCardHandler) handleBalance(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil {
		if err := h.limiter.Check(httpx.ClientIP(r)); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	view, err := h.service.CheckBalance(r.Context(), req.Code)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *GiftCardHandler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req application.IssueRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, _ := auth.FromContext(r.Context())
	card, err := h.service.Issue(r.Context(), req, p.CustomerID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, application.ToGiftCardDTO(card))
}

func (h *GiftCardHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	card, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToGiftCardDTO(card))
}

func (h *GiftCardHandler) handleDisable(w http.ResponseWriter, r *http.Request) {
	card, err := h.service.Disable(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToGiftCardDTO(card))
}

func (h *GiftCardHandler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req application.AdjustRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	t, err := h.service.Adjust(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToTransactionDTO(t))
}

func (h *GiftCardHandler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListTransactions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	out := make([]*application.TransactionDTO, 0, len(list))
	for _, t := range list {
		out = append(out, application.ToTransactionDTO(t))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
