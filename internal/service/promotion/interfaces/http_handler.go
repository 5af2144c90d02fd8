package interfaces

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront/internal/pkg/auth"
	"storefront/internal/pkg/httpx"
	"storefront/internal/service/promotion/application"
	"storefront/internal/service/promotion/domain"
)

// InputProvider 用当前购物车构造试算输入，由 checkout 实现
type InputProvider interface {
	PromotionInput(ctx context.Context, customerID string) (domain.EvaluationInput, error)
}

// PromotionHandler 封装了 promotion 服务的 HTTP 处理器
type PromotionHandler struct {
	service *application.PromotionService
	inputs  InputProvider
}

// NewPromotionHandler 创建一个新的 HTTP 处理器实例
func NewPromotionHandler(service *application.PromotionService, inputs InputProvider) *PromotionHandler {
	return &PromotionHandler{service: service, inputs: inputs}
}

func (h *PromotionHandler) RegisterRoutes(r chi.Router, mw *auth.Middleware) {
	r.With(mw.Required).Post("/api/promotions/validate", h.handleValidate)

	r.Route("/api/admin/promotions", func(r chi.Router) {
		r.Use(mw.Required, auth.RequireAdmin)
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Patch("/{id}", h.handleUpdate)
		r.Post("/{id}/deactivate", h.handleDeactivate)
	})
}

func (h *PromotionHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, _ := auth.FromContext(r.Context())
	in, err := h.inputs.PromotionInput(r.Context(), p.CustomerID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	quote, err := h.service.Validate(r.Context(), req.Code, in)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, quote)
}

func (h *PromotionHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.service.List(r.Context(), application.ListPromotionsQuery{
		Status: q.Get("status"),
		Cursor: q.Get("cursor"),
		Limit:  httpx.QueryInt(r, "limit", 0),
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

func (h *PromotionHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req application.CreatePromotionRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, err := h.service.Create(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, application.ToPromotionDTO(p))
}

func (h *PromotionHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToPromotionDTO(p))
}

func (h *PromotionHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req application.UpdatePromotionRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToPromotionDTO(p))
}

func (h *PromotionHandler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Deactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToPromotionDTO(p))
}
