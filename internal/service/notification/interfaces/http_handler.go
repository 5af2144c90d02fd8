package interfaces

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront/internal/pkg/auth"
	"storefront/internal/pkg/httpx"
	"storefront/internal/service/notification/application"
)

type NotificationHandler struct {
	service *application.NotificationService
}

func NewNotificationHandler(service *application.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

func (h *NotificationHandler) RegisterRoutes(r chi.Router, mw *auth.Middleware) {
	r.With(mw.Required).Get("/api/notifications", h.handleList)
}

func (h *NotificationHandler) handleList(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	list, err := h.service.ListForCustomer(r.Context(), p.CustomerID, httpx.QueryInt(r, "limit", 20))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"notifications": list})
}
