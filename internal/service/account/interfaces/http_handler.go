package interfaces

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"storefront/internal/pkg/auth"
	"storefront/internal/pkg/httpx"
	"storefront/internal/service/account/application"
)

// CookieOptions 会话 Cookie 的属性
type CookieOptions struct {
	Name   string
	Secure bool
}

// AccountHandler 封装了 account 服务的 HTTP 处理器
type AccountHandler struct {
	service *application.AccountService
	cookie  CookieOptions
}

func NewAccountHandler(service *application.AccountService, cookie CookieOptions) *AccountHandler {
	return &AccountHandler{service: service, cookie: cookie}
}

func (h *AccountHandler) RegisterRoutes(r chi.Router, mw *auth.Middleware) {
	r.Post("/api/account/register", h.handleRegister)
	r.Post("/api/account/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(mw.Required)
		r.Post("/api/account/logout", h.handleLogout)
		r.Get("/api/account/me", h.handleGetProfile)
		r.Patch("/api/account/me", h.handleUpdateProfile)
		r.Post("/api/account/password", h.handleChangePassword)
		r.Get("/api/account/addresses", h.handleListAddresses)
		r.Post("/api/account/addresses", h.handleAddAddress)
		r.Delete("/api/account/addresses/{id}", h.handleDeleteAddress)
	})

	r.Group(func(r chi.Router) {
		r.Use(mw.Required, auth.RequireAdmin)
		r.Patch("/api/admin/customers/{id}/status", h.handleSetStatus)
	})
}

func (h *AccountHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req application.RegisterRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	c, err := h.service.Register(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, application.ToCustomerDTO(c))
}

func (h *AccountHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req application.LoginRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	res, err := h.service.Login(r.Context(), req, httpx.ClientIP(r))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    res.Token,
		Path:     "/",
		Expires:  res.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *AccountHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	if err := h.service.Logout(r.Context(), p); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	c, err := h.service.GetProfile(r.Context(), p.CustomerID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToCustomerDTO(c))
}

func (h *AccountHandler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req application.UpdateProfileRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, _ := auth.FromContext(r.Context())
	c, err := h.service.UpdateProfile(r.Context(), p.CustomerID, req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToCustomerDTO(c))
}

func (h *AccountHandler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req application.ChangePasswordRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, _ := auth.FromContext(r.Context())
	if err := h.service.ChangePassword(r.Context(), p.CustomerID, req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) handleListAddresses(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	list, err := h.service.ListAddresses(r.Context(), p.CustomerID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	out := make([]*application.AddressDTO, 0, len(list))
	for _, a := range list {
		out = append(out, application.ToAddressDTO(a))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *AccountHandler) handleAddAddress(w http.ResponseWriter, r *http.Request) {
	var req application.AddAddressRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, _ := auth.FromContext(r.Context())
	a, err := h.service.AddAddress(r.Context(), p.CustomerID, req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, application.ToAddressDTO(a))
}

func (h *AccountHandler) handleDeleteAddress(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	if err := h.service.DeleteAddress(r.Context(), p.CustomerID, chi.URLParam(r, "id")); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req application.SetStatusRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	c, err := h.service.SetStatus(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToCustomerDTO(c))
}
