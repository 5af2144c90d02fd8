package interfaces

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront/internal/pkg/apperr"
	"storefront/internal/pkg/auth"
	"storefront/internal/pkg/httpx"
	"storefront/internal/service/catalog/application"
)

const maxImageBytes = 5 << 20

// CatalogHandler 封装了 catalog 服务的 HTTP 处理器
type CatalogHandler struct {
	service *application.CatalogService
}

func NewCatalogHandler(service *application.CatalogService) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// RegisterRoutes 注册前台与后台路由
func (h *CatalogHandler) RegisterRoutes(r chi.Router, mw *auth.Middleware) {
	r.Get("/api/products", h.handleList(true))
	r.Get("/api/products/{id}", h.handleGet)
	r.Get("/api/products/slug/{slug}", h.handleGetBySlug)
	r.Get("/api/categories", h.handleListCategories)

	r.Route("/api/admin/catalog", func(r chi.Router) {
		r.Use(mw.Required, auth.RequireAdmin)
		r.Get("/products", h.handleList(false))
		r.Post("/products", h.handleCreate)
		r.Patch("/products/{id}", h.handleUpdate)
		r.Post("/products/{id}/archive", h.handleArchive)
		r.Post("/products/{id}/stock", h.handleAdjustStock)
		r.Post("/products/{id}/image", h.handleUploadImage)
		r.Post("/categories", h.handleCreateCategory)
	})
}

func (h *CatalogHandler) handleList(public bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, err := h.service.ListProducts(r.Context(), application.ListProductsQuery{
			CategoryID: q.Get("category_id"),
			Query:      q.Get("q"),
			Status:     q.Get("status"),
			Cursor:     q.Get("cursor"),
			Limit:      httpx.QueryInt(r, "limit", 0),
		}, public)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, page)
	}
}

func (h *CatalogHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "id"), true)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToProductDTO(p))
}

func (h *CatalogHandler) handleGetBySlug(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetProductBySlug(r.Context(), chi.URLParam(r, "slug"), true)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToProductDTO(p))
}

func (h *CatalogHandler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListCategories(r.Context())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	out := make([]*application.CategoryDTO, 0, len(list))
	for _, c := range list {
		out = append(out, application.ToCategoryDTO(c))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *CatalogHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req application.CreateProductRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, err := h.service.CreateProduct(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, application.ToProductDTO(p))
}

func (h *CatalogHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req application.UpdateProductRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, err := h.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToProductDTO(p))
}

func (h *CatalogHandler) handleArchive(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.ArchiveProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToProductDTO(p))
}

func (h *CatalogHandler) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta int `json:"delta"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, err := h.service.AdjustStock(r.Context(), chi.URLParam(r, "id"), req.Delta)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToProductDTO(p))
}

// handleUploadImage 接收 multipart 表单中的 image 字段
func (h *CatalogHandler) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+1<<10)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		httpx.WriteError(w, r, apperr.InvalidInput("invalid multipart body"))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		httpx.WriteError(w, r, apperr.InvalidInput("image field is required"))
		return
	}
	defer file.Close()

	resp, err := h.service.UploadImage(r.Context(), chi.URLParam(r, "id"), header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *CatalogHandler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req application.CreateCategoryRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	c, err := h.service.CreateCategory(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, application.ToCategoryDTO(c))
}
