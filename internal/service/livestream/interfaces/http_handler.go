package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"storefront/internal/pkg/auth"
	"storefront/internal/pkg/httpx"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/livestream/application"
	"storefront/internal/service/livestream/domain"
)

// 每个连接每秒一条聊天，允许 3 条突发
const (
	chatEvery = time.Second
	chatBurst = 3
)

// LivestreamHandler 封装了直播间的 HTTP 和 WebSocket 处理器
type LivestreamHandler struct {
	service  *application.LivestreamService
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewLivestreamHandler(service *application.LivestreamService, hub *Hub) *LivestreamHandler {
	return &LivestreamHandler{
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *LivestreamHandler) RegisterRoutes(r chi.Router, mw *auth.Middleware) {
	r.Route("/api/streams", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.Get("/{id}/viewers", h.handleViewers)
	})
	// 匿名观众可以观看，登录后才能发言
	r.With(mw.Optional).Get("/streams/{id}/ws", h.serveWs)

	r.Route("/api/admin/streams", func(r chi.Router) {
		r.Use(mw.Required, auth.RequireAdmin)
		r.Post("/", h.handleCreate)
		r.Post("/{id}/start", h.handleStart)
		r.Post("/{id}/end", h.handleEnd)
		r.Post("/{id}/products", h.handleFeature)
	})
}

func (h *LivestreamHandler) handleList(w http.ResponseWriter, r *http.Request) {
	streams, err := h.service.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"streams": streams})
}

func (h *LivestreamHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *LivestreamHandler) handleViewers(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.Viewers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int64{"viewers": n})
}

func (h *LivestreamHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req application.CreateRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, _ := auth.FromContext(r.Context())
	st, err := h.service.Create(r.Context(), p.CustomerID, req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, application.ToStreamDTO(st, 0))
}

func (h *LivestreamHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Start(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToStreamDTO(st, 0))
}

func (h *LivestreamHandler) handleEnd(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.End(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	h.hub.Broadcast(st.ID, Message{Type: MessageEnded})
	h.hub.CloseRoom(st.ID)
	httpx.WriteJSON(w, http.StatusOK, application.ToStreamDTO(st, 0))
}

func (h *LivestreamHandler) handleFeature(w http.ResponseWriter, r *http.Request) {
	var req application.FeatureRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	st, err := h.service.FeatureProduct(r.Context(), chi.URLParam(r, "id"), req.ProductID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if st.Status == domain.StatusLive {
		h.hub.Broadcast(st.ID, Message{Type: MessageProduct, ProductID: strings.TrimSpace(req.ProductID)})
	}
	httpx.WriteJSON(w, http.StatusOK, application.ToStreamDTO(st, 0))
}

// serveWs 连上即计入在线人数，断开时扣减
func (h *LivestreamHandler) serveWs(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "id")
	ctx := context.WithoutCancel(r.Context())

	// 非直播状态在升级前直接返回错误响应
	count, err := h.service.Join(ctx, streamID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("stream_id", streamID).Msg("websocket upgrade failed")
		h.leave(ctx, streamID)
		return
	}

	var customerID string
	if p, ok := auth.FromContext(r.Context()); ok {
		customerID = p.CustomerID
	}
	client := newClient(h.hub, conn, streamID, customerID)
	if !h.hub.join(client) {
		_ = conn.Close()
		h.leave(ctx, streamID)
		return
	}
	h.hub.Broadcast(streamID, Message{Type: MessageViewers, Count: count})

	go client.writePump()
	limiter := rate.NewLimiter(rate.Every(chatEvery), chatBurst)
	client.readPump(func(data []byte) {
		if msg, ok := chatMessage(client, data, limiter); ok {
			h.hub.Broadcast(streamID, msg)
		}
	})
	h.leave(ctx, streamID)
}

func (h *LivestreamHandler) leave(ctx context.Context, streamID string) {
	count, err := h.service.Leave(ctx, streamID)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("stream_id", streamID).Msg("failed to record viewer leave")
		return
	}
	h.hub.Broadcast(streamID, Message{Type: MessageViewers, Count: count})
}

// chatMessage 匿名观众、空消息、超长消息和超出频率的消息都被丢弃
func chatMessage(c *Client, data []byte, limiter *rate.Limiter) (Message, bool) {
	if c.customerID == "" {
		return Message{}, false
	}
	var in struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return Message{}, false
	}
	text := strings.TrimSpace(in.Text)
	if text == "" || utf8.RuneCountInString(text) > domain.MaxChatMessage {
		return Message{}, false
	}
	if !limiter.Allow() {
		return Message{}, false
	}
	return Message{Type: MessageChat, CustomerID: c.customerID, Text: text}, true
}
