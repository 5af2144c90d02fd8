// Package httpx 是各服务 HTTP 适配层共用的 JSON 读写与中间件。
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"storefront/internal/pkg/apperr"
	"storefront/internal/pkg/logger"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error struct {
		Code    apperr.Code `json:"code"`
		Message string      `json:"message"`
	} `json:"error"`
}

// WriteJSON 输出 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError 根据错误码选择状态码，内部错误只记日志不外泄细节
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	status := apperr.StatusOf(code)
	if status >= http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	var body errorBody
	body.Error.Code = code
	body.Error.Message = apperr.MessageOf(err)
	WriteJSON(w, status, body)
}

// Decode 读取 JSON 请求体，拒绝未知字段和超大请求
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.InvalidInput("request body is required")
		}
		return apperr.InvalidInput("malformed JSON: %v", err)
	}
	return nil
}

// QueryInt 读取整型查询参数，缺省或非法时返回 fallback
func QueryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
