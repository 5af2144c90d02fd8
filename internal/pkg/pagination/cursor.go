// Package pagination 实现基于 (created_at, id) 倒序的游标分页。
package pagination

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"storefront/internal/pkg/apperr"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Cursor 指向上一页最后一行
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Encode 输出 "<unixnano>:<id>"
func (c Cursor) Encode() string {
	return fmt.Sprintf("%d:%s", c.CreatedAt.UnixNano(), c.ID)
}

// Parse 解析游标，空串表示第一页
func Parse(raw string) (*Cursor, error) {
	if raw == "" {
		return nil, nil
	}
	ts, id, ok := strings.Cut(raw, ":")
	if !ok || id == "" {
		return nil, apperr.InvalidInput("invalid cursor")
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, apperr.InvalidInput("invalid cursor")
	}
	return &Cursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: id}, nil
}

// NormalizeLimit 把 limit 限制在 1..MaxLimit，0 或负数取默认值
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Page 是列表接口的统一返回
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// BuildPage 调用方多查一行 (limit+1)，据此判断是否还有下一页
func BuildPage[T any](rows []T, limit int, cursorOf func(T) Cursor) Page[T] {
	if len(rows) <= limit {
		if rows == nil {
			rows = []T{}
		}
		return Page[T]{Items: rows}
	}
	rows = rows[:limit]
	return Page[T]{Items: rows, NextCursor: cursorOf(rows[len(rows)-1]).Encode()}
}
