// Package domain 定义促销码、核销记录以及折扣计算规则。
package domain

import (
	"context"
	"regexp"
	"strings"
	"time"

	"storefront/internal/pkg/apperr"
	"storefront/internal/pkg/pagination"
)

// DiscountType 定义了优惠的计算方式
type DiscountType string

const (
	DiscountPercentage   DiscountType = "PERCENTAGE"   // 折扣，Value 为 1..100
	DiscountFixedAmount  DiscountType = "FIXED_AMOUNT" // 立减，Value 为分
	DiscountFreeShipping DiscountType = "FREE_SHIPPING"
)

// Scope 决定哪些商品参与计算可优惠金额
type Scope string

const (
	ScopeAll        Scope = "ALL"
	ScopeProducts   Scope = "PRODUCTS"
	ScopeCategories Scope = "CATEGORIES"
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

var (
	ErrPromotionNotFound    = apperr.New(apperr.CodeNotFound, "promotion code not found")
	ErrPromotionExists      = apperr.New(apperr.CodeAlreadyExists, "promotion code already exists")
	ErrPromotionInactive    = apperr.New(apperr.CodeUnprocessable, "promotion is not active")
	ErrPromotionNotStarted  = apperr.New(apperr.CodeUnprocessable, "promotion has not started yet")
	ErrPromotionExpired     = apperr.New(apperr.CodeUnprocessable, "promotion has expired")
	ErrUsageLimitReached    = apperr.New(apperr.CodeUnprocessable, "promotion usage limit reached")
	ErrCustomerLimitReached = apperr.New(apperr.CodeUnprocessable, "you have already used this promotion")
	ErrMinOrderNotMet       = apperr.New(apperr.CodeUnprocessable, "order total does not meet the promotion minimum")
	ErrNoEligibleItems      = apperr.New(apperr.CodeUnprocessable, "no items in the order are eligible for this promotion")
	ErrRuleNotSatisfied     = apperr.New(apperr.CodeUnprocessable, "order does not satisfy the promotion conditions")
	ErrInvalidRule          = apperr.New(apperr.CodeInvalidInput, "promotion rule is invalid")
)

var codePattern = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)

// NormalizeCode 促销码统一大写
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Promotion 是一个促销码及其全部规则
type Promotion struct {
	ID               string
	Code             string
	Name             string
	Type             DiscountType
	Value            int64
	MaxDiscountCents int64 // 0 表示不封顶
	MinOrderCents    int64
	StartsAt         time.Time
	EndsAt           *time.Time // nil 表示长期有效
	UsageLimit       int64      // 0 表示不限
	PerCustomerLimit int64      // 0 表示不限
	UsedCount        int64
	Scope            Scope
	ScopeIDs         []string
	Rule             string // CEL 表达式，可为空
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Validate 校验后台录入的促销定义
func (p *Promotion) Validate() error {
	switch {
	case !codePattern.MatchString(p.Code):
		return apperr.InvalidInput("code must be 3-32 characters of A-Z, 0-9, '-' or '_'")
	case strings.TrimSpace(p.Name) == "":
		return apperr.InvalidInput("name is required")
	case p.MaxDiscountCents < 0 || p.MinOrderCents < 0 || p.UsageLimit < 0 || p.PerCustomerLimit < 0:
		return apperr.InvalidInput("limits must not be negative")
	case p.EndsAt != nil && !p.EndsAt.After(p.StartsAt):
		return apperr.InvalidInput("ends_at must be after starts_at")
	case p.Status != StatusActive && p.Status != StatusInactive:
		return apperr.InvalidInput("unknown status %q", p.Status)
	}
	switch p.Type {
	case DiscountPercentage:
		if p.Value < 1 || p.Value > 100 {
			return apperr.InvalidInput("percentage must be between 1 and 100")
		}
	case DiscountFixedAmount:
		if p.Value <= 0 {
			return apperr.InvalidInput("fixed amount must be positive")
		}
	case DiscountFreeShipping:
		p.Value = 0
	default:
		return apperr.InvalidInput("unknown discount type %q", p.Type)
	}
	switch p.Scope {
	case ScopeAll:
		p.ScopeIDs = nil
	case ScopeProducts, ScopeCategories:
		if len(p.ScopeIDs) == 0 {
			return apperr.InvalidInput("scope_ids is required for scope %s", p.Scope)
		}
	default:
		return apperr.InvalidInput("unknown scope %q", p.Scope)
	}
	return nil
}

// CheckAvailability 检查状态、时间窗口和总次数
func (p *Promotion) CheckAvailability(now time.Time) error {
	switch {
	case p.Status != StatusActive:
		return ErrPromotionInactive
	case now.Before(p.StartsAt):
		return ErrPromotionNotStarted
	case p.EndsAt != nil && !now.Before(*p.EndsAt):
		return ErrPromotionExpired
	case p.UsageLimit > 0 && p.UsedCount >= p.UsageLimit:
		return ErrUsageLimitReached
	}
	return nil
}

// EligibleSubtotal 按适用范围统计可优惠的金额
func (p *Promotion) EligibleSubtotal(lines []OrderLine) int64 {
	if p.Scope == ScopeAll {
		return Subtotal(lines)
	}
	ids := make(map[string]struct{}, len(p.ScopeIDs))
	for _, id := range p.ScopeIDs {
		ids[id] = struct{}{}
	}
	var total int64
	for _, l := range lines {
		key := l.ProductID
		if p.Scope == ScopeCategories {
			key = l.CategoryID
		}
		if _, ok := ids[key]; ok {
			total += l.UnitCents * int64(l.Quantity)
		}
	}
	return total
}

// Discount 计算优惠金额。百分比向下取整，封顶后不超过可优惠金额。
// 免运费时返回的金额等于运费。
func (p *Promotion) Discount(eligible, shippingCents int64) (discount int64, freeShipping bool) {
	switch p.Type {
	case DiscountFreeShipping:
		return shippingCents, true
	case DiscountPercentage:
		discount = eligible * p.Value / 100
	case DiscountFixedAmount:
		discount = p.Value
	}
	if p.MaxDiscountCents > 0 && discount > p.MaxDiscountCents {
		discount = p.MaxDiscountCents
	}
	if discount > eligible {
		discount = eligible
	}
	return discount, false
}

// OrderLine 参与计算的订单行
type OrderLine struct {
	ProductID  string
	CategoryID string
	UnitCents  int64
	Quantity   int
}

func Subtotal(lines []OrderLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.UnitCents * int64(l.Quantity)
	}
	return total
}

// EvaluationInput 是一次试算所需的全部上下文
type EvaluationInput struct {
	CustomerID    string
	CustomerTier  string
	FirstOrder    bool
	Lines         []OrderLine
	ShippingCents int64
}

// Quote 是试算结果
type Quote struct {
	PromotionID      string       `json:"promotion_id"`
	Code             string       `json:"code"`
	Type             DiscountType `json:"type"`
	DiscountCents    int64        `json:"discount_cents"`
	FreeShipping     bool         `json:"free_shipping"`
	EligibleSubtotal int64        `json:"eligible_subtotal_cents"`
}

// Fact 是暴露给规则表达式的变量
type Fact struct {
	Subtotal     int64
	ItemCount    int64
	CustomerTier string
	FirstOrder   bool
	CategoryIDs  []string
}

// NewFact 从试算输入构造规则变量
func NewFact(in EvaluationInput) Fact {
	f := Fact{Subtotal: Subtotal(in.Lines), CustomerTier: in.CustomerTier, FirstOrder: in.FirstOrder}
	seen := map[string]struct{}{}
	for _, l := range in.Lines {
		f.ItemCount += int64(l.Quantity)
		if l.CategoryID == "" {
			continue
		}
		if _, ok := seen[l.CategoryID]; !ok {
			seen[l.CategoryID] = struct{}{}
			f.CategoryIDs = append(f.CategoryIDs, l.CategoryID)
		}
	}
	return f
}

// RuleEngine 评估促销的附加条件
type RuleEngine interface {
	Compile(expr string) error
	Evaluate(expr string, fact Fact) (bool, error)
}

// ListFilter 后台列表条件
type ListFilter struct {
	Status Status
	Cursor *pagination.Cursor
	Limit  int
}

// Repository 促销与核销记录的仓储
type Repository interface {
	Create(ctx context.Context, p *Promotion) error
	Update(ctx context.Context, p *Promotion) error
	FindByID(ctx context.Context, id string) (*Promotion, error)
	FindByCode(ctx context.Context, code string) (*Promotion, error)
	List(ctx context.Context, f ListFilter) ([]*Promotion, error)
	CountCustomerRedemptions(ctx context.Context, promotionID, customerID string) (int64, error)
	// Redeem 在一个事务里占用次数并写入核销记录，同一订单重复调用返回已有记录
	Redeem(ctx context.Context, r *Redemption, perCustomerLimit int64) (*Redemption, error)
	// ReleaseOrder 撤销订单上所有生效的核销并归还次数，返回被撤销的记录
	ReleaseOrder(ctx context.Context, orderID string) ([]*Redemption, error)
	FindRedemptionsByOrder(ctx context.Context, orderID string) ([]*Redemption, error)
	ExpireEnded(ctx context.Context, now time.Time) (int64, error)
}
