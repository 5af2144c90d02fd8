// Package rule 用 CEL 表达式实现促销的附加条件。
package rule

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"storefront/internal/service/promotion/domain"
)

const costLimit = 10_000

// CELEngine 是 domain.RuleEngine 的 CEL 实现，编译结果按表达式缓存
type CELEngine struct {
	env      *cel.Env
	programs sync.Map // expr -> cel.Program
}

// NewCELEngine 声明表达式可以引用的变量：
// subtotal, item_count, customer_tier, first_order, category_ids
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("subtotal", cel.IntType),
		cel.Variable("item_count", cel.IntType),
		cel.Variable("customer_tier", cel.StringType),
		cel.Variable("first_order", cel.BoolType),
		cel.Variable("category_ids", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	return &CELEngine{env: env}, nil
}

func (e *CELEngine) program(expr string) (cel.Program, error) {
	if p, ok := e.programs.Load(expr); ok {
		return p.(cel.Program), nil
	}
	ast, iss := e.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRule, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: expression must evaluate to bool, got %s", domain.ErrInvalidRule, ast.OutputType())
	}
	prg, err := e.env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRule, err)
	}
	e.programs.Store(expr, prg)
	return prg, nil
}

// Compile 只做校验，供后台保存促销前调用
func (e *CELEngine) Compile(expr string) error {
	_, err := e.program(expr)
	return err
}

// Evaluate 实现了 domain.RuleEngine 接口
func (e *CELEngine) Evaluate(expr string, fact domain.Fact) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	categories := fact.CategoryIDs
	if categories == nil {
		categories = []string{}
	}
	out, _, err := prg.Eval(map[string]any{
		"subtotal":      fact.Subtotal,
		"item_count":    fact.ItemCount,
		"customer_tier": fact.CustomerTier,
		"first_order":   fact.FirstOrder,
		"category_ids":  categories,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate rule: %w", err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("rule returned %T", out.Value())
	}
	return ok, nil
}
