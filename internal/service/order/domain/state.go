// internal/service/order/domain/state.go
package domain

// State 定义了订单的生命周期状态
type State string

const (
	StateCreated        State = "CREATED"         // 已落库，资源还在预占中
	StatePendingPayment State = "PENDING_PAYMENT" // 资源预占完成，等待支付
	StatePaid           State = "PAID"            // 已支付
	StateFulfilled      State = "FULFILLED"       // 已发货
	StateCancelled      State = "CANCELLED"       // 已取消 (用户主动或系统超时)
	StateFailed         State = "FAILED"          // 结账流程失败，资源已回滚
	StateRefunded       State = "REFUNDED"        // 已退款
)

// transitions 列出每个状态允许流转到的下一个状态
var transitions = map[State][]State{
	StateCreated:        {StatePendingPayment, StatePaid, StateFailed},
	StatePendingPayment: {StatePaid, StateCancelled},
	StatePaid:           {StateFulfilled, StateRefunded},
	StateFulfilled:      {StateRefunded},
}

// CanTransition 判断 from -> to 是否合法
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SourcesOf 返回可以流转到 to 的所有状态，用于仓储层的条件更新
func SourcesOf(to State) []State {
	var out []State
	for _, from := range []State{StateCreated, StatePendingPayment, StatePaid, StateFulfilled} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

func (s State) Valid() bool {
	switch s {
	case StateCreated, StatePendingPayment, StatePaid, StateFulfilled, StateCancelled, StateFailed, StateRefunded:
		return true
	}
	return false
}
