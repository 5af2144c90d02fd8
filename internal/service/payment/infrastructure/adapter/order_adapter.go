package adapter

import (
	"context"

	orderapp "storefront/internal/service/order/application"
	"storefront/internal/service/payment/domain/port"
)

// OrderAdapter 把订单应用服务适配成 port.OrderService
type OrderAdapter struct {
	service *orderapp.OrderApplicationService
}

func NewOrderAdapter(service *orderapp.OrderApplicationService) *OrderAdapter {
	return &OrderAdapter{service: service}
}

func (a *OrderAdapter) OrderForPayment(ctx context.Context, customerID, orderID string) (*port.OrderSnapshot, error) {
	o, err := a.service.GetOrder(ctx, orderapp.Actor{CustomerID: customerID, Admin: customerID == ""}, orderID)
	if err != nil {
		return nil, err
	}
	return &port.OrderSnapshot{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		State:      string(o.State),
		TotalCents: o.TotalCents,
		Currency:   o.Currency,
	}, nil
}

func (a *OrderAdapter) MarkPaid(ctx context.Context, orderID string) error {
	_, err := a.service.MarkPaid(ctx, orderID)
	return err
}

func (a *OrderAdapter) MarkRefunded(ctx context.Context, orderID string) error {
	_, err := a.service.MarkRefunded(ctx, orderID)
	return err
}
