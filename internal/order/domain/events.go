package domain

const (
	TopicOrderConfirmed = "order.confirmed"
	TopicOrderRejected  = "order.rejected"

	EventOrderConfirmed = "OrderConfirmed"
	EventOrderRejected  = "OrderRejected"
)

type OrderConfirmed struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	TotalCents int64  `json:"total_cents"`
	PaymentRef string `json:"payment_ref"`
}

type OrderRejected struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	Reason     Reason `json:"reason"`
}

func NewOrderConfirmed(o *Order) OrderConfirmed {
	return OrderConfirmed{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		TotalCents: o.TotalCents,
		PaymentRef: o.PaymentRef,
	}
}

func NewOrderRejected(o *Order) OrderRejected {
	return OrderRejected{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Reason:     o.RejectionReason,
	}
}
