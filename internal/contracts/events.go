package contracts

import "time"

// 注文イベントの封筒。Kafkaにそのまま載せる。
type Event struct {
	EventID     string         `json:"event_id"`
	Type        string         `json:"type"`
	OrderID     int64          `json:"order_id"`
	OrderNumber string         `json:"order_number"`
	UserID      int64          `json:"user_id"`
	CreatedAt   time.Time      `json:"created_at"`
	Payload     map[string]any `json:"payload,omitempty"`
}

const (
	EventOrderCreated         = "order.created"
	EventOrderCancelled       = "order.cancelled"
	EventOrderStatusChanged   = "order.status_changed"
	EventOrderPaymentChanged  = "order.payment_status_changed"
	EventOrderReturnRequested = "order.return_requested"
)
