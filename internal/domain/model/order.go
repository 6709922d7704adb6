package model

import "time"

type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusProcessing      OrderStatus = "PROCESSING"
	OrderStatusShipped         OrderStatus = "SHIPPED"
	OrderStatusDelivered       OrderStatus = "DELIVERED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusReturnRequested OrderStatus = "RETURN_REQUESTED"
	OrderStatusReturned        OrderStatus = "RETURNED"
)

// 配送ステータスの遷移表。
// CANCELLED は PENDING/PROCESSING からのみ、返品は DELIVERED からのみ。
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:         {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing:      {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:         {OrderStatusDelivered},
	OrderStatusDelivered:       {OrderStatusReturnRequested},
	OrderStatusReturnRequested: {OrderStatusReturned, OrderStatusDelivered},
}

// 現在のステータスから next へ進めるかを判定する。
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, t := range orderTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// これ以上進めない状態か（返品要求中は未確定なので含めない）。
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusReturned
}

// キャンセル可能か（出荷前のみ）。
func (s OrderStatus) CanCancel() bool {
	return s == OrderStatusPending || s == OrderStatusProcessing
}

func IsValidOrderStatus(s string) bool {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled,
		OrderStatusReturnRequested, OrderStatusReturned:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "UNPAID"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

func IsValidPaymentStatus(s string) bool {
	switch PaymentStatus(s) {
	case PaymentStatusUnpaid, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// 注文。作成後は status / payment_status / admin_note 以外は変更しない。
// 金額はすべて作成時点のスナップショットから計算した確定値。
type Order struct {
	ID             int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber    string        `gorm:"type:varchar(32);not null;uniqueIndex" json:"order_number"`
	UserID         int64         `gorm:"not null;index" json:"user_id"`
	Status         OrderStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentStatus  PaymentStatus `gorm:"type:varchar(20);not null;index" json:"payment_status"`
	Subtotal       int64         `gorm:"not null" json:"subtotal"`
	ShippingFee    int64         `gorm:"not null" json:"shipping_fee"`
	Tax            int64         `gorm:"not null" json:"tax"`
	Total          int64         `gorm:"not null" json:"total"`
	ShippingMethod string        `gorm:"type:varchar(50)" json:"shipping_method"`
	PaymentMethod  string        `gorm:"type:varchar(50)" json:"payment_method"`
	AdminNote      string        `gorm:"type:text" json:"-"`
	IdempotencyKey string        `gorm:"type:varchar(255);not null;uniqueIndex" json:"-"`
	CreatedAt      time.Time     `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
