package model

import "time"

// 支払い試行。注文1件に複数行（リトライ）を許す。
// ゲートウェイ連携はせず、管理者操作で状態だけを記録する。
type Payment struct {
	ID        int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   int64         `gorm:"not null;index" json:"order_id"`
	Status    PaymentStatus `gorm:"type:varchar(20);not null" json:"status"`
	Amount    int64         `gorm:"not null" json:"amount"`
	Method    string        `gorm:"type:varchar(50)" json:"method"`
	Note      string        `gorm:"type:varchar(255)" json:"note"`
	CreatedAt time.Time     `gorm:"not null;autoCreateTime" json:"created_at"`
}
