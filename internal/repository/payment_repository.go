package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 支払い試行の記録。注文1件に複数行を許す。
type PaymentRepository interface {
	Create(ctx context.Context, p model.Payment) (int64, error)
	ListByOrderID(ctx context.Context, orderID int64) ([]model.Payment, error)
}
