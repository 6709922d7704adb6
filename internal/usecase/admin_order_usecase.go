package usecase

import (
	"context"
	"strings"
	"time"

	"storefront/internal/contracts"
	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
)

// 管理者向けの注文操作。遷移の判定は model.OrderStatus の遷移表に寄せる。
type AdminOrderUsecase struct {
	tx     repo.TransactionManager
	events EventPublisher
}

func NewAdminOrderUsecase(tx repo.TransactionManager, events EventPublisher) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, events: events}
}

type AdminUpdateOrderStatusInput struct {
	Status string
	Note   string
}

type AdminUpdatePaymentInput struct {
	Status string
	Note   string
}

// 注文一覧
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) ([]OrderOutput, error) {
	if f.Page < 1 {
		return []OrderOutput{}, newValidationError("invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return []OrderOutput{}, newValidationError("invalid limit")
	}
	if f.Status != "" && !model.IsValidOrderStatus(f.Status) {
		return []OrderOutput{}, newValidationError("invalid status")
	}

	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListAdmin(ctx, f)
		if err != nil {
			return newInternal()
		}

		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return newInternal()
			}
			outs = append(outs, toOrderOutput(o, items))
		}
		return nil
	})

	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

// 配送ステータス更新。遷移表にない更新は409。
// CANCELLED / RETURNED への遷移では在庫を戻す。
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorAdminUserID int64, orderID int64, in AdminUpdateOrderStatusInput) (OrderOutput, error) {
	if actorAdminUserID <= 0 {
		return OrderOutput{}, newUnauthorized()
	}
	if orderID <= 0 {
		return OrderOutput{}, newValidationError("invalid id")
	}

	newStatus := strings.TrimSpace(in.Status)
	if !model.IsValidOrderStatus(newStatus) {
		return OrderOutput{}, newValidationError("invalid status")
	}
	next := model.OrderStatus(newStatus)

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return newNotFound()
		}
		if err != nil {
			return newInternal()
		}

		// すでに同じなら何もしない（200）
		if o.Status == next {
			items, err := r.OrderItems().ListByOrderID(ctx, orderID)
			if err != nil {
				return newInternal()
			}
			out = toOrderOutput(o, items)
			return nil
		}

		if !o.Status.CanTransitionTo(next) {
			return newInvalidTransition("cannot change " + string(o.Status) + " to " + newStatus)
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return newInternal()
		}

		// キャンセル・返品確定では在庫を戻す
		if next == model.OrderStatusCancelled || next == model.OrderStatusReturned {
			for _, it := range items {
				if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
					return newInternal()
				}
			}
		}

		beforeStatus := string(o.Status)
		if err := r.Orders().UpdateStatus(ctx, orderID, next); err != nil {
			if err == repo.ErrNotFound {
				return newNotFound()
			}
			return newInternal()
		}

		if strings.TrimSpace(in.Note) != "" {
			if err := r.Orders().UpdateAdminNote(ctx, orderID, strings.TrimSpace(in.Note)); err != nil {
				return newInternal()
			}
		}

		//監査ログ（UPDATE_ORDER_STATUS）
		beforeJSON := `{"status":"` + beforeStatus + `"}`
		afterJSON := `{"status":"` + newStatus + `"}`
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actorAdminUserID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   beforeJSON,
			AfterJSON:    afterJSON,
			CreatedAt:    time.Now(),
		}); err != nil {
			return newInternal()
		}

		o.Status = next
		out = toOrderOutput(o, items)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}

	u.publish(ctx, contracts.EventOrderStatusChanged, out, map[string]any{
		"status": out.Status,
	})
	return out, nil
}

// 支払いステータス更新。配送ステータスとは独立（PENDINGのままPAIDにできる）。
// 試行ごとにPayment行を残す。
func (u *AdminOrderUsecase) UpdatePaymentStatus(ctx context.Context, actorAdminUserID int64, orderID int64, in AdminUpdatePaymentInput) (OrderOutput, error) {
	if actorAdminUserID <= 0 {
		return OrderOutput{}, newUnauthorized()
	}
	if orderID <= 0 {
		return OrderOutput{}, newValidationError("invalid id")
	}

	newStatus := strings.TrimSpace(in.Status)
	if !model.IsValidPaymentStatus(newStatus) {
		return OrderOutput{}, newValidationError("invalid payment status")
	}
	next := model.PaymentStatus(newStatus)

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return newNotFound()
		}
		if err != nil {
			return newInternal()
		}

		if o.PaymentStatus == next {
			items, err := r.OrderItems().ListByOrderID(ctx, orderID)
			if err != nil {
				return newInternal()
			}
			out = toOrderOutput(o, items)
			return nil
		}

		before := string(o.PaymentStatus)

		if err := r.Orders().UpdatePaymentStatus(ctx, orderID, next); err != nil {
			if err == repo.ErrNotFound {
				return newNotFound()
			}
			return newInternal()
		}

		amount := o.Total
		if next == model.PaymentStatusRefunded {
			amount = -o.Total
		}
		if _, err := r.Payments().Create(ctx, model.Payment{
			OrderID: orderID,
			Status:  next,
			Amount:  amount,
			Method:  o.PaymentMethod,
			Note:    strings.TrimSpace(in.Note),
		}); err != nil {
			return newInternal()
		}

		//監査ログ（UPDATE_PAYMENT_STATUS）
		beforeJSON := `{"payment_status":"` + before + `"}`
		afterJSON := `{"payment_status":"` + newStatus + `"}`
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actorAdminUserID,
			Action:       model.AuditActionUpdatePaymentStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   beforeJSON,
			AfterJSON:    afterJSON,
			CreatedAt:    time.Now(),
		}); err != nil {
			return newInternal()
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return newInternal()
		}

		o.PaymentStatus = next
		out = toOrderOutput(o, items)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}

	u.publish(ctx, contracts.EventOrderPaymentChanged, out, map[string]any{
		"payment_status": out.PaymentStatus,
	})
	return out, nil
}

func (u *AdminOrderUsecase) publish(ctx context.Context, eventType string, o OrderOutput, payload map[string]any) {
	if u.events == nil {
		return
	}

	_ = u.events.Publish(ctx, contracts.Event{
		EventID:     uuid.NewString(),
		Type:        eventType,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		CreatedAt:   time.Now().UTC(),
		Payload:     payload,
	})
}
